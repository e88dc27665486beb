package main

import (
	"context"
	"log"

	"github.com/imshubhamkaushik/deploypipe/internal"
	"github.com/imshubhamkaushik/deploypipe/internal/handler"
	"github.com/imshubhamkaushik/deploypipe/internal/security"
	"github.com/imshubhamkaushik/deploypipe/internal/service"
	"github.com/imshubhamkaushik/deploypipe/internal/settings"
	"github.com/imshubhamkaushik/deploypipe/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "modernc.org/sqlite"
)

func main() {
	internal.InitializeConfiguration()
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()
	hashKey := security.NewKeys()
	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, internal.MigrationsDir)

	scheduler := service.NewScheduler()
	defer scheduler.Shutdown()

	credentialStore := store.NewCredentialSQLiteStore(rdb, rwdb)
	agentStore := store.NewAgentSQLiteStore(rdb, rwdb)
	pipelineStore := store.NewPipelineSQLiteStore(rdb, rwdb)
	runStore := store.NewRunSQLiteStore(rdb, rwdb)
	stageResultStore := store.NewStageResultSQLiteStore(rdb, rwdb)
	apiKeyStore := store.NewAPIKeySQLiteStore(rdb, rwdb)
	aesEncrypter := security.NewAESEncrypter(hashKey)

	credentialSvc := service.NewCredentialService(credentialStore, aesEncrypter)
	agentSvc := service.NewAgentService(agentStore, credentialSvc)
	apiKeySvc := service.NewAPIKeyService(apiKeyStore, service.NewUUIDGen())
	pipelineSvc := service.NewPipelineService(
		pipelineStore,
		runStore,
		stageResultStore,
		credentialSvc,
		agentStore,
		apiKeySvc,
		scheduler,
	)
	if err := pipelineSvc.InitializeRunQueues(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer pipelineSvc.ShutdownAll()

	pipelineSvc.SchedulePipelines()
	scheduler.Start()

	e := setupEcho()
	webhooks := e.Group("/api")
	api := e.Group("/api", handler.APIKeyAuth(apiKeySvc))
	handler.SetupConfigRoutes(api)
	handler.SetupCredentialRoutes(api, credentialSvc)
	handler.SetupAgentRoutes(api, agentSvc)
	handler.SetupPipelineRoutes(api, webhooks, pipelineSvc)
	handler.SetupAPIKeyRoutes(api, apiKeySvc)

	internal.GracefulShutdown(e, settings.Settings.Port)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.CORSWithConfig(internal.GetCORSConfig(settings.Settings.BaseURL())),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	return e
}
