package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"slices"
	"testing"
	"time"

	"github.com/imshubhamkaushik/deploypipe/internal/util"
	"github.com/stretchr/testify/suite"
)

type pipelineSQLiteStoreSuite struct {
	pipelineStore *PipelineSQLiteStore
	agentStore    *AgentSQLiteStore
	credential    *Credential
	agent         *Agent
	db            *sql.DB
	suite.Suite
}

func TestPipelineSQLiteStore(t *testing.T) {
	suite.Run(t, new(pipelineSQLiteStoreSuite))
}

func (suite *pipelineSQLiteStoreSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		log.Fatal(err)
	}

	RunMigrations(db, "migrations")

	suite.pipelineStore = NewPipelineSQLiteStore(db, db)
	suite.agentStore = NewAgentSQLiteStore(db, db)
	credentialStore := NewCredentialSQLiteStore(db, db)
	c, err := credentialStore.CreateCredential(
		context.Background(),
		"pipelinetestcredential",
		"deploy",
		"",
		"hash",
	)
	if err != nil {
		log.Fatal(err)
	}
	suite.credential = c
	a, err := suite.agentStore.CreateAgent(
		context.Background(),
		&c.CredentialID,
		"pipelinetestagent",
		"build-01.internal",
		"/var/lib/deploypipe",
		"",
		"unix",
	)
	if err != nil {
		log.Fatal(err)
	}
	suite.agent = a
}

func (suite *pipelineSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_CreatePipeline() {
	suite.Run("success - pipeline created", func() {
		// arrange
		name := fmt.Sprintf("pipeline%d", time.Now().UTC().UnixNano())
		parameters := util.AsPtr(`{"NAMESPACE":"staging"}`)

		// act
		p, err := suite.pipelineStore.CreatePipeline(
			context.Background(),
			suite.agent.AgentID,
			name,
			"deploys the app to staging",
			"git@github.com:acme/app.git",
			"deploy/pipeline.yml",
			parameters,
		)

		// assert
		suite.NoError(err)
		suite.NotNil(p)
		suite.NotEqual(0, p.PipelineID)
		suite.Equal(name, p.Name)
		suite.Equal("git@github.com:acme/app.git", p.Repository)
		suite.Equal(parameters, p.Parameters)
		suite.Nil(p.Schedule)
	})
	suite.Run("failure - duplicate name", func() {
		// arrange
		existing := suite.createPipeline()

		// act
		p, err := suite.pipelineStore.CreatePipeline(
			context.Background(),
			suite.agent.AgentID,
			existing.Name,
			"",
			"git@github.com:acme/app.git",
			"deploy/pipeline.yml",
			nil,
		)

		// assert
		suite.Error(err)
		suite.Nil(p)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_ReadPipelineRunData() {
	suite.Run("success - pipeline joined with agent and credential", func() {
		// arrange
		pipeline := suite.createPipeline()

		// act
		prd, err := suite.pipelineStore.ReadPipelineRunData(
			context.Background(),
			pipeline.PipelineID,
		)

		// assert
		suite.NoError(err)
		suite.NotNil(prd)
		suite.Equal(pipeline.PipelineID, prd.PipelineID)
		suite.Equal(pipeline.Name, prd.Name)
		suite.Equal(pipeline.Repository, prd.Repository)
		suite.Equal(suite.agent.AgentID, prd.AgentID)
		suite.Equal(suite.agent.Hostname, prd.Hostname)
		suite.Equal(suite.agent.Workspace, prd.Workspace)
		suite.NotNil(prd.CredentialID)
		suite.Equal(suite.credential.CredentialID, *prd.CredentialID)
		suite.Equal(suite.credential.Username, *prd.Username)
		suite.Equal(suite.credential.SecretHash, *prd.SecretHash)
		suite.False(prd.IsLocalAgent())
	})
	suite.Run("success - local agent without credential", func() {
		// arrange
		a, err := suite.agentStore.CreateAgent(
			context.Background(),
			nil,
			fmt.Sprintf("localagent%d", time.Now().UTC().UnixNano()),
			"local",
			"/tmp/deploypipe",
			"",
			"unix",
		)
		suite.NoError(err)
		p, err := suite.pipelineStore.CreatePipeline(
			context.Background(),
			a.AgentID,
			fmt.Sprintf("pipeline%d", time.Now().UTC().UnixNano()),
			"",
			"git@github.com:acme/app.git",
			"deploy/pipeline.yml",
			nil,
		)
		suite.NoError(err)

		// act
		prd, err := suite.pipelineStore.ReadPipelineRunData(context.Background(), p.PipelineID)

		// assert
		suite.NoError(err)
		suite.Nil(prd.CredentialID)
		suite.Nil(prd.Username)
		suite.Nil(prd.SecretHash)
		suite.True(prd.IsLocalAgent())
	})
	suite.Run("failure - pipeline not found", func() {
		// act
		prd, err := suite.pipelineStore.ReadPipelineRunData(context.Background(), 43241)

		// assert
		suite.Error(err)
		suite.True(errors.Is(err, sql.ErrNoRows))
		suite.Nil(prd)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_UpdatePipeline() {
	suite.Run("success - pipeline updates", func() {
		// arrange
		pipeline := suite.createPipeline()
		name := fmt.Sprintf("updated%d", time.Now().UTC().UnixNano())
		parameters := util.AsPtr(`{"REGION":"eu-west-1"}`)

		// act
		updateErr := suite.pipelineStore.UpdatePipeline(
			context.Background(),
			pipeline.PipelineID,
			suite.agent.AgentID,
			name,
			"updated description",
			pipeline.Repository,
			pipeline.ScriptPath,
			parameters,
		)
		p, readErr := suite.pipelineStore.ReadPipelineByID(
			context.Background(),
			pipeline.PipelineID,
		)

		// assert
		suite.NoError(updateErr)
		suite.NoError(readErr)
		suite.Equal(name, p.Name)
		suite.Equal("updated description", p.Description)
		suite.Equal(parameters, p.Parameters)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_UpdatePipelineSchedule() {
	suite.Run("success - schedule set and listed", func() {
		// arrange
		pipeline := suite.createPipeline()
		schedule := util.AsPtr("0 4 * * *")
		branch := util.AsPtr("main")
		jobID := util.AsPtr("7f9c2c5e-46f8-4b39-a7a5-2f1f2b5c9d01")

		// act
		updateErr := suite.pipelineStore.UpdatePipelineSchedule(
			context.Background(),
			pipeline.PipelineID,
			schedule,
			branch,
			jobID,
		)
		scheduled, listErr := suite.pipelineStore.ListScheduledPipelines(context.Background())

		// assert
		suite.NoError(updateErr)
		suite.NoError(listErr)
		suite.True(slices.ContainsFunc(scheduled, func(p *Pipeline) bool {
			return p.PipelineID == pipeline.PipelineID
		}))
	})
	suite.Run("success - clearing the schedule removes it from the scheduled list", func() {
		// arrange
		pipeline := suite.createPipeline()
		suite.NoError(suite.pipelineStore.UpdatePipelineSchedule(
			context.Background(),
			pipeline.PipelineID,
			util.AsPtr("0 4 * * *"),
			util.AsPtr("main"),
			nil,
		))

		// act
		updateErr := suite.pipelineStore.UpdatePipelineSchedule(
			context.Background(),
			pipeline.PipelineID,
			nil,
			nil,
			nil,
		)
		scheduled, listErr := suite.pipelineStore.ListScheduledPipelines(context.Background())

		// assert
		suite.NoError(updateErr)
		suite.NoError(listErr)
		suite.False(slices.ContainsFunc(scheduled, func(p *Pipeline) bool {
			return p.PipelineID == pipeline.PipelineID
		}))
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_DeletePipeline() {
	suite.Run("success - pipeline is deleted", func() {
		// arrange
		pipeline := suite.createPipeline()

		// act
		deleteErr := suite.pipelineStore.DeletePipeline(context.Background(), pipeline.PipelineID)
		p, readErr := suite.pipelineStore.ReadPipelineByID(
			context.Background(),
			pipeline.PipelineID,
		)

		// assert
		suite.NoError(deleteErr)
		suite.Error(readErr)
		suite.Nil(p)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_ListPipelines() {
	suite.Run("success - pipelines found", func() {
		// arrange
		pipeline := suite.createPipeline()

		// act
		pipelines, err := suite.pipelineStore.ListPipelines(context.Background())

		// assert
		suite.NoError(err)
		suite.True(slices.ContainsFunc(pipelines, func(p *Pipeline) bool {
			return p.PipelineID == pipeline.PipelineID
		}))
	})
}

func (suite *pipelineSQLiteStoreSuite) createPipeline() *Pipeline {
	p, err := suite.pipelineStore.CreatePipeline(
		context.Background(),
		suite.agent.AgentID,
		fmt.Sprintf("pipeline%d", time.Now().UTC().UnixNano()),
		"",
		"git@github.com:acme/app.git",
		"deploy/pipeline.yml",
		nil,
	)
	suite.NoError(err)
	return p
}
