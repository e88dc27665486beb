package handler

import (
	"net/http"

	"github.com/imshubhamkaushik/deploypipe/internal"
	"github.com/labstack/echo/v4"
)

func SetupConfigRoutes(g *echo.Group) {
	g.GET("/config", GetConfig)
	g.PUT("/config", PutConfig)
}

func GetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, internal.Config)
}

func PutConfig(c echo.Context) error {
	cp := new(ConfigParams)
	if err := c.Bind(cp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid config data")
	}

	config := &internal.Configuration{
		QueueSize:         cp.QueueSize,
		DeployGraceSecs:   internal.NewSecondsDuration(cp.DeployGraceSeconds),
		GatePollSecs:      internal.NewSecondsDuration(cp.GatePollSeconds),
		GateTimeoutSecs:   internal.NewSecondsDuration(cp.GateTimeoutSeconds),
		DefaultStepSecs:   internal.NewSecondsDuration(cp.DefaultStepTimeoutSecs),
		SSHConnectTimeout: internal.NewSecondsDuration(cp.SSHConnectTimeoutSeconds),
	}

	if err := internal.UpdateConfiguration(config); err != nil {
		return newError(err,
			http.StatusInternalServerError,
			"unable to update configuration file",
		)
	}

	return c.JSON(http.StatusOK, internal.Config)
}
