package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupAgentRoutes(g *echo.Group, agentService AgentServicer) {
	h := NewAgentHandler(agentService)
	agentsGroup := g.Group("/agents")
	agentsGroup.GET("", h.GetAgents)
	agentsGroup.POST("", h.PostAgent)
	agentsGroup.GET("/:agent_id", h.GetAgent)
	agentsGroup.PATCH("/:agent_id", h.PatchAgent)
	agentsGroup.DELETE("/:agent_id", h.DeleteAgent)
	agentsGroup.POST("/:agent_id/test", h.PostTestAgentConnection)
}

type AgentServicer interface {
	CreateAgent(
		ctx context.Context,
		agentCredentialID *int64,
		name, hostname, workspace, description, osType string,
	) (*store.Agent, error)
	GetAgentByID(ctx context.Context, id int64) (*store.Agent, error)
	ListAgents(ctx context.Context) ([]*store.Agent, error)
	UpdateAgent(
		ctx context.Context,
		agentID int64, agentCredentialID *int64,
		name, hostname, workspace, description, osType string,
	) error
	DeleteAgent(ctx context.Context, id int64) error
	TestAgentConnection(ctx context.Context, id int64) error
}

type AgentHandler struct {
	agentService AgentServicer
}

func NewAgentHandler(agentService AgentServicer) *AgentHandler {
	return &AgentHandler{agentService}
}

func (h *AgentHandler) GetAgents(c echo.Context) error {
	agents, err := h.agentService.ListAgents(c.Request().Context())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong while listing agents",
		)
	}
	return c.JSON(http.StatusOK, agents)
}

func (h *AgentHandler) GetAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	agent, err := h.agentService.GetAgentByID(c.Request().Context(), ap.AgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "agent was not found")
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong while getting agent data",
		)
	}

	return c.JSON(http.StatusOK, agent)
}

func (h *AgentHandler) PostAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	agent, err := h.agentService.CreateAgent(
		c.Request().Context(),
		ap.AgentCredentialID,
		ap.Name,
		ap.Hostname,
		ap.Workspace,
		ap.Description,
		ap.OSType,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err, http.StatusConflict,
				"an agent with the name "+ap.Name+" already exists",
			)
		}
		return newError(err,
			http.StatusInternalServerError, "unable to create agent",
		)
	}

	return c.JSON(http.StatusCreated, agent)
}

func (h *AgentHandler) PatchAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	ap.Name = strings.TrimSpace(ap.Name)
	ap.Hostname = strings.TrimSpace(ap.Hostname)
	ap.Workspace = strings.TrimSpace(ap.Workspace)

	if err := h.agentService.UpdateAgent(
		c.Request().Context(),
		ap.AgentID,
		ap.AgentCredentialID,
		ap.Name,
		ap.Hostname,
		ap.Workspace,
		ap.Description,
		ap.OSType,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "agent was not found")
		}
		return newError(err,
			http.StatusInternalServerError, "unable to update agent",
		)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AgentHandler) DeleteAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	if err := h.agentService.DeleteAgent(c.Request().Context(), ap.AgentID); err != nil {
		if isForeignKeyConstraintError(err) {
			return newError(err, http.StatusConflict,
				"agent is in use by a pipeline",
			)
		}
		return newError(err,
			http.StatusInternalServerError, "unable to delete agent",
		)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AgentHandler) PostTestAgentConnection(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	if err := h.agentService.TestAgentConnection(
		c.Request().Context(), ap.AgentID,
	); err != nil {
		return newError(err, http.StatusBadGateway, "agent connection failed")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
