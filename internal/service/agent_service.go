package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/imshubhamkaushik/deploypipe/internal/store"
)

type AgentServicer interface {
	CreateAgent(
		ctx context.Context,
		agentCredentialID *int64,
		name, hostname, workspace, description, osType string,
	) (*store.Agent, error)
	GetAgentByID(context.Context, int64) (*store.Agent, error)
	ListAgents(context.Context) ([]*store.Agent, error)
	UpdateAgent(
		ctx context.Context,
		agentID int64, agentCredentialID *int64,
		name, hostname, workspace, description, osType string,
	) error
	DeleteAgent(context.Context, int64) error

	TestAgentConnection(context.Context, int64) error
}

type AgentService struct {
	agentStore store.AgentStore

	credentialService CredentialServicer
}

func NewAgentService(s store.AgentStore, cs CredentialServicer) *AgentService {
	return &AgentService{agentStore: s, credentialService: cs}
}

func (s *AgentService) CreateAgent(
	ctx context.Context,
	agentCredentialID *int64,
	name, hostname, workspace, description, osType string,
) (*store.Agent, error) {
	a, err := s.agentStore.CreateAgent(
		ctx,
		agentCredentialID,
		name,
		hostname,
		workspace,
		description,
		osType,
	)
	return a, err
}

func (s *AgentService) GetAgentByID(ctx context.Context, agentID int64) (*store.Agent, error) {
	a, err := s.agentStore.ReadAgentByID(ctx, agentID)
	return a, err
}

func (s *AgentService) ListAgents(ctx context.Context) ([]*store.Agent, error) {
	agents, err := s.agentStore.ListAgents(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return agents, nil
}

func (s *AgentService) UpdateAgent(
	ctx context.Context,
	agentID int64,
	agentCredentialID *int64,
	name, hostname, workspace, description, osType string,
) error {
	return s.agentStore.UpdateAgent(
		ctx,
		agentID,
		agentCredentialID,
		name,
		hostname,
		workspace,
		description,
		osType,
	)
}

func (s *AgentService) DeleteAgent(ctx context.Context, agentID int64) error {
	return s.agentStore.DeleteAgent(ctx, agentID)
}

// TestAgentConnection dials the agent over SSH and closes the
// connection again. Local agents always pass.
func (s *AgentService) TestAgentConnection(ctx context.Context, agentID int64) error {
	a, err := s.agentStore.ReadAgentByID(ctx, agentID)
	if err != nil {
		return err
	}
	if a.IsLocal() {
		return nil
	}
	if a.AgentCredentialID == nil {
		return fmt.Errorf("agent '%s' has no credential for SSH access", a.Name)
	}
	c, err := s.credentialService.GetCredentialByID(ctx, *a.AgentCredentialID)
	if err != nil {
		return err
	}
	privateKey, err := s.credentialService.DecryptAES(c.SecretHash)
	if err != nil {
		return err
	}
	client, err := DialAgent(c.Username, a.Hostname, privateKey, 10*time.Second)
	if err != nil {
		return err
	}
	return client.Close()
}
