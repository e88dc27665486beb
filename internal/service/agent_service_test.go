package service

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"testing"

	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/imshubhamkaushik/deploypipe/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockAgentStore struct {
	mock.Mock
}

func (m *MockAgentStore) CreateAgent(
	ctx context.Context,
	credentialID *int64,
	name, hostname, workspace, description, osType string,
) (*store.Agent, error) {
	args := m.Called(ctx, credentialID, name, hostname, workspace, description, osType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Agent), nil
}

func (m *MockAgentStore) ReadAgentByID(ctx context.Context, id int64) (*store.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Agent), nil
}

func (m *MockAgentStore) UpdateAgent(
	ctx context.Context,
	id int64,
	credentialID *int64,
	name, hostname, workspace, description, osType string,
) error {
	args := m.Called(ctx, id, credentialID, name, hostname, workspace, description, osType)
	return args.Error(0)
}

func (m *MockAgentStore) DeleteAgent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAgentStore) ListAgents(ctx context.Context) ([]*store.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Agent), nil
}

func TestAgentService_CreateAgent(t *testing.T) {
	t.Run("success - agent is created", func(t *testing.T) {
		// arrange
		expectedAgent := generateAgent()
		ctx := context.Background()
		mockStore := new(MockAgentStore)
		mockStore.On(
			"CreateAgent",
			ctx,
			expectedAgent.AgentCredentialID,
			expectedAgent.Name,
			expectedAgent.Hostname,
			expectedAgent.Workspace,
			expectedAgent.Description,
			expectedAgent.OSType,
		).Return(expectedAgent, nil)
		agentService := NewAgentService(mockStore, nil)

		// act
		a, err := agentService.CreateAgent(
			ctx,
			expectedAgent.AgentCredentialID,
			expectedAgent.Name,
			expectedAgent.Hostname,
			expectedAgent.Workspace,
			expectedAgent.Description,
			expectedAgent.OSType,
		)

		// assert
		assert.NoError(t, err)
		assert.NotNil(t, a)
		assert.Equal(t, expectedAgent.AgentID, a.AgentID)
	})
}

func TestAgentService_ListAgents(t *testing.T) {
	t.Run("success - no rows is an empty list, not an error", func(t *testing.T) {
		// arrange
		ctx := context.Background()
		mockStore := new(MockAgentStore)
		mockStore.On("ListAgents", ctx).Return(nil, sql.ErrNoRows)
		agentService := NewAgentService(mockStore, nil)

		// act
		agents, err := agentService.ListAgents(ctx)

		// assert
		assert.NoError(t, err)
		assert.Empty(t, agents)
	})
	t.Run("failure - store error propagates", func(t *testing.T) {
		// arrange
		ctx := context.Background()
		storeErr := errors.New("database is locked")
		mockStore := new(MockAgentStore)
		mockStore.On("ListAgents", ctx).Return(nil, storeErr)
		agentService := NewAgentService(mockStore, nil)

		// act
		agents, err := agentService.ListAgents(ctx)

		// assert
		assert.ErrorIs(t, err, storeErr)
		assert.Nil(t, agents)
	})
}

func TestAgentService_TestAgentConnection(t *testing.T) {
	t.Run("success - local agent always passes", func(t *testing.T) {
		// arrange
		agent := generateAgent()
		agent.Hostname = "local"
		ctx := context.Background()
		mockStore := new(MockAgentStore)
		mockStore.On("ReadAgentByID", ctx, agent.AgentID).Return(agent, nil)
		agentService := NewAgentService(mockStore, nil)

		// act
		err := agentService.TestAgentConnection(ctx, agent.AgentID)

		// assert
		assert.NoError(t, err)
	})
	t.Run("failure - remote agent without credential", func(t *testing.T) {
		// arrange
		agent := generateAgent()
		agent.AgentCredentialID = nil
		ctx := context.Background()
		mockStore := new(MockAgentStore)
		mockStore.On("ReadAgentByID", ctx, agent.AgentID).Return(agent, nil)
		agentService := NewAgentService(mockStore, nil)

		// act
		err := agentService.TestAgentConnection(ctx, agent.AgentID)

		// assert
		assert.ErrorContains(t, err, "no credential")
	})
}

func generateAgent() *store.Agent {
	return &store.Agent{
		AgentID:           rand.Int63(),
		AgentCredentialID: util.AsPtr(rand.Int63()),
		Name:              "build-agent",
		Hostname:          "build-01.internal",
		Workspace:         "/var/lib/deploypipe",
		Description:       "",
		OSType:            "unix",
	}
}
