package testutil

import (
	"context"

	"github.com/imshubhamkaushik/deploypipe/internal/service"
	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockPipelineService struct {
	mock.Mock
}

func (m *MockPipelineService) CreatePipeline(
	ctx context.Context,
	agentID int64,
	name, description, repository, scriptPath string,
	parameters *string,
) (*store.Pipeline, error) {
	args := m.Called(ctx, agentID, name, description, repository, scriptPath, parameters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Pipeline), nil
}

func (m *MockPipelineService) UpdatePipeline(
	ctx context.Context,
	pipelineID, agentID int64,
	name, description, repository, scriptPath string,
	parameters *string,
) error {
	args := m.Called(ctx, pipelineID, agentID, name, description, repository, scriptPath, parameters)
	return args.Error(0)
}

func (m *MockPipelineService) UpdatePipelineSchedule(
	ctx context.Context,
	id int64,
	schedule, branch *string,
) error {
	args := m.Called(ctx, id, schedule, branch)
	return args.Error(0)
}

func (m *MockPipelineService) DeletePipeline(ctx context.Context, pipelineID int64) error {
	args := m.Called(ctx, pipelineID)
	return args.Error(0)
}

func (m *MockPipelineService) GetPipelineByID(
	ctx context.Context,
	pipelineID int64,
) (*store.Pipeline, error) {
	args := m.Called(ctx, pipelineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Pipeline), nil
}

func (m *MockPipelineService) ListPipelines(ctx context.Context) ([]*store.Pipeline, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Pipeline), nil
}

func (m *MockPipelineService) CollectPipelineRunArtifacts(
	ctx context.Context,
	pipelineID, runID int64,
) (string, error) {
	args := m.Called(ctx, pipelineID, runID)
	return args.String(0), args.Error(1)
}

func (m *MockPipelineService) CreatePipelineRun(
	ctx context.Context,
	pipelineID int64,
	branch string,
) (*store.Run, error) {
	args := m.Called(ctx, pipelineID, branch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), nil
}

func (m *MockPipelineService) DeletePipelineRun(ctx context.Context, runID int64) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

func (m *MockPipelineService) GetPipelineRunByID(
	ctx context.Context,
	runID int64,
) (*store.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), nil
}

func (m *MockPipelineService) ListPipelineRuns(
	ctx context.Context,
	pipelineID int64,
) ([]store.Run, error) {
	args := m.Called(ctx, pipelineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), nil
}

func (m *MockPipelineService) ListLatestPipelineRuns(
	ctx context.Context,
	id, limit int64,
) ([]store.Run, error) {
	args := m.Called(ctx, id, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), nil
}

func (m *MockPipelineService) ListPipelineRunsPaginated(
	ctx context.Context,
	id, limit, offset int64,
) ([]store.Run, error) {
	args := m.Called(ctx, id, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), nil
}

func (m *MockPipelineService) GetPipelineRunCount(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPipelineService) ListRunStageResults(
	ctx context.Context,
	runID int64,
) ([]store.StageResult, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.StageResult), nil
}

func (m *MockPipelineService) GetPipelineRunQueue(id int64) (*service.RunQueue, bool) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*service.RunQueue), args.Bool(1)
}

func (m *MockPipelineService) EnqueueRun(run *store.Run) error {
	args := m.Called(run)
	return args.Error(0)
}

func (m *MockPipelineService) GetAPIKeyByValue(
	ctx context.Context,
	value string,
) (*store.APIKey, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.APIKey), nil
}
