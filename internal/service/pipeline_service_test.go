package service

import (
	"context"
	"math/rand"
	"testing"

	"github.com/imshubhamkaushik/deploypipe/internal"
	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/imshubhamkaushik/deploypipe/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPipelineStore struct {
	mock.Mock
}

func (m *MockPipelineStore) CreatePipeline(
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

func (m *MockPipelineStore) ReadPipelineByID(ctx context.Context, id int64) (*store.Pipeline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Pipeline), nil
}

func (m *MockPipelineStore) ReadPipelineRunData(
	ctx context.Context,
	id int64,
) (*store.PipelineRunData, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.PipelineRunData), nil
}

func (m *MockPipelineStore) UpdatePipeline(
	ctx context.Context,
	id, agentID int64,
	name, description, repository, scriptPath string,
	parameters *string,
) error {
	args := m.Called(ctx, id, agentID, name, description, repository, scriptPath, parameters)
	return args.Error(0)
}

func (m *MockPipelineStore) UpdatePipelineSchedule(
	ctx context.Context,
	id int64,
	schedule, branch, jobID *string,
) error {
	args := m.Called(ctx, id, schedule, branch, jobID)
	return args.Error(0)
}

func (m *MockPipelineStore) UpdatePipelineScheduleJobID(
	ctx context.Context,
	id int64,
	jobID *string,
) error {
	args := m.Called(ctx, id, jobID)
	return args.Error(0)
}

func (m *MockPipelineStore) DeletePipeline(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPipelineStore) ListPipelines(ctx context.Context) ([]*store.Pipeline, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Pipeline), nil
}

func (m *MockPipelineStore) ListScheduledPipelines(ctx context.Context) ([]*store.Pipeline, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Pipeline), nil
}

func setQueueConfig(t *testing.T) {
	t.Helper()
	prev := internal.Config
	t.Cleanup(func() { internal.Config = prev })
	internal.Config = &internal.Configuration{QueueSize: 3}
}

func TestPipelineService_CreatePipeline(t *testing.T) {
	t.Run("success - pipeline created with a running queue", func(t *testing.T) {
		// arrange
		setQueueConfig(t)
		expectedPipeline := generatePipeline()
		ctx := context.Background()
		mockStore := new(MockPipelineStore)
		mockStore.On(
			"CreatePipeline",
			ctx,
			expectedPipeline.PipelineAgentID,
			expectedPipeline.Name,
			expectedPipeline.Description,
			expectedPipeline.Repository,
			expectedPipeline.ScriptPath,
			expectedPipeline.Parameters,
		).Return(expectedPipeline, nil)
		pipelineService := NewPipelineService(mockStore, nil, nil, nil, nil, nil, nil)

		// act
		p, err := pipelineService.CreatePipeline(
			ctx,
			expectedPipeline.PipelineAgentID,
			expectedPipeline.Name,
			expectedPipeline.Description,
			expectedPipeline.Repository,
			expectedPipeline.ScriptPath,
			expectedPipeline.Parameters,
		)

		// assert
		assert.NoError(t, err)
		assert.NotNil(t, p)
		_, ok := pipelineService.GetPipelineRunQueue(p.PipelineID)
		assert.True(t, ok)
	})
	t.Run("failure - parameters are not a JSON object", func(t *testing.T) {
		// arrange
		setQueueConfig(t)
		ctx := context.Background()
		mockStore := new(MockPipelineStore)
		pipelineService := NewPipelineService(mockStore, nil, nil, nil, nil, nil, nil)

		// act
		p, err := pipelineService.CreatePipeline(
			ctx,
			1,
			"pipeline",
			"",
			"git@github.com:acme/app.git",
			"deploy/pipeline.yml",
			util.AsPtr("not json"),
		)

		// assert
		assert.ErrorContains(t, err, "invalid pipeline parameters")
		assert.Nil(t, p)
		mockStore.AssertNotCalled(t, "CreatePipeline")
	})
}

func TestPipelineService_GetPipelineRunData(t *testing.T) {
	t.Run("success - agent ssh key decrypted into the run data", func(t *testing.T) {
		// arrange
		ctx := context.Background()
		mockStore := new(MockPipelineStore)
		mockStore.On("ReadPipelineRunData", ctx, int64(1)).Return(&store.PipelineRunData{
			PipelineID: 1,
			Hostname:   "build-01.internal",
			Username:   util.AsPtr("deploy"),
			SecretHash: util.AsPtr("aabbcc"),
		}, nil)
		enc := new(MockEncrypter)
		enc.On("DecryptAES", "aabbcc").Return([]byte("private key"), nil)
		credentialService := NewCredentialService(nil, enc)
		pipelineService := NewPipelineService(
			mockStore, nil, nil, credentialService, nil, nil, nil,
		)

		// act
		prd, err := pipelineService.GetPipelineRunData(ctx, 1)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, []byte("private key"), prd.Secret)
	})
	t.Run("success - local agent without credential has no secret", func(t *testing.T) {
		// arrange
		ctx := context.Background()
		mockStore := new(MockPipelineStore)
		mockStore.On("ReadPipelineRunData", ctx, int64(2)).Return(&store.PipelineRunData{
			PipelineID: 2,
			Hostname:   "local",
		}, nil)
		pipelineService := NewPipelineService(mockStore, nil, nil, nil, nil, nil, nil)

		// act
		prd, err := pipelineService.GetPipelineRunData(ctx, 2)

		// assert
		assert.NoError(t, err)
		assert.Nil(t, prd.Secret)
	})
}

func TestPipelineService_EnqueueRun(t *testing.T) {
	t.Run("success - run enqueued on the pipeline's queue", func(t *testing.T) {
		// arrange
		pipelineService := NewPipelineService(nil, nil, nil, nil, nil, nil, nil)
		pipelineService.AddRunQueue(1, 3)

		// act
		err := pipelineService.EnqueueRun(&store.Run{RunID: 10, RunPipelineID: 1})

		// assert
		assert.NoError(t, err)
	})
	t.Run("failure - pipeline has no queue", func(t *testing.T) {
		// arrange
		pipelineService := NewPipelineService(nil, nil, nil, nil, nil, nil, nil)

		// act
		err := pipelineService.EnqueueRun(&store.Run{RunID: 10, RunPipelineID: 99})

		// assert
		assert.ErrorContains(t, err, "run queue for pipeline 99 does not exist")
	})
}

func TestPipelineService_DeletePipeline(t *testing.T) {
	t.Run("success - pipeline and its queue removed", func(t *testing.T) {
		// arrange
		ctx := context.Background()
		mockStore := new(MockPipelineStore)
		mockStore.On("DeletePipeline", ctx, int64(1)).Return(nil)
		pipelineService := NewPipelineService(mockStore, nil, nil, nil, nil, nil, nil)
		pipelineService.AddRunQueue(1, 3)

		// act
		err := pipelineService.DeletePipeline(ctx, 1)

		// assert
		assert.NoError(t, err)
		_, ok := pipelineService.GetPipelineRunQueue(1)
		assert.False(t, ok)
	})
}

func TestDecodeParameters(t *testing.T) {
	t.Run("success - nil yields an empty map", func(t *testing.T) {
		params, err := decodeParameters(nil)
		assert.NoError(t, err)
		assert.Empty(t, params)
	})
	t.Run("success - JSON object decoded", func(t *testing.T) {
		params, err := decodeParameters(util.AsPtr(`{"NAMESPACE":"staging","REGION":"eu-west-1"}`))
		assert.NoError(t, err)
		assert.Equal(t, map[string]string{"NAMESPACE": "staging", "REGION": "eu-west-1"}, params)
	})
	t.Run("failure - invalid JSON", func(t *testing.T) {
		_, err := decodeParameters(util.AsPtr("{"))
		assert.Error(t, err)
	})
}

func TestRepoDirName(t *testing.T) {
	assert.Equal(t, "app", repoDirName("git@github.com:acme/app.git"))
	assert.Equal(t, "app", repoDirName("https://github.com/acme/app.git"))
	assert.Equal(t, "app", repoDirName("/srv/git/app"))
}

func generatePipeline() *store.Pipeline {
	return &store.Pipeline{
		PipelineID:      rand.Int63(),
		PipelineAgentID: rand.Int63(),
		Name:            "deploy-app",
		Description:     "",
		Repository:      "git@github.com:acme/app.git",
		ScriptPath:      "deploy/pipeline.yml",
		Parameters:      util.AsPtr(`{"NAMESPACE":"staging"}`),
	}
}
