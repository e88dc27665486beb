package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/imshubhamkaushik/deploypipe/internal"
	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/imshubhamkaushik/deploypipe/internal/util"
	"github.com/pkg/sftp"
)

type PipelineWriter interface {
	CreatePipeline(
		context.Context,
		int64,
		string, string, string, string,
		*string,
	) (*store.Pipeline, error)
	UpdatePipeline(context.Context, int64, int64, string, string, string, string, *string) error
	UpdatePipelineSchedule(context.Context, int64, *string, *string, *string) error
	UpdatePipelineScheduleJobID(context.Context, int64, *string) error
	DeletePipeline(context.Context, int64) error
}

type PipelineReader interface {
	ReadPipelineByID(context.Context, int64) (*store.Pipeline, error)
	ReadPipelineRunData(context.Context, int64) (*store.PipelineRunData, error)
	ListPipelines(context.Context) ([]*store.Pipeline, error)
	ListScheduledPipelines(context.Context) ([]*store.Pipeline, error)
}

type PipelineStore interface {
	PipelineWriter
	PipelineReader
}

type RunWriter interface {
	CreatePipelineRun(context.Context, int64, string) (*store.Run, error)
	UpdatePipelineRunStartedOn(context.Context, int64, string, store.RunStatus, *time.Time) error
	UpdatePipelineRunEndedOn(context.Context, int64, store.RunStatus, *string, *time.Time) error
	AppendPipelineRunOutput(context.Context, int64, string) error
	DeletePipelineRun(context.Context, int64) error
}

type RunReader interface {
	ReadRunByID(context.Context, int64) (*store.Run, error)
	ListPipelineRuns(context.Context, int64) ([]store.Run, error)
	ListLatestPipelineRuns(context.Context, int64, int64) ([]store.Run, error)
	ListPipelineRunsPaginated(context.Context, int64, int64, int64) ([]store.Run, error)
	CountPipelineRuns(context.Context, int64) (int64, error)
}

type RunStore interface {
	RunWriter
	RunReader
}

type StageResultStore interface {
	CreateStageResult(context.Context, int64, string, int64, int64, int64) (*store.StageResult, error)
	ListRunStageResults(context.Context, int64) ([]store.StageResult, error)
}

type PipelineServicer interface {
	CreatePipeline(context.Context, int64, string, string, string, string, *string) (*store.Pipeline, error)
	GetPipelineByID(context.Context, int64) (*store.Pipeline, error)
	GetPipelineAndAgents(context.Context, int64) (*store.Pipeline, []*store.Agent, error)
	GetPipelineRunData(context.Context, int64) (*store.PipelineRunData, error)
	ListPipelines(context.Context) ([]*store.Pipeline, error)
	ListScheduledPipelines(context.Context) ([]*store.Pipeline, error)
	UpdatePipeline(context.Context, int64, int64, string, string, string, string, *string) error
	UpdatePipelineSchedule(context.Context, int64, *string, *string) error
	UpdatePipelineScheduleJobID(context.Context, int64, *string) error
	DeletePipeline(context.Context, int64) error

	CreatePipelineRun(context.Context, int64, string) (*store.Run, error)
	GetPipelineRunByID(context.Context, int64) (*store.Run, error)
	UpdatePipelineRunStartedOn(context.Context, int64, string, store.RunStatus, *time.Time) error
	UpdatePipelineRunEndedOn(context.Context, int64, store.RunStatus, *string, *time.Time) error
	AppendPipelineRunOutput(context.Context, int64, string) error
	DeletePipelineRun(context.Context, int64) error
	ListPipelineRuns(context.Context, int64) ([]store.Run, error)
	ListLatestPipelineRuns(context.Context, int64, int64) ([]store.Run, error)
	ListPipelineRunsPaginated(context.Context, int64, int64, int64) ([]store.Run, error)
	GetPipelineRunCount(context.Context, int64) (int64, error)

	CreateStageResult(context.Context, int64, string, int64, int64, int64) (*store.StageResult, error)
	ListRunStageResults(context.Context, int64) ([]store.StageResult, error)

	CollectPipelineRunArtifacts(context.Context, int64, int64) (string, error)

	GetAPIKeyByValue(context.Context, string) (*store.APIKey, error)

	SchedulePipelineRun(int64, string, string) (*string, error)
	EnqueueRun(*store.Run) error
	GetPipelineRunQueue(int64) (*RunQueue, bool)
}

type PipelineService struct {
	pipelineStore    PipelineStore
	runStore         RunStore
	stageResultStore StageResultStore
	credentialSvc    CredentialServicer
	agentStore       store.AgentStore
	apiKeySvc        APIKeyServicer
	scheduler        gocron.Scheduler

	mu     sync.Mutex
	queues map[int64]*RunQueue
}

func NewPipelineService(
	pipelineStore PipelineStore,
	runStore RunStore,
	stageResultStore StageResultStore,
	credentialSvc CredentialServicer,
	agentStore store.AgentStore,
	apiKeySvc APIKeyServicer,
	scheduler gocron.Scheduler,
) *PipelineService {
	return &PipelineService{
		pipelineStore:    pipelineStore,
		runStore:         runStore,
		stageResultStore: stageResultStore,
		credentialSvc:    credentialSvc,
		agentStore:       agentStore,
		apiKeySvc:        apiKeySvc,
		scheduler:        scheduler,
		queues:           make(map[int64]*RunQueue),
	}
}

func (s *PipelineService) InitializeRunQueues(ctx context.Context) error {
	pipelines, err := s.ListPipelines(ctx)
	if err != nil {
		return err
	}

	ids := make([]int64, len(pipelines))
	for i, p := range pipelines {
		ids[i] = p.PipelineID
	}

	s.AddRunQueues(ids, internal.Config.QueueSize)
	s.StartRunQueues()
	return nil
}

func (s *PipelineService) CreatePipeline(
	ctx context.Context,
	agentID int64,
	name, description, repository, scriptPath string,
	parameters *string,
) (*store.Pipeline, error) {
	if parameters != nil {
		if _, err := decodeParameters(parameters); err != nil {
			return nil, fmt.Errorf("invalid pipeline parameters: %+w", err)
		}
	}
	p, err := s.pipelineStore.CreatePipeline(
		ctx,
		agentID,
		name,
		description,
		repository,
		scriptPath,
		parameters,
	)
	if err != nil {
		return nil, err
	}
	s.AddRunQueue(p.PipelineID, internal.Config.QueueSize)
	if err := s.StartRunQueue(p.PipelineID); err != nil {
		return p, err
	}
	return p, nil
}

func (s *PipelineService) GetPipelineByID(
	ctx context.Context,
	pipelineID int64,
) (*store.Pipeline, error) {
	return s.pipelineStore.ReadPipelineByID(ctx, pipelineID)
}

func (s *PipelineService) GetPipelineAndAgents(
	ctx context.Context,
	id int64,
) (*store.Pipeline, []*store.Agent, error) {
	p, err := s.pipelineStore.ReadPipelineByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	agents, err := s.agentStore.ListAgents(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, err
	}
	return p, agents, nil
}

// GetPipelineRunData resolves everything a run needs, including the
// decrypted private key of the agent's SSH credential.
func (s *PipelineService) GetPipelineRunData(
	ctx context.Context,
	id int64,
) (*store.PipelineRunData, error) {
	prd, err := s.pipelineStore.ReadPipelineRunData(ctx, id)
	if err != nil {
		return nil, err
	}

	if prd.SecretHash != nil {
		privateKey, err := s.credentialSvc.DecryptAES(*prd.SecretHash)
		if err != nil {
			return nil, err
		}
		prd.Secret = privateKey
	}

	return prd, nil
}

func (s *PipelineService) ListPipelines(
	ctx context.Context,
) ([]*store.Pipeline, error) {
	pipelines, err := s.pipelineStore.ListPipelines(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return pipelines, nil
}

func (s *PipelineService) ListScheduledPipelines(
	ctx context.Context,
) ([]*store.Pipeline, error) {
	pipelines, err := s.pipelineStore.ListScheduledPipelines(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return pipelines, nil
}

func (s *PipelineService) UpdatePipeline(
	ctx context.Context,
	pipelineID, agentID int64,
	name, description, repository, scriptPath string,
	parameters *string,
) error {
	if parameters != nil {
		if _, err := decodeParameters(parameters); err != nil {
			return fmt.Errorf("invalid pipeline parameters: %+w", err)
		}
	}
	return s.pipelineStore.UpdatePipeline(
		ctx,
		pipelineID,
		agentID,
		name,
		description,
		repository,
		scriptPath,
		parameters,
	)
}

func (s *PipelineService) UpdatePipelineSchedule(
	ctx context.Context,
	id int64,
	schedule, branch *string,
) error {
	p, err := s.pipelineStore.ReadPipelineByID(ctx, id)
	if err != nil {
		return err
	}

	if schedule == nil && p.Schedule != nil && s.scheduler != nil {
		if err := s.scheduler.RemoveJob(uuid.MustParse(*p.ScheduleJobID)); err != nil {
			log.Println("unable to remove existing job: ", err)
		}
		return s.pipelineStore.UpdatePipelineSchedule(ctx, p.PipelineID, nil, nil, nil)
	}

	jobID, err := s.SchedulePipelineRun(p.PipelineID, *schedule, *branch)
	if err != nil {
		return err
	}
	return s.pipelineStore.UpdatePipelineSchedule(
		ctx,
		p.PipelineID,
		schedule,
		branch,
		jobID,
	)
}

func (s *PipelineService) UpdatePipelineScheduleJobID(
	ctx context.Context,
	pipelineID int64,
	jobID *string,
) error {
	return s.pipelineStore.UpdatePipelineScheduleJobID(ctx, pipelineID, jobID)
}

func (s *PipelineService) DeletePipeline(
	ctx context.Context, pipelineID int64,
) error {
	err := s.pipelineStore.DeletePipeline(ctx, pipelineID)
	if err != nil {
		return err
	}
	s.RemoveRunQueue(pipelineID)
	return nil
}

func (s *PipelineService) CreatePipelineRun(
	ctx context.Context,
	pipelineID int64,
	branch string,
) (*store.Run, error) {
	r, err := s.runStore.CreatePipelineRun(ctx, pipelineID, branch)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PipelineService) GetPipelineRunByID(
	ctx context.Context, runID int64,
) (*store.Run, error) {
	return s.runStore.ReadRunByID(ctx, runID)
}

func (s *PipelineService) UpdatePipelineRunStartedOn(
	ctx context.Context,
	runID int64,
	workingDirectory string,
	status store.RunStatus,
	startedOn *time.Time,
) error {
	return s.runStore.UpdatePipelineRunStartedOn(
		ctx, runID, workingDirectory, status, startedOn,
	)
}

func (s *PipelineService) UpdatePipelineRunEndedOn(
	ctx context.Context,
	runID int64,
	status store.RunStatus,
	artifacts *string,
	endedOn *time.Time,
) error {
	return s.runStore.UpdatePipelineRunEndedOn(
		ctx, runID, status, artifacts, endedOn,
	)
}

func (s *PipelineService) AppendPipelineRunOutput(
	ctx context.Context,
	runID int64,
	out string,
) error {
	return s.runStore.AppendPipelineRunOutput(ctx, runID, out)
}

func (s *PipelineService) DeletePipelineRun(
	ctx context.Context, runID int64,
) error {
	return s.runStore.DeletePipelineRun(ctx, runID)
}

func (s *PipelineService) ListPipelineRuns(
	ctx context.Context,
	pipelineID int64,
) ([]store.Run, error) {
	runs, err := s.runStore.ListPipelineRuns(ctx, pipelineID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return runs, nil
}

func (s *PipelineService) ListLatestPipelineRuns(
	ctx context.Context,
	pipelineID, limit int64,
) ([]store.Run, error) {
	return s.runStore.ListLatestPipelineRuns(ctx, pipelineID, limit)
}

func (s *PipelineService) ListPipelineRunsPaginated(
	ctx context.Context,
	pipelineID, limit, offset int64,
) ([]store.Run, error) {
	return s.runStore.ListPipelineRunsPaginated(
		ctx, pipelineID, limit, offset,
	)
}

func (s *PipelineService) GetPipelineRunCount(
	ctx context.Context, id int64,
) (int64, error) {
	return s.runStore.CountPipelineRuns(ctx, id)
}

func (s *PipelineService) CreateStageResult(
	ctx context.Context,
	runID int64,
	stageName string,
	exitCode, durationMs, attempt int64,
) (*store.StageResult, error) {
	return s.stageResultStore.CreateStageResult(
		ctx, runID, stageName, exitCode, durationMs, attempt,
	)
}

func (s *PipelineService) ListRunStageResults(
	ctx context.Context,
	runID int64,
) ([]store.StageResult, error) {
	return s.stageResultStore.ListRunStageResults(ctx, runID)
}

func (s *PipelineService) GetAPIKeyByValue(
	ctx context.Context,
	value string,
) (*store.APIKey, error) {
	return s.apiKeySvc.GetAPIKeyByValue(ctx, value)
}

// CollectPipelineRunArtifacts downloads artifact paths declared in the
// run's pipeline script into artifacts/<run id>. Remote agents are
// read over SFTP, local agents straight from the filesystem.
func (s *PipelineService) CollectPipelineRunArtifacts(
	ctx context.Context,
	pipelineID, runID int64,
) (string, error) {
	if exists, _ := util.PathExists(internal.ArtifactsDir); !exists {
		os.Mkdir(internal.ArtifactsDir, os.ModePerm)
	}

	prd, err := s.GetPipelineRunData(ctx, pipelineID)
	if err != nil {
		return "", err
	}
	r, err := s.GetPipelineRunByID(ctx, runID)
	if err != nil {
		return "", err
	}
	if r.WorkingDirectory == nil {
		return "", fmt.Errorf("run %d has not started", runID)
	}

	artifactsDir := path.Join(internal.ArtifactsDir, fmt.Sprintf("%d", r.RunID))
	if exists, _ := util.PathExists(artifactsDir); exists {
		return artifactsDir, nil
	}
	if err := os.Mkdir(artifactsDir, os.ModePerm); err != nil {
		return "", err
	}

	baseDir := path.Join(prd.Workspace, *r.WorkingDirectory, repoDirName(prd.Repository))

	if prd.IsLocalAgent() {
		return artifactsDir, collectLocalArtifacts(baseDir, artifactsDir, prd.ScriptPath)
	}

	if prd.Username == nil {
		return "", fmt.Errorf("agent has no SSH credential")
	}
	client, err := DialAgent(
		*prd.Username,
		prd.Hostname,
		prd.Secret,
		sshConnectTimeout(),
	)
	if err != nil {
		return "", err
	}
	defer client.Close()

	scriptBytes, err := ReadRemoteFile(client, path.Join(baseDir, prd.ScriptPath))
	if err != nil {
		return "", err
	}
	ps := new(PipelineScript)
	if err := yaml.Unmarshal(scriptBytes, ps); err != nil {
		return "", err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return "", err
	}
	defer sftpClient.Close()

	for i, as := range ps.ArtifactStages() {
		stageName := util.RemoveNonAlphabetChars(as[0])
		if err := recursiveDownload(
			sftpClient,
			filepath.Join(baseDir, as[1]),
			filepath.Join(artifactsDir, fmt.Sprintf("%d_%s", i+1, stageName), as[1]),
		); err != nil {
			return "", err
		}
	}

	return artifactsDir, nil
}

func collectLocalArtifacts(baseDir, artifactsDir, scriptPath string) error {
	scriptBytes, err := os.ReadFile(filepath.Join(baseDir, scriptPath))
	if err != nil {
		return err
	}
	ps := new(PipelineScript)
	if err := yaml.Unmarshal(scriptBytes, ps); err != nil {
		return err
	}
	for i, as := range ps.ArtifactStages() {
		stageName := util.RemoveNonAlphabetChars(as[0])
		if err := copyDirectory(
			filepath.Join(baseDir, as[1]),
			filepath.Join(artifactsDir, fmt.Sprintf("%d_%s", i+1, stageName), as[1]),
		); err != nil {
			return err
		}
	}
	return nil
}

func copyDirectory(srcPath, dstPath string) error {
	entries, err := os.ReadDir(srcPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dstPath, os.ModePerm); err != nil {
		return err
	}
	for _, e := range entries {
		src := filepath.Join(srcPath, e.Name())
		dst := filepath.Join(dstPath, e.Name())
		if e.IsDir() {
			if err := copyDirectory(src, dst); err != nil {
				return err
			}
			continue
		}
		b, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, b, os.ModePerm); err != nil {
			return err
		}
	}
	return nil
}

func recursiveDownload(sftpClient *sftp.Client, remotePath, localPath string) error {
	files, err := sftpClient.ReadDir(remotePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(localPath, os.ModePerm); err != nil {
		return err
	}

	for _, f := range files {
		remoteFilePath := filepath.Join(remotePath, f.Name())
		localFilePath := filepath.Join(localPath, f.Name())

		if f.IsDir() {
			if err := recursiveDownload(
				sftpClient, remoteFilePath, localFilePath,
			); err != nil {
				return err
			}
		} else {
			if err := downloadFile(
				sftpClient, remoteFilePath, localFilePath,
			); err != nil {
				return err
			}
		}
	}

	return nil
}

func downloadFile(sftpClient *sftp.Client, remotePath, localPath string) error {
	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return err
	}
	defer remoteFile.Close()

	localFile, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer localFile.Close()

	if _, err := io.Copy(localFile, remoteFile); err != nil {
		return err
	}

	return nil
}

func repoDirName(repository string) string {
	repoDir := repository[strings.LastIndex(repository, "/")+1:]
	return strings.TrimSuffix(repoDir, ".git")
}

func decodeParameters(parameters *string) (map[string]string, error) {
	params := make(map[string]string)
	if parameters == nil || *parameters == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(*parameters), &params); err != nil {
		return nil, err
	}
	return params, nil
}

func (s *PipelineService) SchedulePipelineRun(
	pipelineID int64,
	schedule, branch string,
) (*string, error) {
	if s.scheduler == nil {
		return nil, nil
	}
	job, err := s.scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			if r, err := s.CreatePipelineRun(
				context.Background(),
				pipelineID,
				branch,
			); err == nil {
				if err := s.EnqueueRun(r); err != nil {
					log.Println("queue is full")
					return
				}
			}
		}))
	if err != nil {
		return nil, fmt.Errorf("error scheduling pipeline job: %+w", err)
	}
	return util.AsPtr(job.ID().String()), nil
}

// SchedulePipelines re-registers cron jobs for every scheduled
// pipeline at startup. Job IDs are not stable across restarts, so the
// stored ones are refreshed.
func (s *PipelineService) SchedulePipelines() {
	scheduledPipelines, err := s.ListScheduledPipelines(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range scheduledPipelines {
		jobID, err := s.SchedulePipelineRun(p.PipelineID, *p.Schedule, *p.ScheduleBranch)
		if err != nil {
			log.Println("err re-scheduling pipeline:", err)
			continue
		}
		if err := s.UpdatePipelineScheduleJobID(
			context.Background(), p.PipelineID, jobID,
		); err != nil {
			log.Println("err updating re-scheduled pipeline job id:", err)
		}
	}
}

func (s *PipelineService) AddRunQueues(ids []int64, maxRuns int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.queues[id] = NewRunQueue(s, s.credentialSvc, maxRuns)
	}
}

func (s *PipelineService) StartRunQueues() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queues {
		go s.queues[i].Run()
	}
}

func (s *PipelineService) AddRunQueue(id int64, maxRuns int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id] = NewRunQueue(s, s.credentialSvc, maxRuns)
}

func (s *PipelineService) StartRunQueue(id int64) error {
	rq, ok := s.GetPipelineRunQueue(id)
	if !ok {
		return fmt.Errorf("run queue for pipeline %d does not exist", id)
	}
	go rq.Run()
	return nil
}

func (s *PipelineService) GetPipelineRunQueue(id int64) (*RunQueue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rq, ok := s.queues[id]
	return rq, ok
}

func (s *PipelineService) RemoveRunQueue(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, id)
}

func (s *PipelineService) EnqueueRun(r *store.Run) error {
	rq, ok := s.GetPipelineRunQueue(r.RunPipelineID)
	if !ok {
		return fmt.Errorf("run queue for pipeline %d does not exist", r.RunPipelineID)
	}

	return rq.Enqueue(r)
}

func (s *PipelineService) ShutdownAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wg sync.WaitGroup
	for _, rq := range s.queues {
		rq := rq
		wg.Add(1)
		go func() {
			defer wg.Done()
			rq.Shutdown()
		}()
	}
	wg.Wait()
}
