package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/imshubhamkaushik/deploypipe/internal"
	"github.com/imshubhamkaushik/deploypipe/internal/runner"
	"github.com/imshubhamkaushik/deploypipe/internal/settings"
	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/imshubhamkaushik/deploypipe/internal/util"
)

func NewRunQueue(
	pipelineService PipelineServicer,
	broker CredentialServicer,
	maxRuns int64,
) *RunQueue {
	return &RunQueue{
		pipelineService:  pipelineService,
		broker:           broker,
		OutputSSEClients: NewSSEClientMap[string](),
		StatusSSEClients: NewSSEClientMap[store.Run](),
		queue:            make(chan *store.Run, maxRuns),
		done:             make(chan struct{}),
		cancelRunMap:     NewCancelMap[int64](),
	}
}

// RunQueue serializes the runs of a single pipeline. Each pipeline has
// its own queue goroutine, so distinct pipelines execute concurrently
// while runs of one pipeline never overlap.
type RunQueue struct {
	pipelineService  PipelineServicer
	broker           CredentialServicer
	OutputSSEClients *SSEClientMap[string]
	StatusSSEClients *SSEClientMap[store.Run]

	queue        chan *store.Run
	done         chan struct{}
	cancelRunMap *CancelMap[int64]

	outputCh chan string
	statusCh chan store.Run
	mu       sync.Mutex
}

func (rq *RunQueue) CancelRun(runID int64) {
	rq.cancelRunMap.Call(runID)
}

func (rq *RunQueue) Enqueue(r *store.Run) error {
	select {
	case rq.queue <- r:
		return nil
	default:
		return NewErrRunQueueFull()
	}
}

func (rq *RunQueue) Run() {
	for {
		select {
		case run := <-rq.queue:
			rq.outputCh = make(chan string)
			rq.statusCh = make(chan store.Run)

			ctx, cancel := context.WithCancel(context.Background())
			rq.cancelRunMap.AddCancel(run.RunID, cancel)

			go rq.handleOutput(ctx, run.RunID)
			go rq.handleStatus()

			if err := rq.processRun(ctx, run); err != nil {
				endedOn := time.Now().UTC()
				run.EndedOn = &endedOn
				if _, ok := err.(RunCancelError); ok {
					run.Status = store.StatusCancelled
				} else {
					run.Status = store.StatusFailed
				}
				if sqlErr := rq.pipelineService.UpdatePipelineRunEndedOn(
					context.Background(),
					run.RunID,
					run.Status,
					run.Artifacts,
					run.EndedOn,
				); sqlErr != nil {
					log.Println("err updating run status to failed:", errors.Join(err, sqlErr))
				}
				log.Println("err processing pipeline:", err)
				r, err := rq.pipelineService.GetPipelineRunByID(context.Background(), run.RunID)
				if err != nil {
					log.Println("err getting run by id")
				} else {
					run = r
					rq.statusCh <- *r
				}

				failMessage := `
=============================================
FAIL || Pipeline execution failed.
=============================================
`
				rq.outputCh <- failMessage
			}

			close(rq.outputCh)
			close(rq.statusCh)
			rq.cancelRunMap.RemoveCancel(run.RunID)
		case <-rq.done:
			close(rq.queue)
			return
		}
	}
}

func (rq *RunQueue) Shutdown() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	select {
	case <-rq.done:
	default:
		close(rq.done)
	}
}

func (rq *RunQueue) handleOutput(ctx context.Context, runID int64) {
	for out := range rq.outputCh {
		if err := rq.pipelineService.AppendPipelineRunOutput(ctx, runID, out); err != nil {
			log.Printf("err appending run output: %+v\n", err)
		}
		rq.OutputSSEClients.SendToClients(out)
	}
}

func (rq *RunQueue) handleStatus() {
	for r := range rq.statusCh {
		rq.StatusSSEClients.SendToClients(r)
	}
}

func (rq *RunQueue) processRun(
	ctx context.Context,
	run *store.Run,
) error {
	prd, err := rq.pipelineService.GetPipelineRunData(ctx, run.RunPipelineID)
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err getting pipeline/agent/credential: %+v\n", err)
		return err
	}
	workdir := time.Now().UTC().Format(internal.RunDirLayout)

	// update run status to running
	run.Status = store.StatusRunning
	startedOn := time.Now().UTC()
	run.StartedOn = &startedOn

	if err := rq.pipelineService.UpdatePipelineRunStartedOn(
		context.Background(),
		run.RunID,
		workdir,
		run.Status,
		run.StartedOn,
	); err != nil {
		rq.outputCh <- "err updating run started on"
		return err
	}

	r, err := rq.pipelineService.GetPipelineRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err getting run by ID"
		return err
	}
	run = r
	rq.statusCh <- *r

	execer, closeExecer, err := rq.connectAgent(prd)
	if err != nil {
		rq.outputCh <- "err connecting to agent"
		return err
	}
	defer closeExecer()

	workdirPath := path.Join(prd.Workspace, workdir)
	if err := rq.cloneRepository(
		ctx, execer, prd, workdirPath, run.Branch,
	); err != nil {
		rq.outputCh <- "err cloning repository on agent"
		return err
	}
	rq.outputCh <- fmt.Sprintf("Cloned repository %s\n", prd.Repository)

	repoPath := path.Join(workdirPath, repoDirName(prd.Repository))
	pipelineYaml, err := rq.readPipelineScript(prd, repoPath)
	if err != nil {
		rq.outputCh <- "err reading pipeline script"
		return err
	}
	ps := new(PipelineScript)
	if err := yaml.Unmarshal(pipelineYaml, ps); err != nil {
		rq.outputCh <- "err unmarshaling pipeline yaml"
		return err
	}
	stages, err := ps.ToStages()
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err in pipeline script: %+v\n", err)
		return err
	}
	applyDefaultTimeouts(stages)

	rq.outputCh <- "Parsed pipeline script. Starting pipeline execution...\n"

	executor := &runner.Executor{
		Execer:      execer,
		Secrets:     rq.broker,
		Verdict:     gateVerdict(prd.Name),
		Params:      runParameters(prd, run),
		Workdir:     repoPath,
		GracePeriod: deployGracePeriod(),
		Output: func(line string) {
			rq.outputCh <- line
		},
	}

	pr, execErr := executor.Execute(ctx, stages)
	if pr != nil {
		rq.persistStageResults(run.RunID, pr.Results)
	}
	if execErr != nil {
		if ctx.Err() != nil || errors.Is(execErr, context.Canceled) {
			return RunCancelError{Message: "pipeline execution cancelled by user"}
		}
		rq.outputCh <- fmt.Sprintf("err executing pipeline script: %+v\n", execErr)
		return execErr
	}

	passMessage := `
=============================================
PASS || Executed pipeline stages successfully.
=============================================
`
	rq.outputCh <- passMessage

	// update run status and output
	run.Status = store.StatusPassed
	run.EndedOn = util.AsPtr(time.Now().UTC())
	if err := rq.pipelineService.UpdatePipelineRunEndedOn(
		context.Background(),
		run.RunID,
		run.Status,
		run.Artifacts,
		run.EndedOn,
	); err != nil {
		rq.outputCh <- "err updating run ended on"
		return err
	}

	r, err = rq.pipelineService.GetPipelineRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err getting run by id"
		return err
	}

	run = r
	rq.statusCh <- *r

	return nil
}

// connectAgent returns the command backend for the run's agent: the
// local process runner for a local agent, an SSH session runner for a
// remote one.
func (rq *RunQueue) connectAgent(
	prd *store.PipelineRunData,
) (runner.Execer, func(), error) {
	if prd.IsLocalAgent() {
		return &runner.LocalExecer{}, func() {}, nil
	}

	if prd.Username == nil {
		return nil, nil, fmt.Errorf("agent %s has no SSH credential", prd.Hostname)
	}
	client, err := DialAgent(
		*prd.Username,
		prd.Hostname,
		prd.Secret,
		sshConnectTimeout(),
	)
	if err != nil {
		rq.outputCh <- "err dialing ssh"
		return nil, nil, err
	}
	rq.outputCh <- fmt.Sprintf("SSH connected to %s\n", prd.Hostname)
	return &runner.SSHExecer{Client: client}, func() { client.Close() }, nil
}

func (rq *RunQueue) cloneRepository(
	ctx context.Context,
	execer runner.Execer,
	prd *store.PipelineRunData,
	workdirPath, branch string,
) error {
	if prd.IsLocalAgent() {
		if err := os.MkdirAll(workdirPath, os.ModePerm); err != nil {
			return err
		}
	} else {
		if code, err := execer.Exec(ctx, runner.CommandSpec{
			Argv: []string{"mkdir", "-p", workdirPath},
		}, nil); err != nil {
			return err
		} else if code != 0 {
			return fmt.Errorf("mkdir on agent exited with code %d", code)
		}
	}

	code, err := execer.Exec(ctx, runner.CommandSpec{
		Argv: []string{"git", "clone", "-b", branch, prd.Repository},
		Dir:  workdirPath,
	}, func(line string) {
		rq.outputCh <- line
	})
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("git clone exited with code %d", code)
	}
	return nil
}

func (rq *RunQueue) readPipelineScript(
	prd *store.PipelineRunData,
	repoPath string,
) ([]byte, error) {
	scriptPath := path.Join(repoPath, prd.ScriptPath)
	if prd.IsLocalAgent() {
		return os.ReadFile(filepath.FromSlash(scriptPath))
	}

	client, err := DialAgent(
		*prd.Username,
		prd.Hostname,
		prd.Secret,
		sshConnectTimeout(),
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return ReadRemoteFile(client, scriptPath)
}

func (rq *RunQueue) persistStageResults(runID int64, results []runner.ExecutionResult) {
	for _, res := range results {
		if _, err := rq.pipelineService.CreateStageResult(
			context.Background(),
			runID,
			res.StageName,
			int64(res.ExitCode),
			res.Duration.Milliseconds(),
			int64(res.Attempt),
		); err != nil {
			log.Printf("err persisting stage result '%s': %+v\n", res.StageName, err)
		}
	}
}

// runParameters resolves the immutable parameter set for one run:
// server defaults, then pipeline parameters, with the run's branch and
// image tag derived last.
func runParameters(prd *store.PipelineRunData, run *store.Run) map[string]string {
	params := make(map[string]string)
	if settings.Settings != nil {
		params["REGION"] = settings.Settings.Region
		params["REGISTRY"] = settings.Settings.RegistryHost
	}

	pipelineParams, err := decodeParameters(prd.Parameters)
	if err != nil {
		log.Printf("err decoding pipeline parameters: %+v\n", err)
	}
	for k, v := range pipelineParams {
		params[k] = v
	}

	params["BRANCH"] = run.Branch
	params["RUN_ID"] = fmt.Sprintf("%d", run.RunID)
	params["IMAGE_TAG"] = fmt.Sprintf("v%d", run.RunID)
	return params
}

func gateVerdict(projectKey string) runner.VerdictFunc {
	if settings.Settings == nil || settings.Settings.GateServerURL == "" {
		return nil
	}
	return NewGatePoller(settings.Settings.GateServerURL, projectKey).VerdictFunc()
}

// applyDefaultTimeouts fills in the configured defaults for stages
// that do not declare their own.
func applyDefaultTimeouts(stages []runner.Stage) {
	if internal.Config == nil {
		return
	}
	for i := range stages {
		s := &stages[i]
		if s.IsContainer() {
			applyDefaultTimeouts(s.Parallel)
			continue
		}
		if s.Gate != nil {
			if s.Gate.Timeout == 0 {
				s.Gate.Timeout = time.Duration(internal.Config.GateTimeoutSecs)
			}
			if s.Gate.PollInterval == 0 {
				s.Gate.PollInterval = time.Duration(internal.Config.GatePollSecs)
			}
			continue
		}
		if s.Timeout == 0 {
			s.Timeout = time.Duration(internal.Config.DefaultStepSecs)
		}
	}
}

func deployGracePeriod() time.Duration {
	if internal.Config == nil {
		return 0
	}
	return time.Duration(internal.Config.DeployGraceSecs)
}

func sshConnectTimeout() time.Duration {
	if internal.Config == nil {
		return 10 * time.Second
	}
	return time.Duration(internal.Config.SSHConnectTimeout)
}
