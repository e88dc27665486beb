package runner

import (
	"context"
	"fmt"
	"os"
	"time"
)

// SecretSource resolves a secret identifier and exposes the value only
// for the duration of the callback.
type SecretSource interface {
	WithSecret(ctx context.Context, id string, fn func(secret []byte) error) error
}

// Executor runs an ordered list of stages, short-circuiting on the
// first failure. Parameters are resolved once per run and shared
// read-only across all stages; secrets are per-stage scoped through
// the SecretSource.
type Executor struct {
	Execer      Execer
	Secrets     SecretSource
	Verdict     VerdictFunc
	Params      map[string]string
	Workdir     string
	GracePeriod time.Duration
	Output      OutputFunc
}

// Execute runs stages strictly in declared order. No stage starts
// before its predecessor has succeeded. The returned PipelineRun holds
// every recorded attempt, including those of a failed parallel group.
func (e *Executor) Execute(ctx context.Context, stages []Stage) (*PipelineRun, error) {
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}

	pr := &PipelineRun{}
	for i := range stages {
		stage := &stages[i]
		e.logf("Executing pipeline stage '%s'\n", stage.Name)

		var results []ExecutionResult
		var err error
		if stage.IsContainer() {
			results, err = e.runParallel(ctx, stage)
		} else {
			results, err = e.runLeaf(ctx, stage)
		}
		pr.append(results...)
		if err != nil {
			return pr, PipelineAborted{
				StageName: failedStageName(stage, results, err),
				ExitCode:  lastExitCode(results),
				Err:       err,
			}
		}
	}
	return pr, nil
}

// runParallel dispatches all siblings concurrently and waits for every
// one of them. If several fail, the first failure received wins the
// report; the tie-break among simultaneous failures is arbitrary.
func (e *Executor) runParallel(ctx context.Context, container *Stage) ([]ExecutionResult, error) {
	type outcome struct {
		results []ExecutionResult
		err     error
	}

	outcomes := make(chan outcome, len(container.Parallel))
	for i := range container.Parallel {
		sibling := &container.Parallel[i]
		go func() {
			results, err := e.runLeaf(ctx, sibling)
			outcomes <- outcome{results: results, err: err}
		}()
	}

	all := make([]ExecutionResult, 0, len(container.Parallel))
	var firstErr error
	for range container.Parallel {
		oc := <-outcomes
		all = append(all, oc.results...)
		if oc.err != nil && firstErr == nil {
			firstErr = oc.err
		}
	}
	return all, firstErr
}

func (e *Executor) runLeaf(ctx context.Context, stage *Stage) ([]ExecutionResult, error) {
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	if stage.Gate != nil {
		return e.runGate(ctx, stage)
	}

	if stage.Credential != nil {
		var results []ExecutionResult
		err := e.Secrets.WithSecret(ctx, stage.Credential.ID, func(secret []byte) error {
			var innerErr error
			results, innerErr = e.runCommand(ctx, stage, map[string]string{
				stage.Credential.Env: string(secret),
			})
			return innerErr
		})
		return results, err
	}
	return e.runCommand(ctx, stage, nil)
}

func (e *Executor) runGate(ctx context.Context, stage *Stage) ([]ExecutionResult, error) {
	if e.Verdict == nil {
		return nil, fmt.Errorf("stage '%s': no quality gate verdict source configured", stage.Name)
	}
	gate := &GateEvaluator{
		Poll:         e.Verdict,
		PollInterval: stage.Gate.PollInterval,
		Timeout:      stage.Gate.Timeout,
	}
	start := time.Now()
	err := gate.Evaluate(ctx)
	result := ExecutionResult{
		StageName: stage.Name,
		Duration:  time.Since(start),
		Attempt:   1,
	}
	if err != nil {
		result.ExitCode = 1
	}
	return []ExecutionResult{result}, err
}

func (e *Executor) runCommand(ctx context.Context, stage *Stage, secretEnv map[string]string) ([]ExecutionResult, error) {
	command := e.commandSpec(stage.Command, stage.Env, secretEnv)

	if len(stage.OnFailure) > 0 {
		deployer := &RetryingDeployer{
			Execer:      e.Execer,
			GracePeriod: e.GracePeriod,
			Output:      e.Output,
		}
		remediation := e.commandSpec(stage.OnFailure, stage.Env, secretEnv)
		return deployer.Deploy(ctx, command, remediation, stage.Name)
	}

	start := time.Now()
	code, err := e.Execer.Exec(ctx, command, e.Output)
	if err != nil {
		return nil, err
	}
	result := ExecutionResult{
		StageName: stage.Name,
		ExitCode:  code,
		Duration:  time.Since(start),
		Attempt:   1,
	}
	if code != 0 {
		return []ExecutionResult{result}, ToolError{Tool: command.Tool(), ExitCode: code}
	}
	return []ExecutionResult{result}, nil
}

// commandSpec expands $PARAM references against the run's immutable
// parameters. Secret values are never interpolated into the argv; they
// travel in the environment only.
func (e *Executor) commandSpec(argv []string, stageEnv, secretEnv map[string]string) CommandSpec {
	expanded := make([]string, len(argv))
	for i, arg := range argv {
		expanded[i] = os.Expand(arg, func(name string) string {
			return e.Params[name]
		})
	}
	env := make(map[string]string, len(e.Params)+len(stageEnv)+len(secretEnv))
	for k, v := range e.Params {
		env[k] = v
	}
	for k, v := range stageEnv {
		env[k] = os.Expand(v, func(name string) string {
			return e.Params[name]
		})
	}
	for k, v := range secretEnv {
		env[k] = v
	}
	return CommandSpec{Argv: expanded, Dir: e.Workdir, Env: env}
}

func (e *Executor) logf(format string, args ...any) {
	if e.Output != nil {
		e.Output(fmt.Sprintf(format, args...))
	}
}

// failedStageName reports the leaf stage that actually failed. For a
// parallel container the failing sibling is found by scanning the
// recorded results for a failing attempt.
func failedStageName(stage *Stage, results []ExecutionResult, err error) string {
	if !stage.IsContainer() {
		return stage.Name
	}
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].ExitCode != 0 {
			return results[i].StageName
		}
	}
	return stage.Name
}

func lastExitCode(results []ExecutionResult) int {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].ExitCode != 0 {
			return results[i].ExitCode
		}
	}
	return 1
}
