package runner

import (
	"context"
	"fmt"
	"time"
)

type deployState int

const (
	stateAttempting deployState = iota
	stateRemediating
	stateRetrying
	stateSucceeded
	stateFatal
)

// RetryingDeployer executes an idempotent deployment command. On a
// non-zero exit it runs the remediation command once, waits a fixed
// grace period for external state to settle, then retries the
// deployment exactly once. A second failure is terminal.
//
// The single-retry bound keeps the blast radius of an automated
// remediation (deleting and recreating a stateful resource) small and
// rules out remediation loops when the cause is not transient.
type RetryingDeployer struct {
	Execer      Execer
	GracePeriod time.Duration
	Output      OutputFunc
}

// Deploy runs the state machine for one deploy stage. It returns one
// ExecutionResult per command attempt, in order.
func (d *RetryingDeployer) Deploy(
	ctx context.Context,
	command, remediation CommandSpec,
	stageName string,
) ([]ExecutionResult, error) {
	results := make([]ExecutionResult, 0, 2)
	state := stateAttempting
	attempt := 0

	var firstFailure error
	for {
		switch state {
		case stateAttempting, stateRetrying:
			attempt++
			start := time.Now()
			code, err := d.Execer.Exec(ctx, command, d.Output)
			if err != nil {
				return results, err
			}
			results = append(results, ExecutionResult{
				StageName: stageName,
				ExitCode:  code,
				Duration:  time.Since(start),
				Attempt:   attempt,
			})
			if code == 0 {
				state = stateSucceeded
			} else if state == stateAttempting {
				firstFailure = ToolError{Tool: command.Tool(), ExitCode: code}
				state = stateRemediating
			} else {
				state = stateFatal
			}

		case stateRemediating:
			d.logf("deploy attempt failed (%v), running remediation\n", firstFailure)
			code, err := d.Execer.Exec(ctx, remediation, d.Output)
			if err != nil || code != 0 {
				// remediation is advisory; its failure is informational only
				d.logf("remediation '%s' did not succeed (exit code %d, err %v), retrying anyway\n",
					remediation.Tool(), code, err)
			}
			if err := d.grace(ctx); err != nil {
				return results, err
			}
			state = stateRetrying

		case stateSucceeded:
			return results, nil

		case stateFatal:
			last := results[len(results)-1]
			return results, SecondAttemptFailure{
				Err: ToolError{Tool: command.Tool(), ExitCode: last.ExitCode},
			}
		}
	}
}

// grace waits for external state to settle between remediation and the
// retry, honoring cancellation.
func (d *RetryingDeployer) grace(ctx context.Context) error {
	if d.GracePeriod <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.GracePeriod):
		return nil
	}
}

func (d *RetryingDeployer) logf(format string, args ...any) {
	if d.Output != nil {
		d.Output(fmt.Sprintf(format, args...))
	}
}
