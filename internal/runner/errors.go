package runner

import (
	"fmt"
	"time"
)

// ToolError is a non-zero exit from an external tool.
type ToolError struct {
	Tool     string
	ExitCode int
}

func (e ToolError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
}

// PipelineAborted is returned by the executor on the first stage
// failure. No stage after the named one has been started.
type PipelineAborted struct {
	StageName string
	ExitCode  int
	Err       error
}

func (e PipelineAborted) Error() string {
	return fmt.Sprintf("pipeline aborted at stage '%s' (exit code %d): %v", e.StageName, e.ExitCode, e.Err)
}

func (e PipelineAborted) Unwrap() error {
	return e.Err
}

// GateTimeout means no quality gate verdict arrived in time. The gate
// fails closed: a timeout aborts the pipeline.
type GateTimeout struct {
	Timeout time.Duration
}

func (e GateTimeout) Error() string {
	return fmt.Sprintf("no quality gate verdict within %s", e.Timeout)
}

type GateRejected struct {
	Reason string
}

func (e GateRejected) Error() string {
	if e.Reason == "" {
		return "quality gate rejected"
	}
	return "quality gate rejected: " + e.Reason
}

// SecondAttemptFailure is terminal for a deploy stage: the command
// failed again after remediation and a single retry.
type SecondAttemptFailure struct {
	Err error
}

func (e SecondAttemptFailure) Error() string {
	return fmt.Sprintf("deploy failed after remediation and retry: %v", e.Err)
}

func (e SecondAttemptFailure) Unwrap() error {
	return e.Err
}
