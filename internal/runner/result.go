package runner

import "time"

// ExecutionResult records one attempt of one stage. It is immutable
// once created; retried deploy stages produce two of them.
type ExecutionResult struct {
	StageName string
	ExitCode  int
	Duration  time.Duration
	Attempt   int
}

// PipelineRun is the ordered record of a single run. It is owned by
// the executor for the duration of Execute and handed to the caller
// afterwards; persisting it is the caller's concern.
type PipelineRun struct {
	Results []ExecutionResult
}

func (pr *PipelineRun) append(results ...ExecutionResult) {
	pr.Results = append(pr.Results, results...)
}
