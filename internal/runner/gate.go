package runner

import (
	"context"
	"time"
)

type Verdict int

const (
	// VerdictPending means the external analysis has not finished yet
	// and the evaluator should keep polling.
	VerdictPending Verdict = iota
	VerdictPassed
	VerdictFailed
)

// VerdictFunc asks the external static-analysis server for the current
// quality gate verdict. Returning an error stops polling immediately.
type VerdictFunc func(ctx context.Context) (Verdict, string, error)

// GateEvaluator blocks a stage until a quality gate verdict arrives or
// the timeout elapses. A timeout is fatal to the pipeline: there is no
// silent pass-through.
type GateEvaluator struct {
	Poll         VerdictFunc
	PollInterval time.Duration
	Timeout      time.Duration
}

func (g *GateEvaluator) Evaluate(ctx context.Context) error {
	interval := g.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	timeout := time.NewTimer(g.Timeout)
	defer timeout.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		verdict, reason, err := g.Poll(ctx)
		if err != nil {
			return err
		}
		switch verdict {
		case VerdictPassed:
			return nil
		case VerdictFailed:
			return GateRejected{Reason: reason}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return GateTimeout{Timeout: g.Timeout}
		case <-ticker.C:
		}
	}
}
