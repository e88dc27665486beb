package store

import (
	"context"
	"time"
)

// StageResult is the persisted record of one stage attempt of one run.
// Rows are append-only; a retried deploy stage has two of them.
type StageResult struct {
	StageResultID int64
	ResultRunID   int64
	StageName     string
	ExitCode      int64
	DurationMs    int64
	Attempt       int64
	CreatedOn     time.Time
}

type StageResultStore interface {
	CreateStageResult(context.Context, int64, string, int64, int64, int64) (*StageResult, error)
	ListRunStageResults(context.Context, int64) ([]StageResult, error)
}
