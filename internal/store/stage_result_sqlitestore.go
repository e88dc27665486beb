package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type StageResultSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewStageResultSQLiteStore(rdb, rwdb *sql.DB) *StageResultSQLiteStore {
	return &StageResultSQLiteStore{rdb, rwdb}
}

func (store *StageResultSQLiteStore) CreateStageResult(
	ctx context.Context,
	runID int64,
	stageName string,
	exitCode, durationMs, attempt int64,
) (*StageResult, error) {
	sr := &StageResult{
		ResultRunID: runID,
		StageName:   stageName,
		ExitCode:    exitCode,
		DurationMs:  durationMs,
		Attempt:     attempt,
	}
	query := `insert into stage_results (
		result_run_id,
		stage_name,
		exit_code,
		duration_ms,
		attempt
	)
	values ($1, $2, $3, $4, $5)
	returning stage_result_id, created_on`
	if err := sqlscan.Get(
		ctx, store.rwdb, sr, query,
		sr.ResultRunID, sr.StageName, sr.ExitCode, sr.DurationMs, sr.Attempt,
	); err != nil {
		return nil, err
	}
	return sr, nil
}

func (store *StageResultSQLiteStore) ListRunStageResults(
	ctx context.Context,
	runID int64,
) ([]StageResult, error) {
	query := `select * from stage_results
	where result_run_id = $1
	order by stage_result_id`
	results := make([]StageResult, 0)
	err := sqlscan.Select(ctx, store.rdb, &results, query, runID)
	return results, err
}
