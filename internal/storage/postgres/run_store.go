package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

// DefaultRunTable is used when no run table name is configured.
const DefaultRunTable = "parser_runs"

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunStore keeps a history of parser runs.
type RunStore struct {
	pool  Pool
	table string
}

// NewRunStore constructs a RunStore on an existing pool.
func NewRunStore(pool Pool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, DefaultRunTable)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// StartRun inserts a run in running status. Repeated starts are ignored.
func (s *RunStore) StartRun(ctx context.Context, runID string, startedAt time.Time, opts equipment.Options) error {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal run options: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, started_at, status, options)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, RunRunning, optsJSON); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun marks a run as finished with its counters and optional error.
func (s *RunStore) FinishRun(ctx context.Context, runID string, finishedAt time.Time, result equipment.ParseResult, runErr error) error {
	status := RunSucceeded
	var errMsg *string
	if runErr != nil {
		status = RunFailed
		errMsg = nullable(runErr.Error())
	}
	saved := 0
	if result.Persist != nil {
		saved = result.Persist.Saved
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, status = $2, processed = $3, success = $4,
			failed = $5, duplicates = $6, saved = $7, error_message = $8
		WHERE id = $9;
	`, s.table)
	res, err := s.pool.Exec(ctx, query,
		finishedAt, status, result.Processed, result.Success,
		result.Failed, result.Duplicates, saved, errMsg, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("failed to finish run: run %s not found", runID)
	}
	return nil
}
