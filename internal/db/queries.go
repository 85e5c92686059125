package db

import (
	"database/sql"

	"github.com/avelhart/chronicle/internal/errors"
)

// Run kinds.
const (
	KindCollect = "collect"
	KindExpand  = "expand"
)

// Run statuses.
const (
	StatusOK     = "ok"     // every planned call completed
	StatusBudget = "budget" // stopped early by the call or token budget
	StatusError  = "error"  // aborted by an API or file failure
)

// Run is one ledger row: a single collect or expand invocation and what it
// cost. The ledger records API spend only; notes live as Markdown files.
type Run struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	Event            string `json:"event"`
	TimeRange        string `json:"time_range,omitempty"`
	Chunks           int    `json:"chunks"`
	Calls            int    `json:"calls"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	NotePath         string `json:"note_path,omitempty"`
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

// UsageTotals aggregates spend across a set of runs.
type UsageTotals struct {
	Runs             int `json:"runs"`
	Calls            int `json:"calls"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// InsertRun stores a new run record.
func InsertRun(database *sql.DB, r *Run) error {
	query := `
		INSERT INTO runs (
			id, kind, event, time_range, chunks, calls,
			prompt_tokens, completion_tokens, total_tokens,
			note_path, status, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := database.Exec(query,
		r.ID, r.Kind, r.Event, nullable(r.TimeRange), r.Chunks, r.Calls,
		r.PromptTokens, r.CompletionTokens, r.TotalTokens,
		nullable(r.NotePath), r.Status, nullable(r.Error), r.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListRunsOptions filters ListRuns.
type ListRunsOptions struct {
	Kind  string // "" for all kinds
	Limit int    // <=0 for the default of 20, capped at 200
}

// ListRuns returns recent runs, newest first.
func ListRuns(database *sql.DB, opts ListRunsOptions) ([]Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	query := `
		SELECT id, kind, event, time_range, chunks, calls,
			prompt_tokens, completion_tokens, total_tokens,
			note_path, status, error, created_at
		FROM runs
	`
	var args []any
	if opts.Kind != "" {
		query += " WHERE kind = ?"
		args = append(args, opts.Kind)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			timeRange sql.NullString
			notePath  sql.NullString
			runErr    sql.NullString
		)
		err := rows.Scan(
			&r.ID, &r.Kind, &r.Event, &timeRange, &r.Chunks, &r.Calls,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
			&notePath, &r.Status, &runErr, &r.CreatedAt,
		)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		r.TimeRange = timeRange.String
		r.NotePath = notePath.String
		r.Error = runErr.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return runs, nil
}

// SumUsage totals spend over runs created at or after since. A since of
// zero covers all time.
func SumUsage(database *sql.DB, since int64) (*UsageTotals, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(calls), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM runs
		WHERE created_at >= ?
	`

	var totals UsageTotals
	err := database.QueryRow(query, since).Scan(
		&totals.Runs, &totals.Calls,
		&totals.PromptTokens, &totals.CompletionTokens, &totals.TotalTokens,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &totals, nil
}

// PruneRuns deletes runs created before the cutoff and reports how many
// rows went away.
func PruneRuns(database *sql.DB, before int64) (int64, error) {
	result, err := database.Exec("DELETE FROM runs WHERE created_at < ?", before)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return deleted, nil
}

// nullable converts "" to NULL for optional text columns.
func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
