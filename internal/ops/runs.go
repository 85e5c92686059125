package ops

import (
	"database/sql"
	"time"

	"github.com/avelhart/chronicle/internal/db"
	"github.com/avelhart/chronicle/internal/errors"
)

// RunsInput contains parameters for the Runs operation.
type RunsInput struct {
	Kind      string // "", "collect" or "expand"
	Limit     int    // 0 for the default
	SinceDays *int   // usage window in days; nil totals all time
	PruneDays *int   // delete runs older than this many days first
}

// RunsOutput contains the result of the Runs operation.
type RunsOutput struct {
	Runs       []db.Run        `json:"runs"`
	Count      int             `json:"count"`
	Usage      *db.UsageTotals `json:"usage"`
	WindowDays int             `json:"window_days,omitempty"`
	Pruned     int64           `json:"pruned,omitempty"`
}

// Runs lists recent ledger rows and totals API spend. With PruneDays set it
// deletes older rows first, so the listing reflects the prune.
func Runs(database *sql.DB, input RunsInput) (*RunsOutput, error) {
	if input.Kind != "" && input.Kind != db.KindCollect && input.Kind != db.KindExpand {
		return nil, errors.NewInvalidRequest("kind must be one of: collect, expand")
	}
	if input.SinceDays != nil && *input.SinceDays < 0 {
		return nil, errors.NewInvalidRequest("since must be non-negative")
	}
	if input.PruneDays != nil && *input.PruneDays < 0 {
		return nil, errors.NewInvalidRequest("prune must be non-negative")
	}

	output := &RunsOutput{}
	now := time.Now()

	if input.PruneDays != nil {
		cutoff := now.AddDate(0, 0, -*input.PruneDays).Unix()
		pruned, err := db.PruneRuns(database, cutoff)
		if err != nil {
			return nil, err
		}
		output.Pruned = pruned
	}

	runs, err := db.ListRuns(database, db.ListRunsOptions{Kind: input.Kind, Limit: input.Limit})
	if err != nil {
		return nil, err
	}
	output.Runs = runs
	output.Count = len(runs)

	var since int64
	if input.SinceDays != nil {
		since = now.AddDate(0, 0, -*input.SinceDays).Unix()
		output.WindowDays = *input.SinceDays
	}
	usage, err := db.SumUsage(database, since)
	if err != nil {
		return nil, err
	}
	output.Usage = usage

	return output, nil
}
