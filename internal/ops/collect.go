package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/avelhart/chronicle/internal/db"
	"github.com/avelhart/chronicle/internal/generate"
	"github.com/avelhart/chronicle/internal/note"
	"github.com/avelhart/chronicle/internal/vault"
)

// CollectInput contains parameters for the Collect operation.
type CollectInput struct {
	EventName      string // required
	TimeRange      string // optional, e.g. "1939-1945"
	ChunkCount     int    // number of API calls to plan
	MaxCalls       int    // call budget for this run
	MaxTotalTokens int    // token budget for this run
}

// CollectOutput contains the result of the Collect operation.
type CollectOutput struct {
	RunID         string          `json:"run_id"`
	Event         string          `json:"event"`
	TimeRange     string          `json:"time_range,omitempty"`
	NotePath      string          `json:"note_path,omitempty"`
	Created       bool            `json:"created"`
	ChunksDone    int             `json:"chunks_done"`
	ChunksPlanned int             `json:"chunks_planned"`
	Status        string          `json:"status"`
	StoppedReason string          `json:"stopped_reason,omitempty"`
	Budget        generate.Budget `json:"budget"`
}

// Collect generates a note for one historical event and writes it to the
// events folder. Budget exhaustion keeps whatever chunks completed; an API
// failure aborts with no file written. Every run lands in the ledger.
func Collect(ctx context.Context, database *sql.DB, gen *generate.Generator, events *vault.Vault, input CollectInput) (*CollectOutput, error) {
	req := generate.Request{
		EventName:  strings.TrimSpace(input.EventName),
		TimeRange:  strings.TrimSpace(input.TimeRange),
		ChunkCount: input.ChunkCount,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID, err := newRunID()
	if err != nil {
		return nil, err
	}

	budget := generate.NewBudget(input.MaxCalls, input.MaxTotalTokens)
	run := &db.Run{
		ID:        runID,
		Kind:      db.KindCollect,
		Event:     req.EventName,
		TimeRange: req.TimeRange,
		CreatedAt: time.Now().Unix(),
	}

	result, err := gen.Run(ctx, req, budget)
	if err != nil {
		run.Calls = budget.CallsMade
		run.TotalTokens = budget.TokensUsed
		run.Status = db.StatusError
		run.Error = errorMessage(err)
		recordRun(database, run)
		return nil, err
	}

	output := &CollectOutput{
		RunID:         runID,
		Event:         req.EventName,
		TimeRange:     req.TimeRange,
		ChunksDone:    result.ChunksDone,
		ChunksPlanned: result.ChunksPlanned,
		Status:        db.StatusOK,
		StoppedReason: result.Stopped,
		Budget:        *budget,
	}
	if result.Stopped != "" {
		output.Status = db.StatusBudget
	}

	// An empty body means the budget stopped the run before the first
	// call. A normal outcome, but nothing worth writing.
	if result.Body != "" {
		n := &note.Note{
			Title:     req.EventName,
			Body:      result.Body,
			Event:     req.EventName,
			TimeRange: req.TimeRange,
			Tags:      []string{"event"},
			Created:   time.Now(),
		}
		path, err := events.WriteNote(n)
		if err != nil {
			run.Chunks = result.ChunksDone
			run.Calls = budget.CallsMade
			run.PromptTokens = result.Usage.PromptTokens
			run.CompletionTokens = result.Usage.CompletionTokens
			run.TotalTokens = budget.TokensUsed
			run.Status = db.StatusError
			run.Error = errorMessage(err)
			recordRun(database, run)
			return nil, err
		}
		output.NotePath = path
		output.Created = true
	}

	run.Chunks = result.ChunksDone
	run.Calls = budget.CallsMade
	run.PromptTokens = result.Usage.PromptTokens
	run.CompletionTokens = result.Usage.CompletionTokens
	run.TotalTokens = budget.TokensUsed
	run.NotePath = output.NotePath
	run.Status = output.Status
	recordRun(database, run)

	return output, nil
}
