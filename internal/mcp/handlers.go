package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/avelhart/chronicle/internal/config"
	"github.com/avelhart/chronicle/internal/errors"
	"github.com/avelhart/chronicle/internal/generate"
	"github.com/avelhart/chronicle/internal/ops"
	"github.com/avelhart/chronicle/internal/vault"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	gen     *generate.Generator
	events  *vault.Vault
	details *vault.Vault
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, gen *generate.Generator, events, details *vault.Vault) *Handlers {
	return &Handlers{db: db, cfg: cfg, gen: gen, events: events, details: details}
}

// decode unmarshals MCP request arguments into a typed struct, going
// through JSON so field types are checked rather than asserted.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	args := req.GetArguments()
	b, err := json.Marshal(args)
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// Request types for each tool

// CollectRequest represents the arguments for collect.
type CollectRequest struct {
	Event     string `json:"event"`
	TimeRange string `json:"time_range,omitempty"`
	Chunks    int    `json:"chunks,omitempty"`
}

// ExpandRequest represents the arguments for expand.
type ExpandRequest struct {
	Note  string `json:"note,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// RunsRequest represents the arguments for runs.
type RunsRequest struct {
	Kind  string `json:"kind,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Handler implementations

// HandleCollect handles the collect tool call.
func (h *Handlers) HandleCollect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CollectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.cfg.Validate(); err != nil {
		return errorResult(err), nil
	}

	chunks := input.Chunks
	if chunks == 0 {
		chunks = h.cfg.DefaultChunks
	}

	result, err := ops.Collect(ctx, h.db, h.gen, h.events, ops.CollectInput{
		EventName:      input.Event,
		TimeRange:      input.TimeRange,
		ChunkCount:     chunks,
		MaxCalls:       h.cfg.MaxCalls,
		MaxTotalTokens: h.cfg.MaxTokensTotal,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExpand handles the expand tool call.
func (h *Handlers) HandleExpand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExpandRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.cfg.Validate(); err != nil {
		return errorResult(err), nil
	}

	maxCalls := h.cfg.MaxCalls
	if input.Limit > 0 {
		maxCalls = input.Limit
	}

	result, err := ops.Expand(ctx, h.db, h.gen, h.events, h.details, ops.ExpandInput{
		Note:           input.Note,
		MaxCalls:       maxCalls,
		MaxTotalTokens: h.cfg.MaxTokensTotal,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRuns handles the runs tool call.
func (h *Handlers) HandleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Runs(h.db, ops.RunsInput{
		Kind:  input.Kind,
		Limit: input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDoctor handles the doctor tool call.
func (h *Handlers) HandleDoctor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Doctor(h.cfg, h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var cErr *errors.ChronicleError
	if stderrors.As(err, &cErr) {
		errorObj := map[string]any{
			"code":    cErr.Code,
			"message": cErr.Message,
			"status":  cErr.Status,
		}
		if cErr.Code != errors.ErrInternal && cErr.Details != nil {
			errorObj["details"] = cErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
