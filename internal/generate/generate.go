package generate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avelhart/chronicle/internal/errors"
	"github.com/avelhart/chronicle/internal/llm"
)

// Request describes one note to generate.
type Request struct {
	EventName  string
	TimeRange  string
	ChunkCount int
}

// Validate checks the request fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.EventName) == "" {
		return errors.NewInvalidRequest("event name is required")
	}
	if r.ChunkCount < 1 {
		return errors.NewInvalidRequest("chunk count must be at least 1")
	}
	return nil
}

// Budget tracks API spend across a run. It is checked before every call and
// updated after, so a single call may overshoot the token ceiling but never
// more than one.
type Budget struct {
	MaxCalls       int `json:"max_calls"`
	MaxTotalTokens int `json:"max_total_tokens"`
	CallsMade      int `json:"calls_made"`
	TokensUsed     int `json:"tokens_used"`
}

// NewBudget returns a fresh budget with nothing spent.
func NewBudget(maxCalls, maxTotalTokens int) *Budget {
	return &Budget{MaxCalls: maxCalls, MaxTotalTokens: maxTotalTokens}
}

// ExhaustedReason returns a human-readable reason when no further call may
// be made, or "" while budget remains. MaxCalls of zero exhausts immediately.
func (b *Budget) ExhaustedReason() string {
	if b.CallsMade >= b.MaxCalls {
		return fmt.Sprintf("call budget exhausted (%d/%d calls)", b.CallsMade, b.MaxCalls)
	}
	if b.TokensUsed >= b.MaxTotalTokens {
		return fmt.Sprintf("token budget exhausted (%d/%d tokens)", b.TokensUsed, b.MaxTotalTokens)
	}
	return ""
}

// Record counts one completed call against the budget.
func (b *Budget) Record(usage llm.Usage) {
	b.CallsMade++
	b.TokensUsed += usage.TotalTokens
}

// Chunk is one planned API call for a request.
type Chunk struct {
	Part      int    // 1-based position in the plan
	Total     int    // number of chunks in the plan
	TimeRange string // sub-range for this chunk, or the request's range verbatim
}

// Label describes the chunk for logs and error messages.
func (c Chunk) Label() string {
	if c.TimeRange != "" {
		return fmt.Sprintf("part %d/%d (%s)", c.Part, c.Total, c.TimeRange)
	}
	return fmt.Sprintf("part %d/%d", c.Part, c.Total)
}

// spanPattern matches a simple year span like "1939-1945", "1914–1918" or
// "1600~1868". Anything else is passed to the model verbatim.
var spanPattern = regexp.MustCompile(`^\s*(\d{1,4})\s*[-–~]\s*(\d{1,4})\s*$`)

// Plan splits a request into exactly ChunkCount chunks. When the time range
// is a year span wide enough to divide, each chunk gets a contiguous
// sub-range with the remainder years on the last chunk. Otherwise every
// chunk carries the original range and relies on the part numbering.
func Plan(req Request) []Chunk {
	n := req.ChunkCount
	if n < 1 {
		n = 1
	}

	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{Part: i + 1, Total: n, TimeRange: strings.TrimSpace(req.TimeRange)}
	}

	if subs, ok := splitSpan(req.TimeRange, n); ok {
		for i := range chunks {
			chunks[i].TimeRange = subs[i]
		}
	}
	return chunks
}

// splitSpan divides a "start-end" year span into n contiguous sub-ranges.
// Returns false when the range does not parse, is reversed, or holds fewer
// years than chunks.
func splitSpan(timeRange string, n int) ([]string, bool) {
	m := spanPattern.FindStringSubmatch(timeRange)
	if m == nil {
		return nil, false
	}
	start, err1 := strconv.Atoi(m[1])
	end, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || end < start {
		return nil, false
	}
	years := end - start + 1
	if years < n {
		return nil, false
	}

	base := years / n
	rem := years % n
	subs := make([]string, n)
	cur := start
	for i := 0; i < n; i++ {
		width := base
		if i == n-1 {
			width += rem
		}
		last := cur + width - 1
		if width == 1 {
			subs[i] = strconv.Itoa(cur)
		} else {
			subs[i] = fmt.Sprintf("%d-%d", cur, last)
		}
		cur = last + 1
	}
	return subs, true
}

// Options tunes a Generator.
type Options struct {
	// MaxTokensPerRequest caps each individual completion.
	MaxTokensPerRequest int

	// Temperature for all completions.
	Temperature float64

	// Pacing is the delay inserted before every call after the first.
	// Zero disables pacing.
	Pacing time.Duration

	// Sleep is called to pace. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// Generator runs budgeted completion sequences against one client.
type Generator struct {
	client llm.Client
	opts   Options
}

// New returns a Generator over client.
func New(client llm.Client, opts Options) *Generator {
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Generator{client: client, opts: opts}
}

// Result is the outcome of a completed (or budget-stopped) generation run.
type Result struct {
	// Body is the chunk texts joined with blank lines. Empty when the
	// budget stopped the run before the first call.
	Body string

	// ChunksDone counts chunks whose call completed, empty replies included.
	ChunksDone int

	// ChunksPlanned is the size of the plan.
	ChunksPlanned int

	// Usage sums token usage across all calls in this run.
	Usage llm.Usage

	// Stopped holds the budget reason when the run ended early, "" when
	// every planned chunk completed.
	Stopped string
}

// Run generates the note body for req, one call per chunk, stopping early
// when the budget runs out. Budget exhaustion is a normal outcome; an API
// failure aborts the whole run with an error and no partial result.
func (g *Generator) Run(ctx context.Context, req Request, budget *Budget) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	chunks := Plan(req)
	result := &Result{ChunksPlanned: len(chunks)}
	var parts []string

	for _, chunk := range chunks {
		if reason := budget.ExhaustedReason(); reason != "" {
			result.Stopped = reason
			slog.Info("generation stopped early",
				"event", req.EventName,
				"reason", reason,
				"chunks_done", result.ChunksDone)
			break
		}

		text, usage, err := g.call(ctx, collectSystem, chunkPrompt(req.EventName, chunk), budget)
		result.Usage.PromptTokens += usage.PromptTokens
		result.Usage.CompletionTokens += usage.CompletionTokens
		result.Usage.TotalTokens += usage.TotalTokens
		if err != nil {
			return nil, err
		}

		slog.Debug("chunk generated",
			"event", req.EventName,
			"chunk", chunk.Label(),
			"tokens", usage.TotalTokens)

		if text != "" {
			parts = append(parts, text)
		}
		result.ChunksDone++
	}

	result.Body = strings.Join(parts, "\n\n")
	return result, nil
}

// Detail asks for the structured JSON record of one referenced event. The
// caller is expected to check the budget first; usage is recorded here.
func (g *Generator) Detail(ctx context.Context, ref string, budget *Budget) (string, llm.Usage, error) {
	return g.call(ctx, detailSystem, detailPrompt(ref), budget)
}

// call performs one paced completion and records it against the budget.
// The call counts even when it fails, so the ledger reflects attempts.
func (g *Generator) call(ctx context.Context, system, prompt string, budget *Budget) (string, llm.Usage, error) {
	select {
	case <-ctx.Done():
		return "", llm.Usage{}, errors.NewCancelled("generate")
	default:
	}

	if budget.CallsMade > 0 && g.opts.Pacing > 0 {
		g.opts.Sleep(g.opts.Pacing)
	}

	text, usage, err := g.client.Complete(ctx, llm.Request{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   g.opts.MaxTokensPerRequest,
		Temperature: g.opts.Temperature,
	})
	budget.Record(usage)
	return text, usage, err
}
