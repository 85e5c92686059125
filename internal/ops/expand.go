package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/avelhart/chronicle/internal/db"
	"github.com/avelhart/chronicle/internal/errors"
	"github.com/avelhart/chronicle/internal/generate"
	"github.com/avelhart/chronicle/internal/note"
	"github.com/avelhart/chronicle/internal/vault"
)

// ExpandInput contains parameters for the Expand operation.
type ExpandInput struct {
	Note           string // optional: a single "Name.md" to expand, "" for the whole folder
	MaxCalls       int    // call budget for this run
	MaxTotalTokens int    // token budget for this run
}

// ExpandItem records one reference the operation handled.
type ExpandItem struct {
	Ref        string `json:"ref"`
	Note       string `json:"note"`
	Action     string `json:"action"` // "created" or "linked"
	DetailPath string `json:"detail_path,omitempty"`
}

// ExpandError records one reference that was skipped. The run keeps going.
type ExpandError struct {
	Ref     string `json:"ref"`
	Note    string `json:"note"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for ExpandError.
const (
	ExpandCodeParseError = "PARSE_ERROR" // model reply was not the expected JSON
)

// ExpandOutput contains the result of the Expand operation.
type ExpandOutput struct {
	RunID         string          `json:"run_id"`
	NotesScanned  int             `json:"notes_scanned"`
	RefsFound     int             `json:"refs_found"`
	Items         []ExpandItem    `json:"items"`
	Errors        []ExpandError   `json:"errors,omitempty"`
	Status        string          `json:"status"`
	StoppedReason string          `json:"stopped_reason,omitempty"`
	Budget        generate.Budget `json:"budget"`
}

// noteFile is one source note loaded for expansion.
type noteFile struct {
	name    string // "Name.md"
	prefix  string // frontmatter block, reattached verbatim on write
	body    string
	changed bool
}

// Expand walks event notes for {…} references, asks the model for a
// structured account of each one that has no detail note yet, writes the
// detail note into the details folder, and inserts a [[link]] after the
// reference in the source note. Already-linked references with an existing
// detail note are left alone, so repeated runs converge. A reply that is
// not valid JSON skips that reference and the run continues; an API failure
// aborts the run. Source notes are only rewritten after all their
// references are handled.
func Expand(ctx context.Context, database *sql.DB, gen *generate.Generator, events, details *vault.Vault, input ExpandInput) (*ExpandOutput, error) {
	files, err := loadNoteFiles(events, input.Note)
	if err != nil {
		return nil, err
	}

	runID, err := newRunID()
	if err != nil {
		return nil, err
	}

	budget := generate.NewBudget(input.MaxCalls, input.MaxTotalTokens)
	scope := input.Note
	if scope == "" {
		scope = "all"
	}
	run := &db.Run{
		ID:        runID,
		Kind:      db.KindExpand,
		Event:     scope,
		CreatedAt: time.Now().Unix(),
	}

	output := &ExpandOutput{
		RunID:        runID,
		NotesScanned: len(files),
	}
	var tally expandTally

	abort := func(err error) (*ExpandOutput, error) {
		run.Calls = budget.CallsMade
		run.PromptTokens = tally.prompt
		run.CompletionTokens = tally.completion
		run.TotalTokens = budget.TokensUsed
		run.Status = db.StatusError
		run.Error = errorMessage(err)
		recordRun(database, run)
		return nil, err
	}

	stopped := ""
	for i := range files {
		file := &files[i]

		select {
		case <-ctx.Done():
			return abort(errors.NewCancelled("expand"))
		default:
		}

		stop, err := expandNote(ctx, gen, details, file, budget, &tally, output)
		if err != nil {
			return abort(err)
		}

		// Flush link insertions before stopping so the notes match the
		// detail files already on disk.
		if file.changed {
			if _, err := events.WriteFile(file.name, file.prefix+file.body); err != nil {
				return abort(err)
			}
		}

		if stop != "" {
			stopped = stop
			break
		}
	}

	output.Status = db.StatusOK
	output.StoppedReason = stopped
	if stopped != "" {
		output.Status = db.StatusBudget
	}
	output.Budget = *budget

	run.Calls = budget.CallsMade
	run.PromptTokens = tally.prompt
	run.CompletionTokens = tally.completion
	run.TotalTokens = budget.TokensUsed
	run.Status = output.Status
	recordRun(database, run)

	return output, nil
}

// expandTally sums the usage split across a run's detail calls.
type expandTally struct {
	prompt     int
	completion int
}

// expandNote processes every distinct reference in one note. Returns a
// non-empty stop reason when the budget ran out before a needed call.
func expandNote(ctx context.Context, gen *generate.Generator, details *vault.Vault, file *noteFile, budget *generate.Budget, tally *expandTally, output *ExpandOutput) (string, error) {
	refs := vault.ExtractRefs(file.body)
	sourceName := trimExt(file.name)

	type refState struct {
		text      string
		allLinked bool
	}
	var order []string
	states := make(map[string]*refState)
	for _, r := range refs {
		s, ok := states[r.Text]
		if !ok {
			s = &refState{text: r.Text, allLinked: true}
			states[r.Text] = s
			order = append(order, r.Text)
		}
		if !r.Linked {
			s.allLinked = false
		}
	}
	output.RefsFound += len(order)

	for _, text := range order {
		s := states[text]
		detailTitle := text + " detail"
		exists := details.Exists(detailTitle)

		// Converged: detail written and every occurrence linked.
		if exists && s.allLinked {
			continue
		}

		if !exists {
			if reason := budget.ExhaustedReason(); reason != "" {
				return reason, nil
			}

			raw, usage, err := gen.Detail(ctx, text, budget)
			tally.prompt += usage.PromptTokens
			tally.completion += usage.CompletionTokens
			if err != nil {
				return "", err
			}

			d, perr := note.ParseDetail(raw)
			if perr != nil {
				output.Errors = append(output.Errors, ExpandError{
					Ref:     text,
					Note:    file.name,
					Code:    ExpandCodeParseError,
					Message: perr.Error(),
				})
				continue
			}

			dn := d.DetailNote(text, sourceName, time.Now())
			path, werr := details.WriteNote(dn)
			if werr != nil {
				return "", werr
			}

			if body, changed := vault.InsertLink(file.body, text, dn.LinkTarget()); changed {
				file.body = body
				file.changed = true
			}
			output.Items = append(output.Items, ExpandItem{
				Ref:        text,
				Note:       file.name,
				Action:     "created",
				DetailPath: path,
			})
			continue
		}

		// Detail already on disk, only the link is missing.
		target := note.Sanitize(detailTitle)
		if body, changed := vault.InsertLink(file.body, text, target); changed {
			file.body = body
			file.changed = true
			output.Items = append(output.Items, ExpandItem{
				Ref:    text,
				Note:   file.name,
				Action: "linked",
			})
		}
	}

	return "", nil
}

// loadNoteFiles reads the notes to expand up front, so read failures
// surface before any API spend.
func loadNoteFiles(events *vault.Vault, single string) ([]noteFile, error) {
	var names []string
	if single != "" {
		names = []string{single}
	} else {
		summaries, err := events.List()
		if err != nil {
			return nil, err
		}
		for _, s := range summaries {
			names = append(names, s.Name+".md")
		}
	}

	files := make([]noteFile, 0, len(names))
	for _, name := range names {
		content, err := events.ReadFile(name)
		if err != nil {
			return nil, err
		}
		_, body, _ := note.SplitFrontmatter(content)
		files = append(files, noteFile{
			name:   name,
			prefix: content[:len(content)-len(body)],
			body:   body,
		})
	}
	return files, nil
}

func trimExt(name string) string {
	if len(name) > 3 && name[len(name)-3:] == ".md" {
		return name[:len(name)-3]
	}
	return name
}
