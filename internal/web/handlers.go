package web

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/avelhart/chronicle/internal/config"
	"github.com/avelhart/chronicle/internal/errors"
	"github.com/avelhart/chronicle/internal/note"
	"github.com/avelhart/chronicle/internal/ops"
	"github.com/avelhart/chronicle/internal/vault"
)

// Handlers contains HTTP route handlers for the vault viewer.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	events   *vault.Vault
	details  *vault.Vault
	renderer *Renderer
}

// HandleNotes handles GET /notes, listing vault notes with an optional
// folder filter.
func (h *Handlers) HandleNotes(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")

	result, err := ops.Notes(h.events, h.details, ops.NotesInput{Folder: folder})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData: PageData{
			Title:   "Notes",
			Version: h.renderer.version,
			Nav:     "notes",
		},
		Notes:     result.Notes,
		Folder:    folder,
		VaultPath: h.cfg.VaultPath,
	})
}

// HandleNote handles GET /notes/{name}, rendering a single note. The name is
// a wiki-link target, so it is looked up in the events folder first and the
// details folder second.
func (h *Handlers) HandleNote(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("note name is required"))
		return
	}

	result, err := ops.Notes(h.events, h.details, ops.NotesInput{Name: name + ".md"})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	meta, body, hasMeta := note.SplitFrontmatter(result.Content)

	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData: PageData{
			Title:   note.TitleOf(result.Content, name),
			Version: h.renderer.version,
			Nav:     "notes",
		},
		Name:         name,
		Meta:         meta,
		HasMeta:      hasMeta,
		RenderedHTML: renderMarkdown(body),
	})
}

// HandleRuns handles GET /runs, showing the generation ledger and API spend.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")

	result, err := ops.Runs(h.db, ops.RunsInput{
		Kind:  kind,
		Limit: parseIntParam(r, "limit", 50),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "runs", RunsPageData{
		PageData: PageData{
			Title:   "Runs",
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Runs:  result.Runs,
		Usage: result.Usage,
		Kind:  kind,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
