package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/avelhart/chronicle/internal/db"
	"github.com/avelhart/chronicle/internal/errors"
	"github.com/avelhart/chronicle/internal/note"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "notes" or "runs"
}

// ListPageData is the template data for the note list page.
type ListPageData struct {
	PageData
	Notes     []note.Summary
	Folder    string
	VaultPath string
}

// DetailPageData is the template data for the note detail page.
type DetailPageData struct {
	PageData
	Name         string
	Meta         note.Frontmatter
	HasMeta      bool
	RenderedHTML template.HTML
}

// RunsPageData is the template data for the run ledger page.
type RunsPageData struct {
	PageData
	Runs  []db.Run
	Usage *db.UsageTotals
	Kind  string
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string) *Renderer {
	funcMap := template.FuncMap{
		"formatTime":   formatTime,
		"formatNumber": formatNumber,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"list":   "list.html",
		"detail": "detail.html",
		"runs":   "runs.html",
		"error":  "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		slog.Error("template not found", "name", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("template execution failed", "name", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response, as JSON when the client asks for it.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var cErr *errors.ChronicleError
	if !stderrors.As(err, &cErr) {
		cErr = errors.NewInternal(err)
	}

	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderJSON(w, cErr.Status, map[string]any{
			"error": map[string]any{
				"code":    string(cErr.Code),
				"message": cErr.Message,
				"status":  cErr.Status,
			},
		})
		return
	}

	r.renderPageStatus(w, cErr.Status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", cErr.Status),
			Version: r.version,
		},
		StatusCode: cErr.Status,
		Message:    cErr.Message,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// wikilinkPattern matches [[Target]] and [[Target|Alias]] links.
var wikilinkPattern = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]+))?\]\]`)

// resolveWikilinks rewrites [[Target]] syntax into regular markdown links
// pointing at the viewer's note routes, so goldmark can render them.
func resolveWikilinks(md string) string {
	return wikilinkPattern.ReplaceAllStringFunc(md, func(m string) string {
		parts := wikilinkPattern.FindStringSubmatch(m)
		target := strings.TrimSpace(parts[1])
		display := target
		if parts[2] != "" {
			display = strings.TrimSpace(parts[2])
		}
		return fmt.Sprintf("[%s](/notes/%s)", display, url.PathEscape(target))
	})
}

// renderMarkdown converts note markdown to HTML, resolving wiki links first.
func renderMarkdown(md string) template.HTML {
	md = resolveWikilinks(md)
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

// formatNumber formats an integer with comma thousands separators. It takes
// any so templates can pass int and int64 fields alike.
func formatNumber(v any) string {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	default:
		return fmt.Sprint(v)
	}

	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
