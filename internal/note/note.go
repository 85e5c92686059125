package note

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Note represents a Markdown note destined for the vault. Title drives the
// filename; Body is the Markdown content below the heading.
type Note struct {
	Title     string
	Body      string
	Event     string
	TimeRange string
	Source    string
	Tags      []string
	Created   time.Time
}

// Frontmatter is the YAML block at the top of every generated note.
type Frontmatter struct {
	Event     string   `yaml:"event"`
	TimeRange string   `yaml:"time_range,omitempty"`
	Created   string   `yaml:"created"`
	Source    string   `yaml:"source,omitempty"`
	Tags      []string `yaml:"tags"`
}

// createdFormat matches the timestamp layout the notes have always used.
const createdFormat = "2006-01-02 15:04"

// Filename returns the sanitized file name for this note, including extension.
func (n *Note) Filename() string {
	return Sanitize(n.Title) + ".md"
}

// LinkTarget returns the wiki-link target for this note (filename without
// extension), usable as [[target]] in other notes.
func (n *Note) LinkTarget() string {
	return Sanitize(n.Title)
}

// Render produces the full file content: frontmatter, H1 title, body.
func (n *Note) Render() (string, error) {
	fm := Frontmatter{
		Event:     n.Event,
		TimeRange: n.TimeRange,
		Created:   n.Created.Format(createdFormat),
		Source:    n.Source,
		Tags:      n.Tags,
	}
	meta, err := yaml.Marshal(&fm)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(meta)
	sb.WriteString("---\n\n")
	sb.WriteString("# ")
	sb.WriteString(n.Title)
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimRight(n.Body, "\n"))
	sb.WriteString("\n")
	return sb.String(), nil
}

// frontmatterPattern matches a leading YAML frontmatter block.
var frontmatterPattern = regexp.MustCompile(`(?s)\A---\n(.*?)\n---\n?`)

// SplitFrontmatter separates a note file's frontmatter from its body.
// Returns ok=false (and the full text as body) when no frontmatter exists
// or it fails to parse; vault files are user-editable, so both are normal.
func SplitFrontmatter(text string) (Frontmatter, string, bool) {
	m := frontmatterPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return Frontmatter{}, text, false
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(text[m[2]:m[3]]), &fm); err != nil {
		return Frontmatter{}, text, false
	}
	return fm, text[m[1]:], true
}

// whitespaceRun matches one or more whitespace characters.
var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize reduces a title to a safe single path segment:
// keep Unicode letters, digits, spaces, '_' and '-'; drop everything else;
// trim, then collapse whitespace runs to single underscores.
// An empty result falls back to "untitled".
func Sanitize(title string) string {
	var sb strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		case r == ' ' || r == '_' || r == '-':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}

	s := strings.TrimSpace(sb.String())
	s = whitespaceRun.ReplaceAllString(s, "_")
	if s == "" {
		return "untitled"
	}
	return s
}

// Summary represents a vault note's metadata without its content.
// Used by browse operations (notes listing, web UI) to avoid reading bodies twice.
type Summary struct {
	// Name is the filename without the .md extension (the wiki-link target).
	Name string `json:"name"`

	// Path is the absolute file path.
	Path string `json:"path"`

	// Title is taken from the H1 heading, falling back to the frontmatter
	// event, falling back to Name.
	Title string `json:"title"`

	// Folder is the vault subfolder the note lives in.
	Folder string `json:"folder"`

	// SizeBytes is the file size.
	SizeBytes int64 `json:"size_bytes"`

	// ModifiedAt is the file's modification time as a Unix timestamp.
	ModifiedAt int64 `json:"modified_at"`
}

// h1Pattern matches the first top-level heading line.
var h1Pattern = regexp.MustCompile(`(?m)^# +(.+?)[ \t]*$`)

// TitleOf extracts a display title from note content per the Summary rules.
func TitleOf(content, fallback string) string {
	if m := h1Pattern.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	if fm, _, ok := SplitFrontmatter(content); ok && fm.Event != "" {
		return fm.Event
	}
	return fallback
}
