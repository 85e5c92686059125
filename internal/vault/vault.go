package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/avelhart/chronicle/internal/errors"
	"github.com/avelhart/chronicle/internal/note"
)

// Vault wraps one folder of the Obsidian-style knowledge base. Note files
// live directly in the folder; filenames are single sanitized segments, so
// directory components can never be attacker-controlled. The final path
// component is still opened with O_NOFOLLOW to keep symlinked note names
// from redirecting writes.
type Vault struct {
	dir    string
	folder string
}

// New returns a Vault over dir. folder is the display name used in summaries.
func New(dir, folder string) *Vault {
	return &Vault{dir: dir, folder: folder}
}

// Dir returns the absolute folder path.
func (v *Vault) Dir() string { return v.dir }

// Folder returns the display name of the folder.
func (v *Vault) Folder() string { return v.folder }

// EnsureDir creates the folder if it does not exist.
func (v *Vault) EnsureDir() error {
	if err := os.MkdirAll(v.dir, 0o755); err != nil {
		return errors.NewFile(v.dir, fmt.Errorf("failed to create vault folder: %w", err))
	}
	return nil
}

// PathFor returns the file path a note with this title is written to.
func (v *Vault) PathFor(title string) string {
	return filepath.Join(v.dir, note.Sanitize(title)+".md")
}

// Exists reports whether a note with this title is already on disk.
func (v *Vault) Exists(title string) bool {
	_, err := os.Lstat(v.PathFor(title))
	return err == nil
}

// WriteNote renders n and writes it to its path, replacing any existing file.
// The content is written to a temp file and renamed into place, so a crash
// never leaves a partially written note. Returns the final path.
func (v *Vault) WriteNote(n *note.Note) (string, error) {
	content, err := n.Render()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	path := v.PathFor(n.Title)
	if err := v.writeAtomic(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// AppendNote appends n's body to the existing note of the same title, or
// writes a full note when none exists. Reports whether the file was created.
func (v *Vault) AppendNote(n *note.Note) (string, bool, error) {
	path := v.PathFor(n.Title)
	if _, err := os.Lstat(path); err != nil {
		if !os.IsNotExist(err) {
			return "", false, errors.NewFile(path, err)
		}
		written, werr := v.WriteNote(n)
		return written, true, werr
	}

	file, err := openFileNoFollow(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", false, errors.NewFile(path, err)
	}
	defer file.Close()

	addition := "\n\n---\n\n" + strings.TrimRight(n.Body, "\n") + "\n"
	if _, err := file.WriteString(addition); err != nil {
		return "", false, errors.NewFile(path, err)
	}
	if err := file.Sync(); err != nil {
		return "", false, errors.NewFile(path, err)
	}
	return path, false, nil
}

// ReadFile returns the content of a note file. filename must be a bare
// "name.md" segment, as produced by List or note.Note.Filename.
func (v *Vault) ReadFile(filename string) (string, error) {
	if err := validFilename(filename); err != nil {
		return "", err
	}
	path := filepath.Join(v.dir, filename)
	file, err := openFileNoFollowRead(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", errors.NewFile(path, err)
	}
	return string(data), nil
}

// WriteFile atomically replaces the content of a note file. Used by the
// expansion step to rewrite a source note with inserted links.
func (v *Vault) WriteFile(filename, content string) (string, error) {
	if err := validFilename(filename); err != nil {
		return "", err
	}
	path := filepath.Join(v.dir, filename)
	if err := v.writeAtomic(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// List returns summaries for all Markdown notes directly in the folder,
// newest modification first. A missing folder yields an empty list.
func (v *Vault) List() ([]note.Summary, error) {
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewFile(v.dir, err)
	}

	var summaries []note.Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")

		title := name
		if content, err := v.ReadFile(entry.Name()); err == nil {
			title = note.TitleOf(content, name)
		}

		summaries = append(summaries, note.Summary{
			Name:       name,
			Path:       filepath.Join(v.dir, entry.Name()),
			Title:      title,
			Folder:     v.folder,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().Unix(),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].ModifiedAt != summaries[j].ModifiedAt {
			return summaries[i].ModifiedAt > summaries[j].ModifiedAt
		}
		return summaries[i].Name < summaries[j].Name
	})
	return summaries, nil
}

// validFilename rejects anything that is not a bare Markdown file name.
func validFilename(filename string) error {
	if filename == "" {
		return errors.NewInvalidRequest("filename is required")
	}
	if filepath.Ext(filename) != ".md" {
		return errors.NewInvalidRequest("filename must have .md extension")
	}
	if strings.ContainsAny(filename, `/\`) || filename != filepath.Base(filename) {
		return errors.NewInvalidRequest("filename must not contain path separators")
	}
	if strings.Contains(filename, "..") {
		return errors.NewInvalidRequest("filename must not contain directory traversal (..)")
	}
	return nil
}

// writeAtomic writes content to a temp file in the same directory and
// renames it over path. The original file is preserved on any failure.
func (v *Vault) writeAtomic(path, content string) error {
	if err := v.EnsureDir(); err != nil {
		return err
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.NewFile(path, err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.WriteString(content); err != nil {
		return errors.NewFile(path, err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewFile(path, err)
	}

	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewFile(path, err)
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewFile(path, fmt.Errorf("destination is a symlink"))
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewFile(path, fmt.Errorf("cannot replace existing note on Windows: %w", err))
			}
		}
		return errors.NewFile(path, err)
	}

	success = true
	return nil
}
