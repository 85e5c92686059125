package ops

import (
	"github.com/avelhart/chronicle/internal/errors"
	"github.com/avelhart/chronicle/internal/note"
	"github.com/avelhart/chronicle/internal/vault"
)

// Folder selectors for NotesInput.
const (
	FolderEvents  = "events"
	FolderDetails = "details"
)

// NotesInput contains parameters for the Notes operation.
type NotesInput struct {
	Folder string // "events", "details" or "" for both
	Name   string // optional: "Name.md" to read one note
}

// NotesOutput contains the result of the Notes operation.
type NotesOutput struct {
	Notes   []note.Summary `json:"notes"`
	Count   int            `json:"count"`
	Content string         `json:"content,omitempty"`
}

// Notes lists vault notes, or reads one when Name is set. Reading searches
// the events folder first, then details, unless Folder narrows it.
func Notes(events, details *vault.Vault, input NotesInput) (*NotesOutput, error) {
	var vaults []*vault.Vault
	switch input.Folder {
	case FolderEvents:
		vaults = []*vault.Vault{events}
	case FolderDetails:
		vaults = []*vault.Vault{details}
	case "":
		vaults = []*vault.Vault{events, details}
	default:
		return nil, errors.NewInvalidRequest("folder must be one of: events, details")
	}

	if input.Name != "" {
		for _, v := range vaults {
			content, err := v.ReadFile(input.Name)
			if err != nil {
				if errors.Is(err, errors.ErrNotFound) {
					continue
				}
				return nil, err
			}
			return &NotesOutput{Count: 1, Content: content}, nil
		}
		return nil, errors.NewNotFound(input.Name)
	}

	output := &NotesOutput{}
	for _, v := range vaults {
		summaries, err := v.List()
		if err != nil {
			return nil, err
		}
		output.Notes = append(output.Notes, summaries...)
	}
	output.Count = len(output.Notes)
	return output, nil
}
