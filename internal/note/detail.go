package note

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Detail is the strict-JSON record the expansion step requests from the model
// for one event reference.
type Detail struct {
	Title    string   `json:"title"`
	Happened string   `json:"happened"`
	Person   []string `json:"person"`
	Places   []string `json:"places"`
	Tags     []string `json:"tags"`
	Details  string   `json:"details"`
}

// jsonFencePattern extracts a JSON payload wrapped in a ```json code fence,
// which models frequently emit despite being asked for bare JSON.
var jsonFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParseDetail decodes a model response into a Detail, tolerating a code fence
// around the payload, and validates the required fields.
func ParseDetail(raw string) (*Detail, error) {
	payload := strings.TrimSpace(raw)
	if m := jsonFencePattern.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	}

	var d Detail
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if missing := d.missingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return &d, nil
}

// missingFields returns the names of required fields that are empty.
func (d *Detail) missingFields() []string {
	var missing []string
	if strings.TrimSpace(d.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(d.Happened) == "" {
		missing = append(missing, "happened")
	}
	if strings.TrimSpace(d.Details) == "" {
		missing = append(missing, "details")
	}
	return missing
}

// DetailNote renders a Detail into a Note for the detail folder.
// ref is the event reference text the detail was generated for; sourceName
// is the wiki-link target of the note the reference was found in.
func (d *Detail) DetailNote(ref, sourceName string, now time.Time) *Note {
	var sb strings.Builder

	if d.Title != "" && d.Title != ref {
		sb.WriteString("**")
		sb.WriteString(d.Title)
		sb.WriteString("**\n\n")
	}

	sb.WriteString("## What happened\n\n")
	sb.WriteString(strings.TrimSpace(d.Happened))
	sb.WriteString("\n")

	if len(d.Person) > 0 {
		sb.WriteString("\n## People\n\n")
		for _, p := range d.Person {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
	}

	if len(d.Places) > 0 {
		sb.WriteString("\n## Places\n\n")
		for _, p := range d.Places {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n## Details\n\n")
	sb.WriteString(strings.TrimSpace(d.Details))
	sb.WriteString("\n\nSource: [[")
	sb.WriteString(sourceName)
	sb.WriteString("]]\n")

	tags := append([]string{"detail"}, d.Tags...)

	return &Note{
		Title:   ref + " detail",
		Body:    sb.String(),
		Event:   ref,
		Source:  sourceName,
		Tags:    tags,
		Created: now,
	}
}
