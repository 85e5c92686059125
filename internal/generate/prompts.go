package generate

import (
	"fmt"
	"strings"
)

// collectSystem frames the model as a note-writing historian. The brace
// convention it teaches is what ExtractRefs later picks up for linking.
const collectSystem = "You are a historian writing reference notes for a personal knowledge base. " +
	"Write accurate, concise accounts in Markdown using short paragraphs, with bullet lists where they help. " +
	"Whenever you mention a notable related historical event, wrap it in braces with its year, " +
	"like {Battle of Midway (1942)}, so it can be cross-linked later. " +
	"Do not use top-level # headings; start sections at ## if you need headings at all."

// detailSystem forces a bare JSON reply for the expansion step.
const detailSystem = "You are a historian answering with structured data. " +
	"Respond with a single JSON object and nothing else: no Markdown fences, no commentary."

// chunkPrompt builds the user prompt for one chunk of a note.
func chunkPrompt(event string, c Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a reference note section about the historical event %q.", event)
	if c.TimeRange != "" {
		fmt.Fprintf(&b, " Focus on the period %s.", c.TimeRange)
	}
	if c.Total > 1 {
		fmt.Fprintf(&b, " This is part %d of %d of the full note: cover this part's share of the story in chronological order and do not recap the other parts.", c.Part, c.Total)
	}
	b.WriteString(" Cover the key actors, developments, and outcomes.")
	b.WriteString(" Mark notable related events as {Event Name (Year)}.")
	return b.String()
}

// detailPrompt asks for the structured record of one referenced event.
func detailPrompt(ref string) string {
	return fmt.Sprintf(
		"Provide details about the historical event %q as a JSON object with exactly these fields:\n"+
			`{"title": "short title", "happened": "one-paragraph summary of what happened", `+
			`"person": ["key people"], "places": ["key places"], "tags": ["topic tags"], `+
			`"details": "a longer account with background and consequences"}`+
			"\nUse empty arrays when nothing applies. Respond with the JSON object only.", ref)
}
