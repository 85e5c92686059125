package ops

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/avelhart/chronicle/internal/db"
	"github.com/avelhart/chronicle/internal/errors"
	"github.com/avelhart/chronicle/internal/note"
)

// writeSourceNote puts an event note with the given body in the env.
func writeSourceNote(t *testing.T, env *testEnv, title, body string) string {
	t.Helper()
	n := &note.Note{
		Title:   title,
		Body:    body,
		Event:   title,
		Created: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if _, err := env.events.WriteNote(n); err != nil {
		t.Fatalf("WriteNote failed: %v", err)
	}
	return n.Filename()
}

func TestExpand_CreatesDetailAndLink(t *testing.T) {
	env := newTestEnv(t, reply(detailJSON, 300))
	name := writeSourceNote(t, env, "World War II",
		"The {Battle of Midway (1942)} shifted the Pacific.")

	output, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		MaxCalls:       10,
		MaxTotalTokens: 5000,
	})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if output.NotesScanned != 1 {
		t.Errorf("NotesScanned = %d, want 1", output.NotesScanned)
	}
	if output.RefsFound != 1 {
		t.Errorf("RefsFound = %d, want 1", output.RefsFound)
	}
	if len(output.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(output.Items))
	}
	item := output.Items[0]
	if item.Action != "created" {
		t.Errorf("Action = %s, want created", item.Action)
	}
	if item.Ref != "Battle of Midway (1942)" {
		t.Errorf("Ref = %q", item.Ref)
	}

	// Detail note on disk
	detail, err := env.details.ReadFile("Battle_of_Midway_1942_detail.md")
	if err != nil {
		t.Fatalf("detail note missing: %v", err)
	}
	if !strings.Contains(detail, "## What happened") {
		t.Error("detail note should have the happened section")
	}
	if !strings.Contains(detail, "Source: [[World_War_II]]") {
		t.Error("detail note should link back to its source")
	}

	// Source note gained the link, frontmatter intact
	source, err := env.events.ReadFile(name)
	if err != nil {
		t.Fatalf("source note unreadable: %v", err)
	}
	if !strings.Contains(source, "{Battle of Midway (1942)} [[Battle_of_Midway_1942_detail]]") {
		t.Errorf("source should carry the inserted link, got:\n%s", source)
	}
	if !strings.HasPrefix(source, "---\n") {
		t.Error("source frontmatter should be preserved")
	}

	runs := env.listRuns(t)
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Kind != db.KindExpand || runs[0].Status != db.StatusOK || runs[0].Calls != 1 {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestExpand_SecondRunConverges(t *testing.T) {
	env := newTestEnv(t, reply(detailJSON, 300))
	writeSourceNote(t, env, "World War II",
		"The {Battle of Midway (1942)} shifted the Pacific.")

	_, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		MaxCalls:       10,
		MaxTotalTokens: 5000,
	})
	if err != nil {
		t.Fatalf("first Expand failed: %v", err)
	}
	callsAfterFirst := len(env.client.requests)

	output, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		MaxCalls:       10,
		MaxTotalTokens: 5000,
	})
	if err != nil {
		t.Fatalf("second Expand failed: %v", err)
	}

	if len(env.client.requests) != callsAfterFirst {
		t.Error("second run should make no API calls")
	}
	if len(output.Items) != 0 {
		t.Errorf("second run Items = %+v, want none", output.Items)
	}
	if output.Status != db.StatusOK {
		t.Errorf("Status = %s, want %s", output.Status, db.StatusOK)
	}
}

func TestExpand_ParseErrorSkipsRef(t *testing.T) {
	env := newTestEnv(t,
		reply("Sorry, I cannot answer in JSON.", 50),
		reply(detailJSON, 300),
	)
	name := writeSourceNote(t, env, "Pacific War",
		"After {Pearl Harbor (1941)} came {Battle of Midway (1942)}.")

	output, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		MaxCalls:       10,
		MaxTotalTokens: 5000,
	})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if len(output.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(output.Errors))
	}
	if output.Errors[0].Code != ExpandCodeParseError {
		t.Errorf("Code = %s, want %s", output.Errors[0].Code, ExpandCodeParseError)
	}
	if output.Errors[0].Ref != "Pearl Harbor (1941)" {
		t.Errorf("Errors[0].Ref = %q", output.Errors[0].Ref)
	}
	if len(output.Items) != 1 || output.Items[0].Ref != "Battle of Midway (1942)" {
		t.Errorf("Items = %+v, want the second ref created", output.Items)
	}
	if output.Status != db.StatusOK {
		t.Errorf("Status = %s, a skipped ref does not fail the run", output.Status)
	}

	source, err := env.events.ReadFile(name)
	if err != nil {
		t.Fatalf("source unreadable: %v", err)
	}
	if strings.Contains(source, "{Pearl Harbor (1941)} [[") {
		t.Error("skipped ref must not gain a link")
	}
	if !strings.Contains(source, "{Battle of Midway (1942)} [[Battle_of_Midway_1942_detail]]") {
		t.Error("successful ref should gain its link")
	}
}

func TestExpand_BudgetStops(t *testing.T) {
	env := newTestEnv(t, reply(detailJSON, 300))
	name := writeSourceNote(t, env, "Pacific War",
		"After {Battle of Midway (1942)} came {Okinawa (1945)}.")

	output, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		MaxCalls:       1,
		MaxTotalTokens: 5000,
	})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if output.Status != db.StatusBudget {
		t.Errorf("Status = %s, want %s", output.Status, db.StatusBudget)
	}
	if output.StoppedReason == "" {
		t.Error("StoppedReason should be set")
	}
	if len(output.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(output.Items))
	}

	// The completed link is flushed even though the run stopped.
	source, err := env.events.ReadFile(name)
	if err != nil {
		t.Fatalf("source unreadable: %v", err)
	}
	if !strings.Contains(source, "{Battle of Midway (1942)} [[Battle_of_Midway_1942_detail]]") {
		t.Error("first ref's link should be flushed before stopping")
	}
	if strings.Contains(source, "{Okinawa (1945)} [[") {
		t.Error("unprocessed ref must stay unlinked")
	}
	if env.details.Exists("Okinawa (1945) detail") {
		t.Error("no detail may exist for the unprocessed ref")
	}
}

func TestExpand_LinkOnlyWhenDetailExists(t *testing.T) {
	env := newTestEnv(t)
	name := writeSourceNote(t, env, "World War II",
		"The {Battle of Midway (1942)} shifted the Pacific.")

	// Detail note already there from an earlier run.
	detail := &note.Note{
		Title:   "Battle of Midway (1942) detail",
		Body:    "## What happened\n\nCarrier battle.",
		Event:   "Battle of Midway (1942)",
		Created: time.Now(),
	}
	if _, err := env.details.WriteNote(detail); err != nil {
		t.Fatalf("WriteNote failed: %v", err)
	}

	output, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		MaxCalls:       10,
		MaxTotalTokens: 5000,
	})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if len(env.client.requests) != 0 {
		t.Errorf("API calls = %d, want 0 for link-only work", len(env.client.requests))
	}
	if len(output.Items) != 1 || output.Items[0].Action != "linked" {
		t.Errorf("Items = %+v, want one linked item", output.Items)
	}

	source, err := env.events.ReadFile(name)
	if err != nil {
		t.Fatalf("source unreadable: %v", err)
	}
	if !strings.Contains(source, "{Battle of Midway (1942)} [[Battle_of_Midway_1942_detail]]") {
		t.Error("source should gain the link without an API call")
	}
}

func TestExpand_APIFailureAborts(t *testing.T) {
	env := newTestEnv(t, replyErr(errors.NewAPI(429, "rate limited")))
	name := writeSourceNote(t, env, "World War II",
		"The {Battle of Midway (1942)} shifted the Pacific.")

	_, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		MaxCalls:       10,
		MaxTotalTokens: 5000,
	})
	if err == nil {
		t.Fatal("Expand should surface the API failure")
	}
	if !errors.Is(err, errors.ErrAPI) {
		t.Errorf("expected API error, got %v", err)
	}

	source, readErr := env.events.ReadFile(name)
	if readErr != nil {
		t.Fatalf("source unreadable: %v", readErr)
	}
	if strings.Contains(source, "[[") {
		t.Error("aborted run must not modify the source note")
	}

	runs := env.listRuns(t)
	if len(runs) != 1 || runs[0].Status != db.StatusError {
		t.Errorf("ledger should hold one error run, got %+v", runs)
	}
}

func TestExpand_SingleNoteScope(t *testing.T) {
	env := newTestEnv(t, reply(detailJSON, 300))
	first := writeSourceNote(t, env, "Pacific War",
		"The {Battle of Midway (1942)} shifted the Pacific.")
	second := writeSourceNote(t, env, "European War",
		"Then {D-Day (1944)} opened the second front.")

	output, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		Note:           first,
		MaxCalls:       10,
		MaxTotalTokens: 5000,
	})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if output.NotesScanned != 1 {
		t.Errorf("NotesScanned = %d, want 1", output.NotesScanned)
	}
	if len(env.client.requests) != 1 {
		t.Errorf("API calls = %d, want 1", len(env.client.requests))
	}

	other, err := env.events.ReadFile(second)
	if err != nil {
		t.Fatalf("second note unreadable: %v", err)
	}
	if strings.Contains(other, "[[") {
		t.Error("out-of-scope note must be untouched")
	}
}

func TestExpand_MissingNote(t *testing.T) {
	env := newTestEnv(t)

	_, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		Note:           "absent.md",
		MaxCalls:       10,
		MaxTotalTokens: 5000,
	})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if runs := env.listRuns(t); len(runs) != 0 {
		t.Errorf("no ledger row for an input error, got %+v", runs)
	}
}

func TestExpand_FencedRefIgnored(t *testing.T) {
	env := newTestEnv(t)
	writeSourceNote(t, env, "Notes on syntax",
		"```\n{Battle of Midway (1942)}\n```\nNo prose references here.")

	output, err := Expand(context.Background(), env.database, env.gen, env.events, env.details, ExpandInput{
		MaxCalls:       10,
		MaxTotalTokens: 5000,
	})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if output.RefsFound != 0 {
		t.Errorf("RefsFound = %d, want 0", output.RefsFound)
	}
	if len(env.client.requests) != 0 {
		t.Errorf("API calls = %d, want 0", len(env.client.requests))
	}
}
