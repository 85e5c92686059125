package ops

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/avelhart/chronicle/internal/db"
	"github.com/avelhart/chronicle/internal/generate"
	"github.com/avelhart/chronicle/internal/llm"
	"github.com/avelhart/chronicle/internal/vault"
)

// scriptedResponse is one canned completion for the scripted client.
type scriptedResponse struct {
	text  string
	usage llm.Usage
	err   error
}

func reply(text string, tokens int) scriptedResponse {
	return scriptedResponse{
		text:  text,
		usage: llm.Usage{PromptTokens: tokens / 2, CompletionTokens: tokens - tokens/2, TotalTokens: tokens},
	}
}

func replyErr(err error) scriptedResponse {
	return scriptedResponse{err: err}
}

// scriptedClient plays back responses in order and records every request.
type scriptedClient struct {
	responses []scriptedResponse
	requests  []llm.Request
}

var _ llm.Client = (*scriptedClient)(nil)

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (string, llm.Usage, error) {
	c.requests = append(c.requests, req)
	i := len(c.requests) - 1
	if i >= len(c.responses) {
		return "", llm.Usage{}, fmt.Errorf("unexpected call %d", i+1)
	}
	r := c.responses[i]
	return r.text, r.usage, r.err
}

// testEnv wires a ledger, vault folders and a scripted generator the way
// the CLI does, but under t.TempDir().
type testEnv struct {
	database *sql.DB
	events   *vault.Vault
	details  *vault.Vault
	client   *scriptedClient
	gen      *generate.Generator
	vaultDir string
}

func newTestEnv(t *testing.T, responses ...scriptedResponse) *testEnv {
	t.Helper()
	tmp := t.TempDir()

	database, err := db.Init(filepath.Join(tmp, "home"))
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	client := &scriptedClient{responses: responses}
	vaultDir := filepath.Join(tmp, "vault")
	return &testEnv{
		database: database,
		events:   vault.New(filepath.Join(vaultDir, "Events"), "Events"),
		details:  vault.New(filepath.Join(vaultDir, "AIdetails"), "AIdetails"),
		client:   client,
		gen:      generate.New(client, generate.Options{MaxTokensPerRequest: 800, Temperature: 0.4}),
		vaultDir: vaultDir,
	}
}

// listRuns fetches all ledger rows, newest first.
func (e *testEnv) listRuns(t *testing.T) []db.Run {
	t.Helper()
	runs, err := db.ListRuns(e.database, db.ListRunsOptions{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	return runs
}

func intPtr(v int) *int { return &v }

// detailJSON is a well-formed model reply for the expansion step.
const detailJSON = `{"title":"Battle of Midway","happened":"A carrier battle fought near Midway Atoll in June 1942.","person":["Chester Nimitz","Isoroku Yamamoto"],"places":["Midway Atoll"],"tags":["naval","pacific"],"details":"Four Japanese carriers were lost, shifting the balance in the Pacific."}`
