package ops

import (
	"crypto/rand"
	"database/sql"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/avelhart/chronicle/internal/db"
)

// newRunID generates a ULID for a ledger row.
func newRunID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// recordRun inserts a ledger row best-effort. Telemetry must never fail an
// operation that already produced its note.
func recordRun(database *sql.DB, r *db.Run) {
	if database == nil {
		return
	}
	if err := db.InsertRun(database, r); err != nil {
		slog.Warn("failed to record run", "run_id", r.ID, "error", err)
	}
}

// errorMessage renders err for the ledger's error column.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
