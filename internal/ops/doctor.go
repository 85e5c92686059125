package ops

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"

	"github.com/avelhart/chronicle/internal/config"
	"github.com/avelhart/chronicle/internal/db"
	"github.com/avelhart/chronicle/internal/vault"
)

// Check statuses for Doctor.
const (
	CheckOK   = "ok"
	CheckWarn = "warn"
	CheckFail = "fail"
)

// DoctorCheck is one diagnostic finding.
type DoctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// DoctorOutput contains the result of the Doctor operation.
type DoctorOutput struct {
	Checks  []DoctorCheck `json:"checks"`
	Healthy bool          `json:"healthy"`
}

// Doctor inspects the configuration, vault and ledger and reports what a
// collect run would trip over. It never fails on a fixable condition; the
// point is the report.
func Doctor(cfg *config.Config, database *sql.DB) (*DoctorOutput, error) {
	output := &DoctorOutput{Healthy: true}
	add := func(name, status, detail string) {
		output.Checks = append(output.Checks, DoctorCheck{Name: name, Status: status, Detail: detail})
		if status == CheckFail {
			output.Healthy = false
		}
	}

	if cfg.APIKey == "" {
		add("api_key", CheckFail, "R1_API_KEY is not set")
	} else {
		add("api_key", CheckOK, cfg.MaskedKey())
	}

	if u, err := url.Parse(cfg.APIEndpoint); err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		add("endpoint", CheckFail, fmt.Sprintf("R1_API_ENDPOINT is not a usable URL: %q", cfg.APIEndpoint))
	} else {
		add("endpoint", CheckOK, cfg.APIEndpoint)
	}

	if cfg.Model == "" {
		add("model", CheckFail, "R1_MODEL is empty")
	} else {
		add("model", CheckOK, cfg.Model)
	}

	if _, err := os.Stat(cfg.VaultPath); err != nil {
		add("vault", CheckWarn, fmt.Sprintf("%s does not exist yet; collect creates it", cfg.VaultPath))
	} else {
		add("vault", CheckOK, cfg.VaultPath)
	}

	addFolderCheck(add, "events_folder", cfg.EventsDir(), cfg.EventFolder)
	addFolderCheck(add, "details_folder", cfg.DetailsDir(), cfg.DetailFolder)

	if database == nil {
		add("ledger", CheckFail, "database is not open")
	} else if err := database.Ping(); err != nil {
		add("ledger", CheckFail, fmt.Sprintf("database ping failed: %v", err))
	} else if version, err := db.GetUserVersion(database); err != nil {
		add("ledger", CheckFail, fmt.Sprintf("schema version unreadable: %v", err))
	} else {
		add("ledger", CheckOK, fmt.Sprintf("schema version %d", version))
	}

	if cfg.MaxCalls < 1 {
		add("budget", CheckWarn, "MAX_API_CALLS is 0: runs will stop before the first call")
	} else if cfg.MaxTokensPerRequest > cfg.MaxTokensTotal {
		add("budget", CheckWarn, fmt.Sprintf("per-request token cap %d exceeds the total budget %d", cfg.MaxTokensPerRequest, cfg.MaxTokensTotal))
	} else {
		add("budget", CheckOK, fmt.Sprintf("%d calls, %d tokens total", cfg.MaxCalls, cfg.MaxTokensTotal))
	}

	if cfg.RequestTimeout <= 0 {
		add("timeout", CheckWarn, "REQUEST_TIMEOUT is not positive; requests will never time out")
	} else {
		add("timeout", CheckOK, cfg.RequestTimeout.String())
	}

	return output, nil
}

// addFolderCheck reports one vault folder with its note count.
func addFolderCheck(add func(name, status, detail string), name, dir, folder string) {
	if _, err := os.Stat(dir); err != nil {
		add(name, CheckWarn, fmt.Sprintf("%s does not exist yet", dir))
		return
	}
	summaries, err := vault.New(dir, folder).List()
	if err != nil {
		add(name, CheckWarn, fmt.Sprintf("unreadable: %v", err))
		return
	}
	add(name, CheckOK, fmt.Sprintf("%d notes", len(summaries)))
}
