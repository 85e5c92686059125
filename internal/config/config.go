package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/avelhart/chronicle/internal/errors"
)

// Config holds application configuration, loaded once from the environment
// and passed explicitly into the generator and writer.
type Config struct {
	// APIKey authenticates against the generation API. Required for any
	// command that reaches the API; see Validate.
	APIKey string

	// APIEndpoint is the OpenAI-compatible base URL (".../v1").
	APIEndpoint string

	// Model is the chat model identifier sent with every request.
	Model string

	// Temperature is the sampling temperature for generation requests.
	Temperature float64

	// VaultPath is the root of the Obsidian-style vault.
	VaultPath string

	// EventFolder is the vault subfolder receiving collected event notes.
	EventFolder string

	// DetailFolder is the vault subfolder receiving expanded detail notes.
	DetailFolder string

	// DefaultChunks is the chunk count used when the prompt is left blank.
	DefaultChunks int

	// MaxCalls caps API calls per run (Budget.max_calls).
	MaxCalls int

	// MaxTokensPerRequest caps completion tokens for a single call.
	MaxTokensPerRequest int

	// MaxTokensTotal caps cumulative tokens per run (Budget.max_total_tokens).
	MaxTokensTotal int

	// RequestTimeout bounds each HTTP call to the API.
	RequestTimeout time.Duration

	// HomeDir is the state directory holding the run-ledger database.
	HomeDir string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// DefaultConfig returns the built-in defaults. Paths that need the user's
// home directory are resolved by Load.
func DefaultConfig() *Config {
	return &Config{
		APIEndpoint:         "https://api.siliconflow.cn/v1",
		Model:               "deepseek-ai/DeepSeek-R1",
		Temperature:         0.4,
		EventFolder:         "Events",
		DetailFolder:        "AIdetails",
		DefaultChunks:       3,
		MaxCalls:            10,
		MaxTokensPerRequest: 1000,
		MaxTokensTotal:      5000,
		RequestTimeout:      60 * time.Second,
		LogLevel:            "info",
	}
}

// Load builds the configuration from defaults plus environment overrides.
// It does not require the API key; call Validate before any command that
// reaches the API so diagnostics (doctor) can still run without one.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not determine home directory: %w", err)
	}

	cfg := DefaultConfig()
	cfg.VaultPath = filepath.Join(home, "Documents", "Obsidian")
	cfg.HomeDir = filepath.Join(home, ".chronicle")

	r := &envReader{}
	cfg.APIKey = r.str("R1_API_KEY", cfg.APIKey)
	cfg.APIEndpoint = normalizeEndpoint(r.str("R1_API_ENDPOINT", cfg.APIEndpoint))
	cfg.Model = r.str("R1_MODEL", cfg.Model)
	cfg.Temperature = r.float("R1_TEMPERATURE", cfg.Temperature)
	cfg.VaultPath = expandHome(home, r.str("OBSIDIAN_VAULT_PATH", cfg.VaultPath))
	cfg.EventFolder = r.str("EVENT_FOLDER", cfg.EventFolder)
	cfg.DetailFolder = r.str("DETAIL_FOLDER", cfg.DetailFolder)
	cfg.DefaultChunks = r.num("DEFAULT_CHUNKS", cfg.DefaultChunks)
	cfg.MaxCalls = r.num("MAX_API_CALLS", cfg.MaxCalls)
	cfg.MaxTokensPerRequest = r.num("MAX_TOKENS_PER_REQUEST", cfg.MaxTokensPerRequest)
	cfg.MaxTokensTotal = r.num("MAX_TOKENS_TOTAL", cfg.MaxTokensTotal)
	cfg.RequestTimeout = time.Duration(r.num("REQUEST_TIMEOUT", int(cfg.RequestTimeout/time.Second))) * time.Second
	cfg.HomeDir = expandHome(home, r.str("CHRONICLE_HOME", cfg.HomeDir))
	cfg.LogLevel = r.str("CHRONICLE_LOG", cfg.LogLevel)
	if r.err != nil {
		return nil, r.err
	}

	return cfg, nil
}

// Validate fails fast when the configuration cannot support API calls.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.NewConfig("R1_API_KEY is not set; export it before running collect or expand")
	}
	if c.DefaultChunks < 1 {
		return errors.NewConfig("DEFAULT_CHUNKS must be at least 1")
	}
	if c.MaxTokensPerRequest < 1 {
		return errors.NewConfig("MAX_TOKENS_PER_REQUEST must be at least 1")
	}
	return nil
}

// EventsDir returns the absolute directory for collected event notes.
func (c *Config) EventsDir() string {
	return filepath.Join(c.VaultPath, c.EventFolder)
}

// DetailsDir returns the absolute directory for expanded detail notes.
func (c *Config) DetailsDir() string {
	return filepath.Join(c.VaultPath, c.DetailFolder)
}

// MaskedKey returns the API key reduced to its last four characters for
// display in diagnostics.
func (c *Config) MaskedKey() string {
	if c.APIKey == "" {
		return "(not set)"
	}
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return "****" + c.APIKey[len(c.APIKey)-4:]
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envReader reads typed environment values, keeping the first parse error.
type envReader struct {
	err error
}

func (r *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *envReader) num(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("invalid %s: %q is not an integer", key, v)
		}
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("invalid %s: %q is not a number", key, v)
		}
		return def
	}
	return f
}

// normalizeEndpoint accepts both a bare base URL and the legacy full
// chat-completions URL, reducing either to the ".../v1" base the SDK expects.
func normalizeEndpoint(u string) string {
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	return u
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(home, path string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
