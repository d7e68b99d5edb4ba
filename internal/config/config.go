package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Sheet contains configuration for the spreadsheet that serves as the
// system of record.
type Sheet struct {
	BaseURL         string `toml:"base_url"`
	SpreadsheetID   string `toml:"spreadsheet_id"`
	APIKey          string `toml:"api_key"`
	ProductsSheet   string `toml:"products_sheet"`
	KeywordsSheet   string `toml:"keywords_sheet"`
	RequestsPerMin  int    `toml:"requests_per_minute"`
	MinIntervalMS   int    `toml:"min_interval_ms"`
	MaxWaitSeconds  int    `toml:"max_wait_seconds"`
	DedupTTLSeconds int    `toml:"dedup_ttl_seconds"`
}

// Market contains configuration for the product catalog API.
type Market struct {
	BaseURL        string `toml:"base_url"`
	APIID          string `toml:"api_id"`
	AffiliateID    string `toml:"affiliate_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLM contains shared LLM connection settings used by the suggestion and
// image-analysis facets.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	ImageModel     string `toml:"image_model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Publisher contains configuration for the publish-target REST API.
type Publisher struct {
	BaseURL        string `toml:"base_url"`
	Username       string `toml:"username"`
	AppPassword    string `toml:"app_password"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Scheduler contains slot timing configuration.
type Scheduler struct {
	IntervalMinutes      int `toml:"interval_minutes"`
	BatchIntervalMinutes int `toml:"batch_interval_minutes"`
	MaxSlotsPerDay       int `toml:"max_slots_per_day"`
}

// Workflow contains per-run limits and retry behaviour.
type Workflow struct {
	MaxJobsPerRun     int `toml:"max_jobs_per_run"`
	MaxKeywordsPerRun int `toml:"max_keywords_per_run"`
	RetryAttempts     int `toml:"retry_attempts"`
}

// PrefilterRule excludes a work (and its alias spellings) before any
// network calls are spent on a job.
type PrefilterRule struct {
	Work    string   `toml:"work"`
	Aliases []string `toml:"aliases"`
	Reason  string   `toml:"reason"`
}

// Prefilter contains the data-driven exclusion rule set.
type Prefilter struct {
	Rules []PrefilterRule `toml:"rules"`
}

// EnrichCache contains configuration for the on-disk AI response cache.
type EnrichCache struct {
	Enabled  bool   `toml:"enabled"`
	Path     string `toml:"path"`
	TTLHours int    `toml:"ttl_hours"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Runs           bool   `toml:"runs"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Scribe.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Sheet: spreadsheet access, rate budget, dedup cache TTL
//   - Market: product catalog API connection
//   - LLM: shared AI connection settings for both analysis facets
//   - Publisher: publish-target REST API credentials
//   - Scheduler: slot interval and batch planning limits
//   - Workflow: per-run caps and retry behaviour
//   - Prefilter: data-driven work exclusion rules
//   - EnrichCache: on-disk cache of AI responses
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Sheet         Sheet         `toml:"sheet"`
	Market        Market        `toml:"market"`
	LLM           LLM           `toml:"llm"`
	Publisher     Publisher     `toml:"publisher"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Workflow      Workflow      `toml:"workflow"`
	Prefilter     Prefilter     `toml:"prefilter"`
	EnrichCache   EnrichCache   `toml:"enrich_cache"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
