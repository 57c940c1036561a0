// Package config loads and validates the exporter configuration from
// ~/.pv2simkl/config.json. Missing fields are filled with defaults so a
// partially written file still loads.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

// AmazonConfig holds the Prime Video account credentials. Both fields may
// be empty when the user signs in manually in the browser window.
type AmazonConfig struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password"`
}

// SimklConfig configures the Simkl provider.
type SimklConfig struct {
	Enabled      bool   `json:"enabled"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TMDBConfig configures the TMDB provider.
type TMDBConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"api_key"`
}

// TVDBConfig configures the TVDB provider.
type TVDBConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"api_key"`
}

// MALConfig configures the MyAnimeList provider.
type MALConfig struct {
	Enabled  bool   `json:"enabled"`
	ClientID string `json:"client_id"`
}

// ProvidersConfig groups the per-provider settings.
type ProvidersConfig struct {
	Simkl SimklConfig `json:"simkl"`
	TMDB  TMDBConfig  `json:"tmdb"`
	TVDB  TVDBConfig  `json:"tvdb"`
	MAL   MALConfig   `json:"mal"`
}

// RateLimitsConfig carries the per-provider request budgets.
type RateLimitsConfig struct {
	Simkl provider.RateLimit `json:"simkl"`
	TMDB  provider.RateLimit `json:"tmdb"`
	TVDB  provider.RateLimit `json:"tvdb"`
	MAL   provider.RateLimit `json:"mal"`
}

// ScraperConfig tunes the browser session.
type ScraperConfig struct {
	Headless        bool   `json:"headless"`
	UserAgent       string `json:"user_agent"`
	HistoryURL      string `json:"history_url" validate:"omitempty,url"`
	NavTimeoutSecs  int    `json:"nav_timeout_seconds" validate:"gte=0"`
	ManualLoginSecs int    `json:"manual_login_timeout_seconds" validate:"gte=0"`
	ManualLogin     bool   `json:"manual_login"`
}

// OutputConfig controls where the CSV lands.
type OutputConfig struct {
	Path string `json:"path"`
}

// Config is the root configuration document.
type Config struct {
	Amazon    AmazonConfig     `json:"amazon"`
	Providers ProvidersConfig  `json:"providers"`
	Priority  []string         `json:"priority" validate:"dive,oneof=simkl tmdb tvdb mal"`
	RateLimit RateLimitsConfig `json:"rate_limits"`
	Scraper   ScraperConfig    `json:"scraper"`
	Output    OutputConfig     `json:"output"`

	WorkerCount      int  `json:"worker_count" validate:"gte=0"`
	LogRetentionDays int  `json:"log_retention_days" validate:"gte=0"`
	EnableLogging    bool `json:"enable_logging"`
}

var validate = validator.New()

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Simkl: SimklConfig{Enabled: true},
			TMDB:  TMDBConfig{Enabled: true},
			TVDB:  TVDBConfig{Enabled: true},
			MAL:   MALConfig{Enabled: false},
		},
		Priority: []string{"simkl", "tmdb", "tvdb", "mal"},
		RateLimit: RateLimitsConfig{
			Simkl: provider.RateLimit{Calls: 10, PerSeconds: 10},
			TMDB:  provider.RateLimit{Calls: 40, PerSeconds: 10},
			TVDB:  provider.RateLimit{Calls: 20, PerSeconds: 10},
			MAL:   provider.RateLimit{Calls: 10, PerSeconds: 10},
		},
		Scraper: ScraperConfig{
			Headless:        false,
			NavTimeoutSecs:  30,
			ManualLoginSecs: 300,
		},
		Output:           OutputConfig{Path: "watch-history.csv"},
		WorkerCount:      4,
		LogRetentionDays: 30,
		EnableLogging:    true,
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".pv2simkl", "config.json"), nil
}

// Load reads the configuration from disk
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration from an explicit path. A missing file
// yields the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in any missing fields with defaults.
func (cfg *Config) applyDefaults() {
	defaults := DefaultConfig()
	if len(cfg.Priority) == 0 {
		cfg.Priority = defaults.Priority
	}
	if cfg.RateLimit.Simkl == (provider.RateLimit{}) {
		cfg.RateLimit.Simkl = defaults.RateLimit.Simkl
	}
	if cfg.RateLimit.TMDB == (provider.RateLimit{}) {
		cfg.RateLimit.TMDB = defaults.RateLimit.TMDB
	}
	if cfg.RateLimit.TVDB == (provider.RateLimit{}) {
		cfg.RateLimit.TVDB = defaults.RateLimit.TVDB
	}
	if cfg.RateLimit.MAL == (provider.RateLimit{}) {
		cfg.RateLimit.MAL = defaults.RateLimit.MAL
	}
	if cfg.Scraper.NavTimeoutSecs == 0 {
		cfg.Scraper.NavTimeoutSecs = defaults.Scraper.NavTimeoutSecs
	}
	if cfg.Scraper.ManualLoginSecs == 0 {
		cfg.Scraper.ManualLoginSecs = defaults.Scraper.ManualLoginSecs
	}
	if cfg.Output.Path == "" {
		cfg.Output.Path = defaults.Output.Path
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = defaults.WorkerCount
	}
	if cfg.LogRetentionDays == 0 {
		cfg.LogRetentionDays = defaults.LogRetentionDays
	}
}

// Validate checks field constraints and cross-field rules: enabled
// providers must carry their credentials, and automated login needs both
// email and password.
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Providers.Simkl.Enabled {
		if cfg.Providers.Simkl.ClientID == "" || cfg.Providers.Simkl.ClientSecret == "" {
			return fmt.Errorf("simkl is enabled but client_id or client_secret is missing")
		}
	}
	if cfg.Providers.TMDB.Enabled && cfg.Providers.TMDB.APIKey == "" {
		return fmt.Errorf("tmdb is enabled but api_key is missing")
	}
	if cfg.Providers.TVDB.Enabled && cfg.Providers.TVDB.APIKey == "" {
		return fmt.Errorf("tvdb is enabled but api_key is missing")
	}
	if cfg.Providers.MAL.Enabled && cfg.Providers.MAL.ClientID == "" {
		return fmt.Errorf("mal is enabled but client_id is missing")
	}

	if !cfg.Scraper.ManualLogin {
		if cfg.Amazon.Email == "" || cfg.Amazon.Password == "" {
			return fmt.Errorf("automated login requires amazon email and password; set scraper.manual_login to sign in yourself")
		}
	}
	return nil
}

// EnabledServices returns the priority order filtered to enabled providers.
func (cfg *Config) EnabledServices() []provider.ServiceType {
	enabled := map[provider.ServiceType]bool{
		provider.ServiceSimkl: cfg.Providers.Simkl.Enabled,
		provider.ServiceTMDB:  cfg.Providers.TMDB.Enabled,
		provider.ServiceTVDB:  cfg.Providers.TVDB.Enabled,
		provider.ServiceMAL:   cfg.Providers.MAL.Enabled,
	}

	out := make([]provider.ServiceType, 0, len(cfg.Priority))
	for _, name := range cfg.Priority {
		svc, ok := provider.ParseService(name)
		if !ok {
			continue
		}
		if enabled[svc] {
			out = append(out, svc)
		}
	}
	return out
}

// RateLimitFor returns the configured budget for a service.
func (cfg *Config) RateLimitFor(svc provider.ServiceType) provider.RateLimit {
	switch svc {
	case provider.ServiceSimkl:
		return cfg.RateLimit.Simkl
	case provider.ServiceTMDB:
		return cfg.RateLimit.TMDB
	case provider.ServiceTVDB:
		return cfg.RateLimit.TVDB
	case provider.ServiceMAL:
		return cfg.RateLimit.MAL
	}
	return provider.RateLimit{}
}

// Save writes the configuration to disk
func (cfg *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
