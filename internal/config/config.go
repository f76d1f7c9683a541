package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults mirror the original dashboard polling: refetch every 30s, treat
// data younger than 20s as fresh.
const (
	DefaultListen      = "127.0.0.1:8080"
	DefaultRefresh     = "@every 30s"
	DefaultStale       = "20s"
	DefaultMonthlyGoal = 15000.0
	DefaultCacheDir    = "./var/csv-cache"
	DefaultSlotMinutes = 30
)

// SourceConfig describes a single CSV export endpoint.
type SourceConfig struct {
	// URL is the spreadsheet CSV export endpoint.
	URL string `yaml:"url" json:"url"`
	// Refresh is a cron spec (e.g. "@every 30s" or "*/1 * * * *").
	Refresh string `yaml:"refresh" json:"refresh"`
	// Stale is the window during which a fetched batch is reused without
	// refetching, as a Go duration string.
	Stale string `yaml:"stale" json:"stale"`
}

// StaleDuration parses Stale; Normalize and Validate guarantee it parses.
func (s SourceConfig) StaleDuration() time.Duration {
	d, _ := time.ParseDuration(s.Stale)
	return d
}

// SourcesConfig groups the two datasets.
type SourcesConfig struct {
	Appointments SourceConfig `yaml:"appointments" json:"appointments"`
	Accounts     SourceConfig `yaml:"accounts" json:"accounts"`
}

// FetchConfig tunes the HTTP transport.
type FetchConfig struct {
	Timeout    string `yaml:"timeout" json:"timeout"`
	Retries    int    `yaml:"retries" json:"retries"`
	RetryDelay string `yaml:"retry_delay" json:"retry_delay"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// CalendarConfig controls the iCalendar export.
type CalendarConfig struct {
	// SlotMinutes is the assumed duration of every appointment.
	SlotMinutes int `yaml:"slot_minutes" json:"slot_minutes"`
}

// SnapshotConfig controls kiosk screenshots of the presentation page.
// Capturing is disabled when URL is empty.
type SnapshotConfig struct {
	URL      string `yaml:"url" json:"url"`
	Output   string `yaml:"output" json:"output"`
	Width    int    `yaml:"width" json:"width"`
	Height   int    `yaml:"height" json:"height"`
	Selector string `yaml:"selector" json:"selector"`
	// Refresh is an optional cron spec for periodic capture while serving.
	Refresh string `yaml:"refresh" json:"refresh"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the JSON API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is an optional IANA zone for "today" / "this month". Empty
	// means the process local time.
	Timezone string `yaml:"timezone" json:"timezone"`

	// MonthlyGoal is the monthly revenue target in EUR.
	MonthlyGoal float64 `yaml:"monthly_goal" json:"monthly_goal"`

	// CacheDir holds the HTTP conditional-request cache. Empty disables it.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Sources  SourcesConfig  `yaml:"sources" json:"sources"`
	Fetch    FetchConfig    `yaml:"fetch" json:"fetch"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Listen:      DefaultListen,
		MonthlyGoal: DefaultMonthlyGoal,
		CacheDir:    DefaultCacheDir,
		Fetch: FetchConfig{
			Timeout:    "15s",
			Retries:    2,
			RetryDelay: "500ms",
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.MonthlyGoal == 0 {
		c.MonthlyGoal = DefaultMonthlyGoal
	}
	normalizeSource(&c.Sources.Appointments)
	normalizeSource(&c.Sources.Accounts)

	if c.Fetch.Timeout == "" {
		c.Fetch.Timeout = "15s"
	}
	if c.Fetch.RetryDelay == "" {
		c.Fetch.RetryDelay = "500ms"
	}
	if c.Fetch.Retries < 0 {
		c.Fetch.Retries = 0
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		c.Log.Format = "console"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Calendar.SlotMinutes <= 0 {
		c.Calendar.SlotMinutes = DefaultSlotMinutes
	}

	if c.Snapshot.Output == "" {
		c.Snapshot.Output = "./var/preview.png"
	}
	if c.Snapshot.Selector == "" {
		c.Snapshot.Selector = `[data-ready="true"]`
	}
}

func normalizeSource(s *SourceConfig) {
	if s.Refresh == "" {
		s.Refresh = DefaultRefresh
	}
	if s.Stale == "" {
		s.Stale = DefaultStale
	}
}

// Validate checks values Normalize cannot repair.
func (c *Config) Validate() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	sources := map[string]SourceConfig{
		"appointments": c.Sources.Appointments,
		"accounts":     c.Sources.Accounts,
	}
	for _, name := range []string{"appointments", "accounts"} {
		s := sources[name]
		if _, err := parser.Parse(s.Refresh); err != nil {
			return fmt.Errorf("%w: sources.%s.refresh %q: %v", ErrInvalidConfig, name, s.Refresh, err)
		}
		if d, err := time.ParseDuration(s.Stale); err != nil || d < 0 {
			return fmt.Errorf("%w: sources.%s.stale %q", ErrInvalidConfig, name, s.Stale)
		}
	}

	for key, v := range map[string]string{"fetch.timeout": c.Fetch.Timeout, "fetch.retry_delay": c.Fetch.RetryDelay} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%w: %s %q", ErrInvalidConfig, key, v)
		}
	}

	if c.Snapshot.Refresh != "" {
		if _, err := parser.Parse(c.Snapshot.Refresh); err != nil {
			return fmt.Errorf("%w: snapshot.refresh %q: %v", ErrInvalidConfig, c.Snapshot.Refresh, err)
		}
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
		}
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Duration parses a duration field, returning def when it is unparseable.
func Duration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// In both cases environment overrides (see ApplyEnv) are applied last and
// the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := load(path)
	if err != nil {
		return cfg, err
	}

	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Environment variables recognized by ApplyEnv.
const (
	EnvAppointmentsURL = "CITADASH_APPOINTMENTS_URL"
	EnvAccountsURL     = "CITADASH_ACCOUNTS_URL"
	EnvListen          = "CITADASH_LISTEN"
	EnvLogLevel        = "CITADASH_LOG_LEVEL"
	EnvMonthlyGoal     = "CITADASH_MONTHLY_GOAL"
	EnvTimezone        = "CITADASH_TIMEZONE"
)

// ApplyEnv loads a .env file from the working directory if present and lets
// CITADASH_* variables override file values. Source URLs are usually kept
// out of the config file this way.
func ApplyEnv(cfg *Config) {
	// Missing .env is the common case.
	_ = godotenv.Load()

	if v := os.Getenv(EnvAppointmentsURL); v != "" {
		cfg.Sources.Appointments.URL = v
	}
	if v := os.Getenv(EnvAccountsURL); v != "" {
		cfg.Sources.Accounts.URL = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv(EnvMonthlyGoal); v != "" {
		if goal, err := strconv.ParseFloat(v, 64); err == nil && goal > 0 {
			cfg.MonthlyGoal = goal
		}
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".citadash-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
