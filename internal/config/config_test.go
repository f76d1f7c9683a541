package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultMonthlyGoal, cfg.MonthlyGoal)
	assert.Equal(t, DefaultRefresh, cfg.Sources.Appointments.Refresh)
	assert.Equal(t, 20*time.Second, cfg.Sources.Accounts.StaleDuration())
	assert.Equal(t, DefaultSlotMinutes, cfg.Calendar.SlotMinutes)
	assert.NoError(t, cfg.Validate())
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, cfg.Listen)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadPartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
listen: ":9090"
monthly_goal: 20000
sources:
  appointments:
    url: https://example.com/citas.csv
    refresh: "*/5 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 20000.0, cfg.MonthlyGoal)
	assert.Equal(t, "https://example.com/citas.csv", cfg.Sources.Appointments.URL)
	assert.Equal(t, "*/5 * * * *", cfg.Sources.Appointments.Refresh)
	assert.Equal(t, DefaultRefresh, cfg.Sources.Accounts.Refresh)
	assert.Equal(t, DefaultStale, cfg.Sources.Appointments.Stale)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad cron", yaml: "sources:\n  accounts:\n    refresh: \"every now and then\"\n"},
		{name: "bad stale", yaml: "sources:\n  appointments:\n    stale: \"soon\"\n"},
		{name: "bad timeout", yaml: "fetch:\n  timeout: \"fast\"\n"},
		{name: "bad timezone", yaml: "timezone: \"Mars/Olympus\"\n"},
		{name: "bad snapshot cron", yaml: "snapshot:\n  refresh: \"@sometimes\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvAppointmentsURL, "https://example.com/a.csv")
	t.Setenv(EnvAccountsURL, "https://example.com/b.csv")
	t.Setenv(EnvListen, ":7000")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvMonthlyGoal, "12000.5")

	cfg := DefaultConfig()
	ApplyEnv(cfg)

	assert.Equal(t, "https://example.com/a.csv", cfg.Sources.Appointments.URL)
	assert.Equal(t, "https://example.com/b.csv", cfg.Sources.Accounts.URL)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 12000.5, cfg.MonthlyGoal)
}

func TestApplyEnvIgnoresBadGoal(t *testing.T) {
	t.Setenv(EnvMonthlyGoal, "mucho")

	cfg := DefaultConfig()
	ApplyEnv(cfg)
	assert.Equal(t, DefaultMonthlyGoal, cfg.MonthlyGoal)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Sources.Accounts.URL = "https://example.com/cuentas.csv"
	cfg.Calendar.SlotMinutes = 45

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cuentas.csv", loaded.Sources.Accounts.URL)
	assert.Equal(t, 45, loaded.Calendar.SlotMinutes)
}

func TestSaveRejectsEmpty(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, Duration("2s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
}
