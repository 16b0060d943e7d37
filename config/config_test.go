package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
api:
  base_host: http://mirror.internal:8080
scheduler:
  location: "13"
  tolerance_percent: 10
mirror:
  idle_ttl_minutes: 60
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://mirror.internal:8080", cfg.API.BaseHost)
	assert.Equal(t, "13", cfg.Scheduler.Location)
	assert.Equal(t, 10, cfg.Scheduler.TolerancePercent)
	assert.Equal(t, 60, cfg.Mirror.IdleTTLMinutes)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 3, cfg.API.Retries)
	assert.Equal(t, 10, cfg.Scheduler.DurationMinutes)
}

func TestLoadJSON(t *testing.T) {
	path := writeTemp(t, "config.json", `{"scheduler":{"location":"NW1"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "NW1", cfg.Scheduler.Location)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.carbonintensity.org.uk", cfg.API.BaseHost)
	assert.Equal(t, "0", cfg.Scheduler.Location)
	assert.Equal(t, 5, cfg.Scheduler.TolerancePercent)
	assert.Equal(t, ":8080", cfg.Mirror.Listen)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeTemp(t, "config.toml", `location = "0"`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
api:
  base_host: http://from-file
`)
	t.Setenv("LS_API__BASE_HOST", "http://from-env")
	t.Setenv("LS_SCHEDULER__LOCATION", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env", cfg.API.BaseHost)
	assert.Equal(t, "7", cfg.Scheduler.Location)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []string{
		"scheduler:\n  tolerance_percent: 101\n",
		"scheduler:\n  offset_minutes: 30\n",
		"scheduler:\n  duration_minutes: -5\n",
		"scheduler:\n  location: \"18\"\n",
		"logging:\n  level: shouty\n",
		"metrics:\n  influx_enabled: true\n",
	}
	for _, content := range cases {
		path := writeTemp(t, "config.yaml", content)
		_, err := Load(path)
		assert.Error(t, err, "config %q should fail validation", content)
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
