package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "extbox.toml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite://extbox.db", c.Store.DSN)
	assert.Equal(t, time.Second, c.Scheduler.MinDelay)
	assert.Equal(t, time.Minute, c.Scheduler.MaxDelay)
	assert.Equal(t, 5*time.Second, c.Scheduler.IdleDelay)
	assert.True(t, c.Server.Enabled)
	assert.Equal(t, "/api", c.Server.BasePath)
	assert.False(t, c.History.Enabled)
	assert.Equal(t, 30*24*time.Hour, c.History.Retention)
	assert.Equal(t, "0 23 * * *", c.Summary.Schedule)
	assert.Equal(t, 4, c.Workers.Size)
	assert.NotEmpty(t, c.Access.SpeedTest.DownloadURLs)
	assert.Equal(t, "color", c.Log.Format)
}

func TestLoadFromTOML(t *testing.T) {
	p := writeConfig(t, `
[store]
dsn = "memory://"

[history]
enabled = true
dsn = "sqlite://:memory:"
extra_dsns = ["opensearch://localhost:9200/extbox"]
retention = "48h"

[scheduler]
min_delay = "500ms"
max_delay = "30s"

[server]
listen = "0.0.0.0:9000"
base_path = "/ext"

[server.tls]
enabled = true
dir = "/tmp/extbox-tls"
auto_generate = true

[log]
level = "debug"
format = "json"
file = "/var/log/extbox.log"

[access]
storage_path = "/data"
step_sensor = true

[access.speedtest]
ping_addr = "10.0.0.1:443"

[defaults]
bat_low_thresh = 20
m_steps_enabled = true
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "memory://", c.Store.DSN)
	assert.Equal(t, []string{"sqlite://:memory:", "opensearch://localhost:9200/extbox"}, c.History.DSNs())
	assert.Equal(t, 48*time.Hour, c.History.Retention)
	assert.Equal(t, 500*time.Millisecond, c.Scheduler.MinDelay)
	assert.Equal(t, 5*time.Second, c.Scheduler.IdleDelay, "unset keys keep defaults")
	assert.Equal(t, "0.0.0.0:9000", c.Server.Listen)
	require.NotNil(t, c.Server.TLS)
	assert.True(t, c.Server.TLS.AutoGenerate)
	assert.Equal(t, "/data", c.Access.StoragePath)
	assert.True(t, c.Access.StepSensor)
	assert.Equal(t, "10.0.0.1:443", c.Access.SpeedTest.PingAddr)

	lc := c.Log.Logger()
	assert.Equal(t, "/var/log/extbox.log", lc.File.Path)
	assert.Equal(t, "json", lc.Format)

	assert.Equal(t, map[string]string{"bat_low_thresh": "20", "m_steps_enabled": "true"}, c.DefaultPrefs())
	assert.Equal(t, []string{"bat_low_thresh", "m_steps_enabled"}, c.DefaultKeys())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("EXTBOX_STORE_DSN", "redis://localhost:6379/0")
	t.Setenv("EXTBOX_SCHEDULER_MAX_DELAY", "2m")
	t.Setenv("EXTBOX_SERVER_ENABLED", "false")
	c, err := Load(writeConfig(t, "[store]\ndsn = \"memory://\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", c.Store.DSN)
	assert.Equal(t, 2*time.Minute, c.Scheduler.MaxDelay)
	assert.False(t, c.Server.Enabled)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"delay order":       "[scheduler]\nmin_delay = \"2m\"\nmax_delay = \"1m\"\n",
		"history no dsn":    "[history]\nenabled = true\n",
		"tls half pair":     "[server.tls]\nenabled = true\ncert_file = \"a.crt\"\n",
		"tls nothing":       "[server.tls]\nenabled = true\n",
		"bad level":         "[log]\nlevel = \"chatty\"\n",
		"bad timezone":      "[summary]\ntimezone = \"Mars/Olympus\"\n",
		"malformed toml":    "[store\n",
		"negative interval": "[scheduler]\nidle_delay = \"-1s\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestSummaryLocation(t *testing.T) {
	assert.Equal(t, time.Local, SummaryConfig{}.Location())
	assert.Equal(t, "UTC", SummaryConfig{TimeZone: "UTC"}.Location().String())
}

func TestWatchReappliesChanges(t *testing.T) {
	p := writeConfig(t, "[log]\nlevel = \"info\"\n")
	var level atomic.Value
	require.NoError(t, Watch(p, nil, func(c *Config) { level.Store(c.Log.Level) }))

	require.NoError(t, os.WriteFile(p, []byte("[log]\nlevel = \"debug\"\n"), 0o644))
	require.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "debug"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Error(t, Watch("", nil, func(*Config) {}))
}
