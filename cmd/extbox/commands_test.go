package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/modules"
	"github.com/loykin/extbox/internal/present"
	"github.com/loykin/extbox/internal/scheduler"
	"github.com/loykin/extbox/internal/server"
	"github.com/loykin/extbox/internal/store"
	"github.com/loykin/extbox/internal/store/memory"
)

type testDaemon struct {
	url   string
	sched *scheduler.Scheduler
	prefs *store.Prefs
}

func startTestDaemon(t *testing.T) testDaemon {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p, err := store.OpenPrefs(context.Background(), memory.New(), nil)
	require.NoError(t, err)
	disp := present.NewLatest()
	sched, err := scheduler.New(scheduler.Options{
		Registry: modules.Catalog(nil),
		Env:      module.Env{Prefs: p, Access: access.NewFake()},
		Display:  disp,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Shutdown(context.Background()) })

	r := server.NewRouter(server.Options{Scheduler: sched, Prefs: p, Display: disp}, "/api")
	ts := httptest.NewServer(r.Handler())
	t.Cleanup(ts.Close)
	return testDaemon{url: ts.URL + "/api", sched: sched, prefs: p}
}

// run executes the CLI in-process and returns its standard output.
func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := buildRoot(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--api-url", url, "--api-timeout", "2s"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestEnableDisable(t *testing.T) {
	d := startTestDaemon(t)

	out, err := run(t, d.url, "enable", "steps")
	require.NoError(t, err)
	assert.Equal(t, "steps enabled\n", out)
	assert.True(t, d.prefs.ModuleEnabled("steps", false))

	out, err = run(t, d.url, "disable", "steps")
	require.NoError(t, err)
	assert.Equal(t, "steps disabled\n", out)
	assert.False(t, d.prefs.ModuleEnabled("steps", true))
}

func TestStatusAndModules(t *testing.T) {
	d := startTestDaemon(t)
	d.sched.Sweep(context.Background())

	out, err := run(t, d.url, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "battery")

	out, err = run(t, d.url, "modules")
	require.NoError(t, err)
	assert.Contains(t, out, "speedtest")

	out, err = run(t, d.url, "snapshot")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	out, err = run(t, d.url, "presentation")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestPrefCommands(t *testing.T) {
	d := startTestDaemon(t)

	_, err := run(t, d.url, "pref", "set", "bat_low_thresh", "25")
	require.NoError(t, err)
	out, err := run(t, d.url, "pref", "get", "bat_low_thresh")
	require.NoError(t, err)
	assert.Equal(t, "25\n", out)

	file := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"cpu_high_thresh":"85"}`), 0o600))
	_, err = run(t, d.url, "prefs", "import", file)
	require.NoError(t, err)
	assert.Equal(t, "85", d.prefs.GetString("cpu_high_thresh", ""))

	out, err = run(t, d.url, "prefs", "export")
	require.NoError(t, err)
	assert.Contains(t, out, `"cpu_high_thresh": "85"`)

	_, err = run(t, d.url, "prefs", "reset-daily")
	require.NoError(t, err)
}

func TestPrefsImportRejectsInvalidJSON(t *testing.T) {
	d := startTestDaemon(t)
	file := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(file, []byte("not json"), 0o600))
	_, err := run(t, d.url, "prefs", "import", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestOrder(t *testing.T) {
	d := startTestDaemon(t)
	out, err := run(t, d.url, "order", "steps, battery,,cpu_ram")
	require.NoError(t, err)
	assert.Equal(t, "steps,battery,cpu_ram\n", out)

	_, err = run(t, d.url, "order", " , ")
	require.Error(t, err)
}

func TestEvents(t *testing.T) {
	d := startTestDaemon(t)
	_, err := run(t, d.url, "enable", "fap")
	require.NoError(t, err)
	d.sched.Sweep(context.Background())

	_, err = run(t, d.url, "event", "screen", "off")
	require.NoError(t, err)

	out, err := run(t, d.url, "event", "unlock")
	require.NoError(t, err)
	assert.Contains(t, out, "counted")

	out, err = run(t, d.url, "fap")
	require.NoError(t, err)
	assert.Contains(t, out, `"today": 1`)

	// steps is disabled by default
	_, err = run(t, d.url, "event", "steps", "100")
	require.Error(t, err)
}

func TestArgumentValidation(t *testing.T) {
	d := startTestDaemon(t)

	_, err := run(t, d.url, "event", "screen", "dim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on or off")

	_, err = run(t, d.url, "event", "steps", "-3")
	require.Error(t, err)

	_, err = run(t, d.url, "enable")
	require.Error(t, err)
}

func TestDaemonUnreachable(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1/api", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}
