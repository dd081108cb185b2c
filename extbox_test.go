package extbox

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/config"
	"github.com/loykin/extbox/pkg/client"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.DSN = "memory://"
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Metrics.Enabled = false
	cfg.Log.Format = "text"
	cfg.Defaults = map[string]any{"m_fap_enabled": true, "ulk_limit": 50}
	return cfg
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	assert.Error(t, err)
}

func TestNewRejectsBadHistoryDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = true
	cfg.History.DSN = "kafka://nowhere"
	_, err := New(context.Background(), cfg, Options{Access: access.NewFake()})
	assert.Error(t, err)
}

func TestSeedsDefaultsAndApply(t *testing.T) {
	cfg := testConfig(t)
	lv := new(slog.LevelVar)
	b, err := New(context.Background(), cfg, Options{Access: access.NewFake(), LevelVar: lv})
	require.NoError(t, err)
	defer func() { _ = b.Close(context.Background()) }()

	assert.True(t, b.Prefs().GetBool("m_fap_enabled", false))
	assert.Equal(t, 50, b.Prefs().GetInt("ulk_limit", 0))

	b.Prefs().SetInt("ulk_limit", 70)
	next := testConfig(t)
	next.Log.Level = "debug"
	next.Defaults = map[string]any{"ulk_limit": 10, "stp_goal": 6000}
	b.Apply(next)
	assert.Equal(t, slog.LevelDebug, lv.Level())
	assert.Equal(t, 70, b.Prefs().GetInt("ulk_limit", 0), "stored values win over defaults")
	assert.EqualValues(t, 6000, b.Prefs().GetLong("stp_goal", 0))
}

func TestRunServesAPIAndRecordsHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = true
	cfg.History.DSN = "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	cfg.Scheduler.MinDelay = 10 * time.Millisecond
	alerts := alert.NewCollector(0)

	b, err := New(context.Background(), cfg, Options{Access: access.NewFake(), Notifier: alerts})
	require.NoError(t, err)
	require.NotNil(t, b.History())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return b.APIAddr() != "" }, 2*time.Second, 10*time.Millisecond)
	c := client.New(client.Config{BaseURL: "http://" + b.APIAddr() + cfg.Server.BasePath, Timeout: time.Second})
	require.Eventually(t, func() bool {
		st, err := c.Status(context.Background())
		return err == nil && st.Swept
	}, 3*time.Second, 20*time.Millisecond)

	today, err := c.Fap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, today)
	assert.NotEqual(t, "Starting...", b.Presentation().Compact)

	require.Eventually(t, func() bool {
		evs, err := b.History().Query(context.Background(), "fap", time.Time{}, 10)
		return err == nil && len(evs) > 0
	}, 3*time.Second, 20*time.Millisecond)

	evs, err := c.History(context.Background(), "", "1h", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, evs)

	assert.True(t, b.Cron().RunNow(PurgeJobName))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, b.Status().Running)
	assert.NoError(t, b.Close(context.Background()), "second Close is a no-op")
}

func TestHandlerWithoutListener(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Enabled = false
	b, err := New(context.Background(), cfg, Options{Access: access.NewFake()})
	require.NoError(t, err)
	defer func() { _ = b.Close(context.Background()) }()
	assert.NotNil(t, b.Handler("/api"))
	assert.Empty(t, b.APIAddr())
}
