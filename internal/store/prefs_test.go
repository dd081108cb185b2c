package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/extbox/internal/store"
	"github.com/loykin/extbox/internal/store/memory"
)

func openPrefs(t *testing.T) (*store.Prefs, *memory.DB) {
	t.Helper()
	m := memory.New()
	p, err := store.OpenPrefs(context.Background(), m, nil)
	require.NoError(t, err)
	return p, m
}

func TestPrefsDefaultsAndParsing(t *testing.T) {
	p, _ := openPrefs(t)
	assert.Equal(t, 15, p.GetInt("bat_low_thresh", 15))
	assert.True(t, p.GetBool("bat_low_alert", true))
	assert.Equal(t, "x", p.GetString("dash_card_order", "x"))

	p.SetString("bat_low_thresh", "not-a-number")
	assert.Equal(t, 15, p.GetInt("bat_low_thresh", 15))
	p.SetString("bat_low_thresh", "20.0")
	assert.Equal(t, 20, p.GetInt("bat_low_thresh", 15))
	p.SetString("bat_low_alert", "maybe")
	assert.True(t, p.GetBool("bat_low_alert", true))
	p.SetLong("scr_on_acc", 1<<40)
	assert.Equal(t, int64(1<<40), p.GetLong("scr_on_acc", 0))
}

func TestPrefsWriteThrough(t *testing.T) {
	p, m := openPrefs(t)
	ctx := context.Background()
	p.SetBool("m_battery_enabled", false)
	v, ok, err := m.Get(ctx, "m_battery_enabled")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "false", v)

	// a second Prefs over the same backend sees the value
	p2, err := store.OpenPrefs(ctx, m, nil)
	require.NoError(t, err)
	assert.False(t, p2.ModuleEnabled("battery", true))

	p.Remove("m_battery_enabled")
	assert.True(t, p.ModuleEnabled("battery", true))
}

func TestPrefsImportAndResetDaily(t *testing.T) {
	p, _ := openPrefs(t)
	err := p.ImportJSON([]byte(`{"ulk_today": 42, "stp_today": 9000, "bat_low_alert": false, "dash_card_order": "cpu_ram,battery", "ratio": 0.5}`))
	require.NoError(t, err)
	assert.Equal(t, 42, p.GetInt("ulk_today", 0))
	assert.False(t, p.GetBool("bat_low_alert", true))
	assert.Equal(t, "cpu_ram,battery", p.GetString("dash_card_order", ""))
	assert.InDelta(t, 0.5, p.GetFloat("ratio", 0), 1e-9)

	require.Error(t, p.ImportJSON([]byte(`{"bad": [1,2]}`)))
	require.Error(t, p.ImportJSON([]byte(`not json`)))

	p.SetInt("ulk_yesterday", 30)
	p.ResetDaily()
	assert.Equal(t, 0, p.GetInt("ulk_today", -1))
	assert.Equal(t, int64(0), p.GetLong("stp_today", -1))
	assert.Equal(t, 30, p.GetInt("ulk_yesterday", 0))
}

func TestPrefsSeedDefaults(t *testing.T) {
	p, _ := openPrefs(t)
	p.SetInt("bat_low_thresh", 25)
	n := p.SeedDefaults(map[string]string{"bat_low_thresh": "15", "bat_temp_thresh": "42"})
	assert.Equal(t, 1, n)
	assert.Equal(t, 25, p.GetInt("bat_low_thresh", 0))
	assert.Equal(t, 42, p.GetInt("bat_temp_thresh", 0))

	require.NoError(t, p.ClearAll(context.Background()))
	assert.Empty(t, p.All())
}

// gatedStore parks the first backend write of value "0" until released.
type gatedStore struct {
	store.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Set(ctx context.Context, key, value string) error {
	if value == "0" {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.Store.Set(ctx, key, value)
}

func TestConcurrentWritesKeepCacheAndBackendInStep(t *testing.T) {
	m := memory.New()
	g := &gatedStore{Store: m, entered: make(chan struct{}), release: make(chan struct{})}
	p, err := store.OpenPrefs(context.Background(), g, nil)
	require.NoError(t, err)

	first := make(chan struct{})
	go func() {
		defer close(first)
		p.SetString("ulk_today", "0") // rollover zeroing
	}()
	<-g.entered
	second := make(chan struct{})
	go func() {
		defer close(second)
		p.SetInt("ulk_today", 1) // unlock arriving mid-write
	}()
	// Let the second writer run as far as it can while the first is parked.
	select {
	case <-second:
	case <-time.After(50 * time.Millisecond):
	}
	close(g.release)
	<-first
	<-second

	stored, ok, err := m.Get(context.Background(), "ulk_today")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", stored, "later write wins in the backend")
	assert.Equal(t, p.GetString("ulk_today", ""), stored, "cache and backend agree")

	require.NoError(t, p.Reload(context.Background()))
	assert.Equal(t, stored, p.GetString("ulk_today", ""))
}
