package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strconv"
	"sync"
	"time"
)

// Prefs is the typed preference view every module reads through.
//
// Reads are served from a write-through cache loaded at open, so the
// scheduler can consult thresholds and flags on every sweep without a
// backend round trip. Read or write failures never reach the caller:
// reads resolve to the supplied default and write errors are logged.
type Prefs struct {
	s       Store
	log     *slog.Logger
	timeout time.Duration

	// wmu orders writers so the cache and the backend see the same
	// sequence. Readers only take mu.
	wmu   sync.Mutex
	mu    sync.RWMutex
	cache map[string]string
}

// OpenPrefs ensures the backend schema and loads every stored pair.
func OpenPrefs(ctx context.Context, s Store, log *slog.Logger) (*Prefs, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("prefs schema: %w", err)
	}
	p := &Prefs{s: s, log: log.With("component", "prefs"), timeout: 3 * time.Second}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload replaces the cache with the backend contents.
func (p *Prefs) Reload(ctx context.Context) error {
	all, err := p.s.List(ctx)
	if err != nil {
		return fmt.Errorf("prefs load: %w", err)
	}
	p.wmu.Lock()
	p.mu.Lock()
	p.cache = all
	p.mu.Unlock()
	p.wmu.Unlock()
	return nil
}

func (p *Prefs) Store() Store { return p.s }

func (p *Prefs) raw(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.cache[key]
	return v, ok
}

func (p *Prefs) Has(key string) bool {
	_, ok := p.raw(key)
	return ok
}

func (p *Prefs) GetString(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *Prefs) GetBool(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.log.Debug("bad bool pref", "key", key, "value", v)
		return def
	}
	return b
}

func (p *Prefs) GetInt(key string, def int) int {
	return int(p.GetLong(key, int64(def)))
}

func (p *Prefs) GetLong(key string, def int64) int64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// values imported as floats, e.g. "15.0"
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			p.log.Debug("bad int pref", "key", key, "value", v)
			return def
		}
		return int64(f)
	}
	return n
}

func (p *Prefs) GetFloat(key string, def float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.log.Debug("bad float pref", "key", key, "value", v)
		return def
	}
	return f
}

func (p *Prefs) SetString(key, value string) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.mu.Lock()
	if p.cache == nil {
		p.cache = map[string]string{}
	}
	p.cache[key] = value
	p.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.s.Set(ctx, key, value); err != nil {
		p.log.Warn("pref write failed", "key", key, "error", err)
	}
}

func (p *Prefs) SetBool(key string, v bool)  { p.SetString(key, strconv.FormatBool(v)) }
func (p *Prefs) SetInt(key string, v int)    { p.SetString(key, strconv.Itoa(v)) }
func (p *Prefs) SetLong(key string, v int64) { p.SetString(key, strconv.FormatInt(v, 10)) }
func (p *Prefs) SetFloat(key string, v float64) {
	p.SetString(key, strconv.FormatFloat(v, 'f', -1, 64))
}

// SetMany writes all pairs in one backend call.
func (p *Prefs) SetMany(kv map[string]string) {
	if len(kv) == 0 {
		return
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.mu.Lock()
	if p.cache == nil {
		p.cache = map[string]string{}
	}
	maps.Copy(p.cache, kv)
	p.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.s.SetMany(ctx, kv); err != nil {
		p.log.Warn("pref batch write failed", "keys", len(kv), "error", err)
	}
}

func (p *Prefs) Remove(key string) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.mu.Lock()
	delete(p.cache, key)
	p.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.s.Delete(ctx, key); err != nil {
		p.log.Warn("pref delete failed", "key", key, "error", err)
	}
}

// All returns a copy of every preference.
func (p *Prefs) All() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.cache)
}

// ClearAll removes every preference.
func (p *Prefs) ClearAll(ctx context.Context) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if err := p.s.Clear(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.cache = map[string]string{}
	p.mu.Unlock()
	return nil
}

// SeedDefaults writes the pairs whose keys are not yet present.
func (p *Prefs) SeedDefaults(defaults map[string]string) int {
	missing := map[string]string{}
	for k, v := range defaults {
		if !p.Has(k) {
			missing[k] = v
		}
	}
	p.SetMany(missing)
	return len(missing)
}

// Import stores JSON-decoded values. Booleans, numbers and strings are
// accepted; other types are rejected without writing anything.
func (p *Prefs) Import(values map[string]any) error {
	out := make(map[string]string, len(values))
	for k, v := range values {
		switch t := v.(type) {
		case bool:
			out[k] = strconv.FormatBool(t)
		case string:
			out[k] = t
		case float64:
			if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
				out[k] = strconv.FormatInt(int64(t), 10)
			} else {
				out[k] = strconv.FormatFloat(t, 'f', -1, 64)
			}
		case json.Number:
			out[k] = t.String()
		case int:
			out[k] = strconv.Itoa(t)
		case int64:
			out[k] = strconv.FormatInt(t, 10)
		default:
			return fmt.Errorf("pref %q: unsupported type %T", k, v)
		}
	}
	p.SetMany(out)
	return nil
}

// ImportJSON decodes a flat JSON object and imports it.
func (p *Prefs) ImportJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode prefs: %w", err)
	}
	return p.Import(m)
}

// DailyKeys are the counters zeroed by ResetDaily.
var DailyKeys = []string{
	"ulk_today", "stp_today", "dat_daily_total", "dat_daily_wifi",
	"dat_daily_mobile", "scr_on_acc", "fap_today",
}

// ResetDaily zeroes today's counters without touching the yesterday slots.
func (p *Prefs) ResetDaily() {
	kv := make(map[string]string, len(DailyKeys))
	for _, k := range DailyKeys {
		kv[k] = "0"
	}
	p.SetMany(kv)
}

// EnabledKey is the preference holding a module's enable flag.
func EnabledKey(module string) string { return "m_" + module + "_enabled" }

func (p *Prefs) ModuleEnabled(module string, def bool) bool {
	return p.GetBool(EnabledKey(module), def)
}

func (p *Prefs) SetModuleEnabled(module string, v bool) { p.SetBool(EnabledKey(module), v) }
