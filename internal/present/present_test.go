package present

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/store"
	"github.com/loykin/extbox/internal/store/memory"
)

type stub struct {
	key, name, compact, detail string
	prio                       int
	alive                      bool
}

func (s *stub) Key() string                   { return s.key }
func (s *stub) Name() string                  { return s.name }
func (s *stub) Emoji() string                 { return "" }
func (s *stub) Priority() int                 { return s.prio }
func (s *stub) DefaultEnabled() bool          { return true }
func (s *stub) Start(module.Env)              {}
func (s *stub) Stop()                         {}
func (s *stub) Alive() bool                   { return s.alive }
func (s *stub) TickInterval() time.Duration   { return time.Second }
func (s *stub) Tick(context.Context)          {}
func (s *stub) Compact() string               { return s.compact }
func (s *stub) Detail() string                { return s.detail }
func (s *stub) DataPoints() module.DataPoints { return nil }
func (s *stub) CheckAlerts(context.Context)   {}

type bat struct {
	stub
	level int
}

func (b *bat) BatteryLevel() (int, bool) { return b.level, true }

func prefs(t *testing.T) *store.Prefs {
	t.Helper()
	p, err := store.OpenPrefs(context.Background(), memory.New(), nil)
	require.NoError(t, err)
	return p
}

func mod(key string, prio int, compact string) *stub {
	return &stub{key: key, name: strings.ToUpper(key), compact: compact, detail: key + " detail", prio: prio, alive: true}
}

func TestCompactPriorityOrderAndLimit(t *testing.T) {
	p := prefs(t)
	mods := []module.Module{mod("b", 20, "B"), mod("a", 10, "A"), mod("c", 30, ""), mod("d", 40, "D"), mod("e", 50, "E"), mod("f", 60, "F")}
	got := Build(p, mods)
	assert.Equal(t, "A • B • D • E", got.Compact, "empty fragments skipped, four items max")
	assert.Equal(t, "a detail\nb detail\nc detail\nd detail\ne detail\nf detail", got.Expanded)
	assert.Equal(t, AppTitle, got.Title)

	p.SetInt("notif_compact_items", 2)
	assert.Equal(t, "A • B", Build(p, mods).Compact)
}

func TestCompactOverBudgetDropsLast(t *testing.T) {
	p := prefs(t)
	long := strings.Repeat("x", 30)
	mods := []module.Module{mod("a", 1, long), mod("b", 2, long), mod("c", 3, "c")}
	assert.Equal(t, long+Separator+long+ellipsis, Build(p, mods).Compact)

	// a single oversize fragment is kept whole
	one := []module.Module{mod("a", 1, strings.Repeat("y", 80))}
	assert.Equal(t, strings.Repeat("y", 80), Build(p, one).Compact)
}

func TestBatteryTitleAndChargeHint(t *testing.T) {
	p := prefs(t)
	b := &bat{stub: *mod("battery", 10, "9%"), level: 9}
	mods := []module.Module{b, mod("cpu_ram", 15, "CPU 3%")}

	got := Build(p, mods)
	assert.Equal(t, "⚠ Extension Box • 9% Low!", got.Title)
	assert.Equal(t, "9% • CPU 3%"+chargeHint, got.Compact)

	b.level = 50
	got = Build(p, mods)
	assert.Equal(t, "Extension Box • 50%", got.Title)
	assert.Equal(t, "9% • CPU 3%", got.Compact)

	p.SetBool("notif_context_aware", false)
	b.level = 5
	got = Build(p, mods)
	assert.Equal(t, "Extension Box • 5%", got.Title)
	assert.NotContains(t, got.Compact, "Charge")

	b.alive = false
	assert.Equal(t, AppTitle, Build(p, mods).Title)
}

func TestPlaceholdersWhenNothingAlive(t *testing.T) {
	p := prefs(t)
	dead := mod("a", 1, "A")
	dead.alive = false
	got := Build(p, []module.Module{dead})
	assert.Equal(t, Presentation{Title: AppTitle, Compact: AllDisabled, Expanded: EnableHint}, got)
	assert.Equal(t, Starting, NewLatest().Get().Compact)
}

func TestSavedOrderAndCompactList(t *testing.T) {
	p := prefs(t)
	p.SetString(OrderKey, "c, a,,zzz")
	mods := []module.Module{mod("a", 1, "A"), mod("b", 2, "B"), mod("c", 3, "C"), mod("d", 0, "D")}
	keys := func(ms []module.Module) string {
		var s []string
		for _, m := range ms {
			s = append(s, m.Key())
		}
		return strings.Join(s, ",")
	}
	assert.Equal(t, "c,a,d,b", keys(Sort(p, mods)))

	p.SetBool("notif_show_all", false)
	assert.Equal(t, "• C: C\n• A: A\n• D: D\n• B: B", Build(p, mods).Expanded)
}

func TestLatestAndMulti(t *testing.T) {
	l := NewLatest()
	ld := &LogDisplay{}
	Multi{l, ld}.Render(context.Background(), Presentation{Title: "t", Compact: "c", Expanded: "e"})
	assert.Equal(t, "c", l.Get().Compact)
}
