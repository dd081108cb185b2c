// Package present turns the running modules into the title, compact line
// and expanded block shown by the display.
package present

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/loykin/extbox/internal/module"
)

const (
	Separator   = " • "
	CompactMax  = 60
	AppTitle    = "Extension Box"
	Starting    = "Starting..."
	AllDisabled = "All extensions disabled"
	EnableHint  = "Enable extensions from the app"
	chargeHint  = " • ⚡Charge!"
	ellipsis    = " ..."

	// OrderKey holds the user's comma separated module order.
	OrderKey = "dash_card_order"
)

// Presentation is what the display renders.
type Presentation struct {
	Title    string `json:"title"`
	Compact  string `json:"compact"`
	Expanded string `json:"expanded"`
}

// Placeholder is shown before the first sweep.
var Placeholder = Presentation{Title: AppTitle, Compact: Starting, Expanded: Starting}

// BatteryReporter is implemented by the module whose level drives the
// title and the charge hint.
type BatteryReporter interface {
	BatteryLevel() (level int, ok bool)
}

// Prefs is the preference subset the aggregator reads.
type Prefs interface {
	GetBool(key string, def bool) bool
	GetInt(key string, def int) int
	GetString(key, def string) string
}

// Build renders alive modules. Modules that are not alive are skipped.
func Build(p Prefs, mods []module.Module) Presentation {
	alive := Sort(p, aliveOnly(mods))
	return Presentation{
		Title:    title(p, alive),
		Compact:  compact(p, alive),
		Expanded: expanded(p, alive),
	}
}

func aliveOnly(mods []module.Module) []module.Module {
	out := make([]module.Module, 0, len(mods))
	for _, m := range mods {
		if m != nil && m.Alive() {
			out = append(out, m)
		}
	}
	return out
}

// ParseOrder splits a saved order, dropping empty items.
func ParseOrder(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Sort orders modules by the saved order; listed keys come first in list
// order, the rest by ascending priority.
func Sort(p Prefs, mods []module.Module) []module.Module {
	order := ParseOrder(p.GetString(OrderKey, ""))
	idx := make(map[string]int, len(order))
	for i, k := range order {
		if _, dup := idx[k]; !dup {
			idx[k] = i
		}
	}
	out := append([]module.Module(nil), mods...)
	sort.SliceStable(out, func(i, j int) bool {
		ii, iok := idx[out[i].Key()]
		ji, jok := idx[out[j].Key()]
		switch {
		case iok && jok:
			return ii < ji
		case iok:
			return true
		case jok:
			return false
		}
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

func battery(mods []module.Module) (int, bool) {
	for _, m := range mods {
		if b, ok := m.(BatteryReporter); ok {
			return b.BatteryLevel()
		}
	}
	return 0, false
}

func title(p Prefs, alive []module.Module) string {
	lvl, ok := battery(alive)
	if !ok {
		return AppTitle
	}
	if p.GetBool("notif_context_aware", true) && lvl <= p.GetInt("bat_low_thresh", 15) {
		return fmt.Sprintf("⚠ %s • %d%% Low!", AppTitle, lvl)
	}
	return fmt.Sprintf("%s • %d%%", AppTitle, lvl)
}

func compact(p Prefs, alive []module.Module) string {
	limit := p.GetInt("notif_compact_items", 4)
	var parts []string
	for _, m := range alive {
		if len(parts) >= limit {
			break
		}
		if c := m.Compact(); c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return AllDisabled
	}
	base := strings.Join(parts, Separator)
	if utf8.RuneCountInString(base) > CompactMax && len(parts) > 1 {
		base = strings.Join(parts[:len(parts)-1], Separator) + ellipsis
	}
	if p.GetBool("notif_context_aware", true) {
		if lvl, ok := battery(alive); ok && lvl <= 10 {
			base += chargeHint
		}
	}
	return base
}

func expanded(p Prefs, alive []module.Module) string {
	showAll := p.GetBool("notif_show_all", true)
	var lines []string
	for _, m := range alive {
		if showAll {
			if d := m.Detail(); d != "" {
				lines = append(lines, d)
			}
			continue
		}
		if c := m.Compact(); c != "" {
			lines = append(lines, "• "+m.Name()+": "+c)
		}
	}
	if len(lines) == 0 {
		return EnableHint
	}
	return strings.Join(lines, "\n")
}

// Display consumes presentations after every sweep that changed data.
type Display interface {
	Render(ctx context.Context, p Presentation)
}

// Latest keeps the last presentation for readers such as the HTTP API.
type Latest struct {
	mu sync.RWMutex
	p  Presentation
}

func NewLatest() *Latest { return &Latest{p: Placeholder} }

func (l *Latest) Render(_ context.Context, p Presentation) {
	l.mu.Lock()
	l.p = p
	l.mu.Unlock()
}

func (l *Latest) Get() Presentation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.p
}

// LogDisplay writes changed presentations to the log.
type LogDisplay struct {
	Log *slog.Logger

	mu   sync.Mutex
	last Presentation
}

func (d *LogDisplay) Render(_ context.Context, p Presentation) {
	d.mu.Lock()
	changed := p != d.last
	d.last = p
	d.mu.Unlock()
	if !changed {
		return
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("display", "title", p.Title, "compact", p.Compact)
}

// Multi renders to several displays.
type Multi []Display

func (m Multi) Render(ctx context.Context, p Presentation) {
	for _, d := range m {
		d.Render(ctx, p)
	}
}
