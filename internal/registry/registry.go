// Package registry is the ordered catalog of modules the scheduler may run.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/loykin/extbox/internal/module"
)

var ErrUnknownModule = errors.New("unknown module")

// Entry pairs a descriptor with a factory. New must return a fresh,
// stopped instance on every call.
type Entry struct {
	module.Info
	New func() module.Module
}

// Registry is immutable after construction.
type Registry struct {
	entries []Entry
	byKey   map[string]int
}

// New validates entries: keys must be unique and non-empty and every entry
// needs a factory.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{byKey: make(map[string]int, len(entries))}
	for _, e := range entries {
		if e.Key == "" {
			return nil, errors.New("registry: empty module key")
		}
		if e.New == nil {
			return nil, fmt.Errorf("registry: module %q has no factory", e.Key)
		}
		if _, dup := r.byKey[e.Key]; dup {
			return nil, fmt.Errorf("registry: duplicate module %q", e.Key)
		}
		r.byKey[e.Key] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// MustNew panics on invalid entries; used for the built-in catalog.
func MustNew(entries ...Entry) *Registry {
	r, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// Entries returns the catalog in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry) Lookup(key string) (Entry, error) {
	i, ok := r.byKey[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownModule, key)
	}
	return r.entries[i], nil
}

func (r *Registry) Has(key string) bool {
	_, ok := r.byKey[key]
	return ok
}

func (r *Registry) Len() int { return len(r.entries) }

// Descriptors lists module identities sorted by ascending priority.
func (r *Registry) Descriptors() []module.Info {
	out := make([]module.Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Info)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Priority returns the descriptor priority, or a large value for unknown keys.
func (r *Registry) Priority(key string) int {
	if i, ok := r.byKey[key]; ok {
		return r.entries[i].Priority
	}
	return 1 << 30
}
