package rules

import (
	"maps"
	"sync"
)

// Table maps keys to their rules with a process-wide default fallback.
// Reads vastly outnumber writes, so it is guarded by a RWMutex rather
// than anything fancier.
type Table struct {
	mu    sync.RWMutex
	rules map[string]Rule
	def   Rule
}

// NewTable creates a table whose Get falls back to def for keys
// without an explicit rule. The default is fixed for the table's
// lifetime.
func NewTable(def Rule) *Table {
	return &Table{
		rules: make(map[string]Rule),
		def:   def,
	}
}

// Get returns the effective rule for key and whether it was explicitly
// set (false means the default was returned).
func (t *Table) Get(key string) (Rule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rules[key]; ok {
		return r, true
	}
	return t.def, false
}

// Set installs or replaces the rule for key. Existing buckets are not
// touched; the new parameters apply on the key's next admission.
func (t *Table) Set(key string, r Rule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules[key] = r
}

// Delete removes the explicit rule for key, returning the removed rule
// and whether one existed. The key reverts to the default.
func (t *Table) Delete(key string) (Rule, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rules[key]
	if ok {
		delete(t.rules, key)
	}
	return r, ok
}

// All returns a snapshot of the explicitly configured rules.
func (t *Table) All() map[string]Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.rules)
}

// Default returns the fallback rule.
func (t *Table) Default() Rule {
	return t.def
}

// Len returns the number of explicitly configured rules.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rules)
}
