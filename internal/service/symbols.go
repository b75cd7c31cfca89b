package service

import (
	"errors"
	"sync"
)

// ErrEmptySymbolName is returned when a symbol is stored without a name.
var ErrEmptySymbolName = errors.New("symbol name must not be empty")

// VariableSource is the read-only view of fixture variables that scripts
// reach through the "symbols" binding.
type VariableSource interface {
	Lookup(name string) (string, bool)
}

// MapSource adapts a plain map to VariableSource.
type MapSource map[string]string

func (m MapSource) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

type emptySource struct{}

func (emptySource) Lookup(string) (string, bool) { return "", false }

// SymbolTable is the live variable table of a test run. Writers are the
// fixture and the REST API; evaluations only read it.
type SymbolTable struct {
	mu   sync.RWMutex
	vars map[string]string
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{vars: make(map[string]string)}
}

func (t *SymbolTable) Lookup(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vars[name]
	return v, ok
}

func (t *SymbolTable) Put(name, value string) error {
	if name == "" {
		return ErrEmptySymbolName
	}
	t.mu.Lock()
	t.vars[name] = value
	t.mu.Unlock()
	return nil
}

// Load replaces the table contents. Entries with an empty name are skipped.
func (t *SymbolTable) Load(vars map[string]string) {
	next := make(map[string]string, len(vars))
	for k, v := range vars {
		if k != "" {
			next[k] = v
		}
	}
	t.mu.Lock()
	t.vars = next
	t.mu.Unlock()
}

// Delete removes name and reports whether it was present.
func (t *SymbolTable) Delete(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.vars[name]
	delete(t.vars, name)
	return ok
}

// Clear resets the table between runs.
func (t *SymbolTable) Clear() {
	t.mu.Lock()
	t.vars = make(map[string]string)
	t.mu.Unlock()
}

func (t *SymbolTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.vars)
}

// Snapshot returns a copy of the current contents.
func (t *SymbolTable) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.vars))
	for k, v := range t.vars {
		out[k] = v
	}
	return out
}
