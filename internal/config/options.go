package config

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Recognized option names.
const (
	ThresholdSizeBytes = "threshold-size-bytes"
	StrictJSONBody     = "strict-json-body"
	ScriptTimeout      = "script-timeout"
	ProgramCacheSize   = "program-cache-size"
)

// Defaults applied when an option is missing or cannot be parsed.
const (
	DefaultThreshold        int64 = 65535
	DefaultScriptTimeout          = 5 * time.Second
	DefaultProgramCacheSize       = 256
)

// DefaultName is the config used when a caller does not name one.
const DefaultName = "default"

// Options is a named-option mapping. Values are kept as strings, the way
// they arrive from fixture tables, YAML files and environment variables;
// the typed getters normalize them.
type Options map[string]string

// Threshold returns the optimization threshold. Unparsable values fall back
// to DefaultThreshold and negative values clamp to 0.
func (o Options) Threshold() int64 {
	raw, ok := o[ThresholdSizeBytes]
	if !ok {
		return DefaultThreshold
	}
	return ParseThreshold(raw)
}

// ParseThreshold normalizes a raw threshold value.
func ParseThreshold(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return DefaultThreshold
	}
	if n < 0 {
		return 0
	}
	return n
}

// StrictJSONBody reports whether a malformed body under a declared JSON
// content type should fail scripts that read it.
func (o Options) StrictJSONBody() bool {
	b, err := strconv.ParseBool(strings.TrimSpace(o[StrictJSONBody]))
	if err != nil {
		return false
	}
	return b
}

// ScriptTimeout returns the per-call execution budget. Zero disables it.
func (o Options) ScriptTimeout() time.Duration {
	raw, ok := o[ScriptTimeout]
	if !ok {
		return DefaultScriptTimeout
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		return DefaultScriptTimeout
	}
	return d
}

// ProgramCacheSize returns the number of compiled programs kept per evaluator.
func (o Options) ProgramCacheSize() int {
	raw, ok := o[ProgramCacheSize]
	if !ok {
		return DefaultProgramCacheSize
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return DefaultProgramCacheSize
	}
	return n
}

// Clone returns a copy that can be modified without affecting o.
func (o Options) Clone() Options {
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// Registry holds named option sets.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Options
}

func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]Options)}
}

// Get returns a copy of the named options, creating an empty set on first use.
func (r *Registry) Get(name string) Options {
	if name == "" {
		name = DefaultName
	}

	r.mu.RLock()
	opts, ok := r.configs[name]
	r.mu.RUnlock()
	if ok {
		return opts.Clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if opts, ok := r.configs[name]; ok {
		return opts.Clone()
	}
	r.configs[name] = Options{}
	return Options{}
}

// Add sets a single option on the named config.
func (r *Registry) Add(name, key, value string) {
	if name == "" {
		name = DefaultName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	opts, ok := r.configs[name]
	if !ok {
		opts = Options{}
		r.configs[name] = opts
	}
	opts[key] = value
}

// Replace swaps every named config at once, as done after a file reload.
func (r *Registry) Replace(configs map[string]Options) {
	next := make(map[string]Options, len(configs))
	for name, opts := range configs {
		next[name] = opts.Clone()
	}
	r.mu.Lock()
	r.configs = next
	r.mu.Unlock()
}

// Names lists the configured names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
