package agent

import (
	"sort"
	"strings"
	"sync"
)

// NormalizeSymbol trims and upper-cases a symbol key.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Registry owns one Agent per symbol.
type Registry struct {
	mu     sync.Mutex
	cfg    Config
	opts   []Option
	agents map[string]*Agent
}

// NewRegistry validates cfg once so Get can never fail.
func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Registry{cfg: cfg, opts: opts, agents: make(map[string]*Agent)}, nil
}

// Config is the configuration new agents start from.
func (r *Registry) Config() Config { return r.cfg }

// Get returns the agent for symbol, creating it on first use.
func (r *Registry) Get(symbol string) *Agent {
	key := NormalizeSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[key]; ok {
		return a
	}
	a, _ := New(r.cfg, r.opts...)
	r.agents[key] = a
	return a
}

// Lookup returns an existing agent without creating one.
func (r *Registry) Lookup(symbol string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[NormalizeSymbol(symbol)]
	return a, ok
}

// Symbols lists registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.agents))
	for s := range r.agents {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Remove drops the agent for symbol and reports whether it existed.
func (r *Registry) Remove(symbol string) bool {
	key := NormalizeSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[key]; !ok {
		return false
	}
	delete(r.agents, key)
	return true
}
