package condition

import (
	"strings"
	"sync"

	"github.com/onnwee/twitchbot/params"
)

// Predicate is a compiled condition. It is immutable and safe for concurrent
// use.
type Predicate struct {
	source string
	root   Node
}

// Source returns the text the predicate was compiled from.
func (p *Predicate) Source() string { return p.source }

// Eval evaluates the predicate against r. A nil resolver answers nothing.
func (p *Predicate) Eval(r params.Resolver) bool {
	return truthy(eval(p.root, r))
}

// Engine compiles conditions and memoizes them by exact source text. Entries
// are never evicted; the number of distinct conditions is bounded by the
// loaded configuration.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]*Predicate
}

// NewEngine returns an Engine with an empty cache.
func NewEngine() *Engine {
	return &Engine{cache: make(map[string]*Predicate)}
}

// Compile returns the predicate for text, parsing and type checking it on
// first use. Blank text has no predicate: Compile returns nil, nil. Repeated
// calls with the same text return the same *Predicate. Failures are returned
// as *SyntaxError and are not cached.
func (e *Engine) Compile(text string) (*Predicate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	e.mu.RLock()
	p, ok := e.cache[text]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	root, err := Parse(text)
	if err != nil {
		return nil, err
	}
	if _, err := check(text, root); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[text]; ok {
		return p, nil
	}
	p = &Predicate{source: text, root: root}
	e.cache[text] = p
	return p, nil
}

// Execute compiles text if needed and evaluates it. Blank text yields def.
func (e *Engine) Execute(text string, r params.Resolver, def bool) (bool, error) {
	p, err := e.Compile(text)
	if err != nil {
		return def, err
	}
	if p == nil {
		return def, nil
	}
	return p.Eval(r), nil
}

// Len reports the number of cached predicates.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
