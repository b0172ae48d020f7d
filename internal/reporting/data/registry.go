package data

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrNoEvaluator = errors.New("no evaluator registered")

type registration struct {
	evaluator Evaluator
	order     int
}

// Registry binds definition types to evaluators. When several evaluators support
// the same type the one with the lowest order wins.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]registration)}
}

// Register binds an evaluator to a definition type.
func (r *Registry) Register(defType string, e Evaluator, order int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := append(r.handlers[defType], registration{evaluator: e, order: order})
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].order < regs[j].order })
	r.handlers[defType] = regs
}

// Lookup returns the preferred evaluator for a definition type.
func (r *Registry) Lookup(defType string) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := r.handlers[defType]
	if len(regs) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoEvaluator, defType)
	}
	return regs[0].evaluator, nil
}

// Types lists the registered definition types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
