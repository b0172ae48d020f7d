// Package data pairs named column definitions with the evaluators that compute them.
package data

import (
	"context"

	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

// Kind says which entity the ids of an evaluated definition refer to.
type Kind int

const (
	KindPerson Kind = iota
	KindPatient
	KindEncounter
)

func (k Kind) String() string {
	switch k {
	case KindPerson:
		return "person"
	case KindPatient:
		return "patient"
	case KindEncounter:
		return "encounter"
	default:
		return "unknown"
	}
}

// Definition names a column value and declares the parameters it needs.
// Type is the registry key used to find its evaluator.
type Definition interface {
	Name() string
	Type() string
	Kind() Kind
	Parameters() []evaluation.Parameter
}

// Keyed definitions supply their own cache key, typically because two instances
// of the same type differ by configuration (a concept, an identifier type, ...).
type Keyed interface {
	CacheKey() string
}

// BaseDerived definitions compute their lookup from the context's base id set
// rather than from the warehouse, so their cached results are keyed by it.
type BaseDerived interface {
	DerivedFromBase()
}

// Evaluated is the id-to-value lookup produced for one definition.
type Evaluated struct {
	Definition Definition
	Context    *evaluation.Context
	Data       map[int]interface{}
}

// Evaluator computes a definition's lookup.
type Evaluator interface {
	Evaluate(ctx context.Context, def Definition, ec *evaluation.Context) (*Evaluated, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, def Definition, ec *evaluation.Context) (*Evaluated, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, def Definition, ec *evaluation.Context) (*Evaluated, error) {
	return f(ctx, def, ec)
}

// Base is embedded by concrete definitions for the common fields.
type Base struct {
	Label  string
	Params []evaluation.Parameter
}

func (b *Base) Name() string                       { return b.Label }
func (b *Base) Parameters() []evaluation.Parameter { return b.Params }

// AddParameter declares an additional parameter.
func (b *Base) AddParameter(p evaluation.Parameter) {
	b.Params = append(b.Params, p)
}

func cacheKey(def Definition) string {
	if k, ok := def.(Keyed); ok {
		return def.Type() + ":" + k.CacheKey()
	}
	return def.Type() + ":" + def.Name()
}
