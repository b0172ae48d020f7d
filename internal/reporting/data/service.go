package data

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/platform/metrics"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

// Service evaluates definitions through the registry with caching and base-set
// restriction.
type Service struct {
	registry   *Registry
	persistent evaluation.Cache
	logger     zerolog.Logger
}

func NewService(registry *Registry, logger zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		logger:   logger.With().Str("component", "data").Logger(),
	}
}

// SetPersistentCache attaches a cache that outlives a single report run.
func (s *Service) SetPersistentCache(c evaluation.Cache) {
	s.persistent = c
}

// Registry returns the evaluator registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Evaluate computes def in ec. Person and patient data are restricted to the base
// cohort and encounter data to the base encounters when those are set.
func (s *Service) Evaluate(ctx context.Context, def Definition, ec *evaluation.Context) (*Evaluated, error) {
	if err := ec.Validate(def.Parameters()); err != nil {
		return nil, evaluation.NewEvaluationError(def.Name(), err)
	}

	key := s.key(def, ec)
	if data, ok := s.lookup(ec, key); ok {
		metrics.RecordEvaluation(def.Type(), "cache")
		return restrict(&Evaluated{Definition: def, Context: ec, Data: data}), nil
	}

	evaluator, err := s.registry.Lookup(def.Type())
	if err != nil {
		return nil, evaluation.NewEvaluationError(def.Name(), err)
	}

	start := time.Now()
	result, err := evaluator.Evaluate(ctx, def, ec)
	if err != nil {
		return nil, evaluation.NewEvaluationError(def.Name(), err)
	}
	metrics.RecordEvaluation(def.Type(), "query")
	s.logger.Debug().
		Str("definition", def.Name()).
		Str("type", def.Type()).
		Int("rows", len(result.Data)).
		Dur("latency", time.Since(start)).
		Msg("definition evaluated")

	if c := ec.Cache(); c != nil {
		c.Put(key, result.Data)
	}
	if s.persistent != nil {
		s.persistent.Put(key, result.Data)
	}
	return restrict(result), nil
}

func (s *Service) key(def Definition, ec *evaluation.Context) string {
	params := ec.ParameterValues()
	params["_evaluationDate"] = ec.EvaluationDate.Format(evaluation.DateLayout)
	if _, ok := def.(BaseDerived); ok {
		params["_base"] = baseDigest(baseIDs(def, ec))
	}
	return evaluation.CacheKey(cacheKey(def), params)
}

func (s *Service) lookup(ec *evaluation.Context, key string) (map[int]interface{}, bool) {
	if c := ec.Cache(); c != nil {
		if data, ok := c.Get(key); ok {
			return data, true
		}
	}
	if s.persistent != nil {
		if data, ok := s.persistent.Get(key); ok {
			if c := ec.Cache(); c != nil {
				c.Put(key, data)
			}
			return data, true
		}
	}
	return nil, false
}

func baseIDs(def Definition, ec *evaluation.Context) []int {
	if def.Kind() == KindEncounter {
		return ec.BaseEncounters
	}
	return ec.BaseCohort
}

// baseDigest fingerprints an id set independently of its order. A nil set and
// an empty set differ.
func baseDigest(ids []int) string {
	if ids == nil {
		return "all"
	}
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	h := fnv.New64a()
	var buf [8]byte
	for _, id := range sorted {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%d:%x", len(sorted), h.Sum64())
}

func restrict(e *Evaluated) *Evaluated {
	base := baseIDs(e.Definition, e.Context)
	if base == nil {
		return e
	}
	out := make(map[int]interface{}, len(base))
	for _, id := range base {
		if v, ok := e.Data[id]; ok {
			out[id] = v
		}
	}
	return &Evaluated{Definition: e.Definition, Context: e.Context, Data: out}
}
