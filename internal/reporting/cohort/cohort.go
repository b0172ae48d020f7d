// Package cohort evaluates SQL population queries into ordered id lists.
package cohort

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

// Definition is a population query. Its first result column is the member id:
// a patient id for cohorts, an encounter id for encounter queries.
type Definition struct {
	Label             string
	Description       string
	SQL               string
	Params            []evaluation.Parameter
	CalculationParams map[string]interface{}
}

func (d *Definition) Name() string                       { return d.Label }
func (d *Definition) Parameters() []evaluation.Parameter { return d.Params }

// Service evaluates population queries against the warehouse.
type Service struct {
	wh     *warehouse.Service
	logger zerolog.Logger
}

func NewService(wh *warehouse.Service, logger zerolog.Logger) *Service {
	return &Service{wh: wh, logger: logger.With().Str("component", "cohort").Logger()}
}

// Evaluate returns the member ids of def in query order. Results are cached in
// the context so a cohort shared by several datasets is queried once.
func (s *Service) Evaluate(ctx context.Context, def *Definition, ec *evaluation.Context) ([]int, error) {
	if err := ec.Validate(def.Params); err != nil {
		return nil, evaluation.NewEvaluationError(def.Label, err)
	}

	params := ec.ParameterValues()
	for k, v := range def.CalculationParams {
		params[k] = v
	}
	key := evaluation.CacheKey("cohort:"+def.Label, params)
	if c := ec.Cache(); c != nil {
		if cached, ok := c.Get(key); ok {
			return idsFromCache(cached), nil
		}
	}

	qb := warehouse.NewSqlQueryBuilder().Append(def.SQL)
	for _, p := range def.Params {
		v, _ := ec.ParameterValue(p.Name)
		qb.AddParameter(p.Name, v)
	}
	for k, v := range def.CalculationParams {
		qb.AddParameter(k, v)
	}
	qb.AddParameter("evaluationDate", ec.EvaluationDate)

	start := time.Now()
	ids, err := s.wh.EvaluateToIDs(ctx, qb)
	if err != nil {
		return nil, evaluation.NewEvaluationError(def.Label, fmt.Errorf("evaluate cohort: %w", err))
	}
	s.logger.Debug().
		Str("cohort", def.Label).
		Int("size", len(ids)).
		Dur("latency", time.Since(start)).
		Msg("cohort evaluated")

	if c := ec.Cache(); c != nil {
		c.Put(key, idsToCache(ids))
	}
	return ids, nil
}

// The cache stores id maps, so the member order is kept as the value.
func idsToCache(ids []int) map[int]interface{} {
	m := make(map[int]interface{}, len(ids))
	for i, id := range ids {
		m[id] = i
	}
	return m
}

func idsFromCache(m map[int]interface{}) []int {
	ids := make([]int, len(m))
	for id, pos := range m {
		ids[pos.(int)] = id
	}
	return ids
}
