package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/platform/metrics"
	"github.com/ehr/cohortreports/internal/reporting/cohort"
	"github.com/ehr/cohortreports/internal/reporting/dataset"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

// Data is the result of running a report.
type Data struct {
	Descriptor  Descriptor         `json:"descriptor"`
	Parameters  map[string]string  `json:"parameters"`
	CohortSize  int                `json:"cohortSize"`
	DataSets    []*dataset.DataSet `json:"dataSets"`
	EvaluatedAt time.Time          `json:"evaluatedAt"`
}

// RowCount sums the rows of every dataset.
func (d *Data) RowCount() int {
	n := 0
	for _, ds := range d.DataSets {
		n += len(ds.Rows)
	}
	return n
}

// Runner evaluates reports synchronously.
type Runner struct {
	registry *Registry
	cohorts  *cohort.Service
	datasets *dataset.Evaluator
	logger   zerolog.Logger
}

func NewRunner(reg *Registry, cs *cohort.Service, de *dataset.Evaluator, logger zerolog.Logger) *Runner {
	return &Runner{
		registry: reg,
		cohorts:  cs,
		datasets: de,
		logger:   logger.With().Str("component", "report").Logger(),
	}
}

// Registry returns the report registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Validate builds report id and checks raw against its parameters without
// querying the warehouse.
func (r *Runner) Validate(id string, raw map[string]string) error {
	def, err := r.registry.Build(id)
	if err != nil {
		return err
	}
	_, err = NewContext(def.Parameters, raw)
	return err
}

// Run builds report id, parses raw parameter values against its declared
// parameters, evaluates the cohort and then each dataset.
func (r *Runner) Run(ctx context.Context, id string, raw map[string]string) (data *Data, err error) {
	start := time.Now()
	defer func() {
		status := "completed"
		if err != nil {
			status = "failed"
		}
		metrics.RecordReportRun(id, status, time.Since(start))
	}()

	def, err := r.registry.Build(id)
	if err != nil {
		return nil, err
	}
	ec, err := NewContext(def.Parameters, raw)
	if err != nil {
		return nil, err
	}

	if def.Cohort != nil {
		cc, err := def.Cohort.Resolve(ec)
		if err != nil {
			return nil, evaluation.NewEvaluationError(def.Cohort.Parameterizable.Name(), err)
		}
		ids, err := r.cohorts.Evaluate(ctx, def.Cohort.Parameterizable, cc)
		if err != nil {
			return nil, err
		}
		ec.BaseCohort = ids
	}

	out := &Data{
		Descriptor:  def.Descriptor,
		Parameters:  raw,
		CohortSize:  len(ec.BaseCohort),
		EvaluatedAt: ec.EvaluationDate,
	}
	for _, dsd := range def.DataSets {
		ds, err := r.datasets.Evaluate(ctx, dsd, ec)
		if err != nil {
			return nil, err
		}
		out.DataSets = append(out.DataSets, ds)
	}

	r.logger.Info().
		Str("report", id).
		Int("cohort", out.CohortSize).
		Int("rows", out.RowCount()).
		Dur("latency", time.Since(start)).
		Msg("report evaluated")
	return out, nil
}

// NewContext parses raw values for params into a fresh evaluation context.
// Unknown names are rejected, and endDate may not precede startDate.
func NewContext(params []evaluation.Parameter, raw map[string]string) (*evaluation.Context, error) {
	ec := evaluation.NewContext()
	for name, v := range raw {
		p, ok := evaluation.FindParameter(params, name)
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidParams, evaluation.ErrUnknownParameter, name)
		}
		val, err := p.ParseValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		ec.SetParameterValue(name, val)
	}
	if err := ec.Validate(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	start, hasStart := ec.DateParameter("startDate")
	end, hasEnd := ec.DateParameter("endDate")
	if hasStart && hasEnd && end.Before(start) {
		return nil, fmt.Errorf("%w: endDate %s is before startDate %s", ErrInvalidParams,
			end.Format(evaluation.DateLayout), start.Format(evaluation.DateLayout))
	}
	return ec, nil
}
