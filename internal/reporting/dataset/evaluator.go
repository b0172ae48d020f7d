package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/reporting/cohort"
	"github.com/ehr/cohortreports/internal/reporting/convert"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

// Evaluator fills datasets from the data and cohort services.
type Evaluator struct {
	data    *data.Service
	cohorts *cohort.Service
	logger  zerolog.Logger
}

func NewEvaluator(ds *data.Service, cs *cohort.Service, logger zerolog.Logger) *Evaluator {
	return &Evaluator{data: ds, cohorts: cs, logger: logger.With().Str("component", "dataset").Logger()}
}

// Evaluate computes every column of def in ec and assembles the rows. A value
// missing for a row is passed to the column's converters as nil.
func (e *Evaluator) Evaluate(ctx context.Context, def *Definition, ec *evaluation.Context) (*DataSet, error) {
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", def.Name, err)
	}
	start := time.Now()

	ids := ec.BaseCohort
	if def.Kind == data.KindEncounter {
		if def.RowQuery == nil {
			return nil, fmt.Errorf("dataset %s: encounter dataset has no row query", def.Name)
		}
		qc, err := def.RowQuery.Resolve(ec)
		if err != nil {
			return nil, evaluation.NewEvaluationError(def.Name, err)
		}
		ids, err = e.cohorts.Evaluate(ctx, def.RowQuery.Parameterizable, qc)
		if err != nil {
			return nil, err
		}
		ec = ec.WithBaseEncounters(ids)
	}

	out := &DataSet{
		Name:    def.Name,
		Columns: def.Labels(),
		IDs:     ids,
		Rows:    make([][]interface{}, len(ids)),
	}
	for i := range out.Rows {
		out.Rows[i] = make([]interface{}, len(def.Columns))
	}

	for col, c := range def.Columns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cc, err := c.Definition.Resolve(ec)
		if err != nil {
			return nil, evaluation.NewEvaluationError(c.Label, err)
		}
		res, err := e.data.Evaluate(ctx, c.Definition.Parameterizable, cc)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Label, err)
		}
		for row, id := range ids {
			out.Rows[row][col] = convert.Chain(res.Data[id], c.Converters...)
		}
	}

	e.logger.Info().
		Str("dataset", def.Name).
		Int("rows", len(ids)).
		Int("columns", len(def.Columns)).
		Dur("latency", time.Since(start)).
		Msg("dataset evaluated")
	return out, nil
}
