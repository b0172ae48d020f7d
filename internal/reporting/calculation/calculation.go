// Package calculation evaluates named patient calculations. Each calculation is a
// single warehouse query whose first column is the patient id.
package calculation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

const TypeCalculation = "patient.calculation"

// OnDateParam defaults to the evaluation date when a calculation references it
// without the definition mapping a value.
const OnDateParam = "onDate"

// Calculation is a named SQL calculation. Composite calculations return more than
// one value column and evaluate to records.
type Calculation struct {
	Name      string
	SQL       string
	Composite bool
}

// CalculationDataDefinition adapts a Calculation to a patient data definition.
// Calculation parameters are fixed when the report is built; definition
// parameters are mapped from the report at evaluation time.
type CalculationDataDefinition struct {
	data.Base
	Calculation       Calculation
	CalculationParams map[string]interface{}
}

func NewCalculationDataDefinition(label string, calc Calculation) *CalculationDataDefinition {
	return &CalculationDataDefinition{
		Base:              data.Base{Label: label},
		Calculation:       calc,
		CalculationParams: make(map[string]interface{}),
	}
}

// AddCalculationParameter fixes a value passed to the calculation query.
func (d *CalculationDataDefinition) AddCalculationParameter(name string, v interface{}) {
	d.CalculationParams[name] = v
}

func (d *CalculationDataDefinition) Type() string    { return TypeCalculation }
func (d *CalculationDataDefinition) Kind() data.Kind { return data.KindPatient }

// CacheKey distinguishes the same calculation run with different fixed parameters.
func (d *CalculationDataDefinition) CacheKey() string {
	names := make([]string, 0, len(d.CalculationParams))
	for n := range d.CalculationParams {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(d.Calculation.Name)
	for _, n := range names {
		fmt.Fprintf(&b, ";%s=%v", n, d.CalculationParams[n])
	}
	return b.String()
}

// Register binds the calculation evaluator.
func Register(reg *data.Registry, wh *warehouse.Service) {
	reg.Register(TypeCalculation, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		d, ok := def.(*CalculationDataDefinition)
		if !ok {
			return nil, fmt.Errorf("unexpected definition %T", def)
		}
		if d.Calculation.SQL == "" {
			return nil, fmt.Errorf("calculation %q has no query", d.Calculation.Name)
		}

		qb := data.NewQuery(def, ec, d.Calculation.SQL)
		for n, v := range d.CalculationParams {
			qb.AddParameter(n, v)
		}
		if v, ok := qb.Parameters()[OnDateParam]; !ok || v == nil {
			qb.AddParameter(OnDateParam, ec.EvaluationDate)
		}

		if d.Calculation.Composite {
			return data.EvaluateRecords(ctx, wh, def, ec, qb)
		}
		return data.EvaluateMap(ctx, wh, def, ec, qb)
	}), 50)
}
