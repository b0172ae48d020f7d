// Package encounter provides encounter-keyed data definitions.
package encounter

import (
	"context"

	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

const TypeEncounterID = "encounter.id"

// EncounterIdDataDefinition echoes each encounter id of the base encounter set.
type EncounterIdDataDefinition struct{ data.Base }

func NewEncounterIdDataDefinition() *EncounterIdDataDefinition {
	return &EncounterIdDataDefinition{Base: data.Base{Label: "encounterId"}}
}

func (d *EncounterIdDataDefinition) Type() string    { return TypeEncounterID }
func (d *EncounterIdDataDefinition) Kind() data.Kind { return data.KindEncounter }

func (d *EncounterIdDataDefinition) DerivedFromBase() {}

// Register binds the encounter evaluators.
func Register(reg *data.Registry) {
	reg.Register(TypeEncounterID, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		return &data.Evaluated{Definition: def, Context: ec, Data: data.IdentityData(ec.BaseEncounters)}, nil
	}), 50)
}
