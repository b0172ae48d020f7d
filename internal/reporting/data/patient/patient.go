// Package patient provides patient-keyed data definitions.
package patient

import (
	"context"
	"fmt"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

const (
	TypePatientID         = "patient.id"
	TypePatientIdentifier = "patient.identifier"
	TypePopulationType    = "patient.populationType"
	TypeHTSDiscordance    = "patient.htsDiscordance"
)

// PatientIdDataDefinition echoes each patient id of the base cohort.
type PatientIdDataDefinition struct{ data.Base }

func NewPatientIdDataDefinition() *PatientIdDataDefinition {
	return &PatientIdDataDefinition{Base: data.Base{Label: "patientId"}}
}

func (d *PatientIdDataDefinition) Type() string    { return TypePatientID }
func (d *PatientIdDataDefinition) Kind() data.Kind { return data.KindPatient }

func (d *PatientIdDataDefinition) DerivedFromBase() {}

// PatientIdentifierDataDefinition is the preferred identifier of one identifier type.
type PatientIdentifierDataDefinition struct {
	data.Base
	IdentifierTypeUUID string
}

func NewPatientIdentifierDataDefinition(label, identifierTypeUUID string) *PatientIdentifierDataDefinition {
	return &PatientIdentifierDataDefinition{Base: data.Base{Label: label}, IdentifierTypeUUID: identifierTypeUUID}
}

func (d *PatientIdentifierDataDefinition) Type() string     { return TypePatientIdentifier }
func (d *PatientIdentifierDataDefinition) Kind() data.Kind  { return data.KindPatient }
func (d *PatientIdentifierDataDefinition) CacheKey() string { return d.IdentifierTypeUUID }

// PopulationTypeDataDefinition is the key population classification from the
// latest HTS test.
type PopulationTypeDataDefinition struct{ data.Base }

func NewPopulationTypeDataDefinition() *PopulationTypeDataDefinition {
	return &PopulationTypeDataDefinition{Base: data.Base{Label: "populationType"}}
}

func (d *PopulationTypeDataDefinition) Type() string    { return TypePopulationType }
func (d *PopulationTypeDataDefinition) Kind() data.Kind { return data.KindPatient }

// HTSDiscordanceDataDefinition reports whether the latest HTS test was done as a
// discordant couple.
type HTSDiscordanceDataDefinition struct{ data.Base }

func NewHTSDiscordanceDataDefinition() *HTSDiscordanceDataDefinition {
	return &HTSDiscordanceDataDefinition{Base: data.Base{Label: "coupleDiscordant"}}
}

func (d *HTSDiscordanceDataDefinition) Type() string    { return TypeHTSDiscordance }
func (d *HTSDiscordanceDataDefinition) Kind() data.Kind { return data.KindPatient }

const identifierSQL = `select pi.patient_id, pi.identifier
from patient_identifier pi
inner join patient_identifier_type pit on pit.patient_identifier_type_id = pi.identifier_type
where pit.uuid = :identifierTypeUuid and pi.voided = 0
order by pi.patient_id, pi.preferred, pi.date_created`

const populationTypeSQL = `select t.patient_id,
       case t.population_type
           when 'Key Population' then concat('Key Population', if(t.key_population_type is null, '', concat(': ', t.key_population_type)))
           else t.population_type
       end as population_type
from kenyaemr_etl.etl_hts_test t
inner join (
    select patient_id, max(visit_date) as visit_date
    from kenyaemr_etl.etl_hts_test
    where voided = 0
    group by patient_id
) latest on latest.patient_id = t.patient_id and latest.visit_date = t.visit_date
where t.voided = 0
order by t.patient_id, t.encounter_id`

const htsDiscordanceSQL = `select t.patient_id,
       if(t.couple_discordant = 'Yes', 'Yes', if(t.couple_discordant = 'No', 'No', '')) as couple_discordant
from kenyaemr_etl.etl_hts_test t
inner join (
    select patient_id, max(visit_date) as visit_date
    from kenyaemr_etl.etl_hts_test
    where voided = 0
    group by patient_id
) latest on latest.patient_id = t.patient_id and latest.visit_date = t.visit_date
where t.voided = 0
order by t.patient_id, t.encounter_id`

// Register binds the patient evaluators.
func Register(reg *data.Registry, wh *warehouse.Service) {
	reg.Register(TypePatientID, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		return &data.Evaluated{Definition: def, Context: ec, Data: data.IdentityData(ec.BaseCohort)}, nil
	}), 50)

	reg.Register(TypePatientIdentifier, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		d, ok := def.(*PatientIdentifierDataDefinition)
		if !ok {
			return nil, fmt.Errorf("unexpected definition %T", def)
		}
		qb := data.NewQuery(def, ec, identifierSQL)
		qb.AddParameter("identifierTypeUuid", d.IdentifierTypeUUID)
		return data.EvaluateMap(ctx, wh, def, ec, qb)
	}), 50)

	reg.Register(TypePopulationType, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		return data.EvaluateMap(ctx, wh, def, ec, data.NewQuery(def, ec, populationTypeSQL))
	}), 50)

	reg.Register(TypeHTSDiscordance, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		return data.EvaluateMap(ctx, wh, def, ec, data.NewQuery(def, ec, htsDiscordanceSQL))
	}), 50)
}
