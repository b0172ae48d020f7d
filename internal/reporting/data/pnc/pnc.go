// Package pnc provides postnatal care visit data definitions keyed by encounter id.
package pnc

import (
	"context"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

const (
	TypeModernFPWithin6Weeks = "pnc.modernFPWithin6Weeks"
	TypeVisitDate            = "pnc.visitDate"
	TypeDeliveryDate         = "pnc.deliveryDate"
	TypePatientID            = "pnc.patientId"
)

func windowParams() []evaluation.Parameter {
	return []evaluation.Parameter{
		evaluation.NewParameter("startDate", "Start Date", evaluation.TypeDate),
		evaluation.NewParameter("endDate", "End Date", evaluation.TypeDate),
	}
}

// PNCModernFPWithin6WeeksDataDefinition is "Yes" when a modern family planning
// method was recorded at a visit within six weeks of delivery, "No" when none was,
// and empty otherwise.
type PNCModernFPWithin6WeeksDataDefinition struct{ data.Base }

func NewPNCModernFPWithin6WeeksDataDefinition() *PNCModernFPWithin6WeeksDataDefinition {
	return &PNCModernFPWithin6WeeksDataDefinition{Base: data.Base{Label: "modernFPWithin6Weeks", Params: windowParams()}}
}

func (d *PNCModernFPWithin6WeeksDataDefinition) Type() string    { return TypeModernFPWithin6Weeks }
func (d *PNCModernFPWithin6WeeksDataDefinition) Kind() data.Kind { return data.KindEncounter }

type PNCVisitDateDataDefinition struct{ data.Base }

func NewPNCVisitDateDataDefinition() *PNCVisitDateDataDefinition {
	return &PNCVisitDateDataDefinition{Base: data.Base{Label: "visitDate"}}
}

func (d *PNCVisitDateDataDefinition) Type() string    { return TypeVisitDate }
func (d *PNCVisitDateDataDefinition) Kind() data.Kind { return data.KindEncounter }

type PNCDeliveryDateDataDefinition struct{ data.Base }

func NewPNCDeliveryDateDataDefinition() *PNCDeliveryDateDataDefinition {
	return &PNCDeliveryDateDataDefinition{Base: data.Base{Label: "deliveryDate"}}
}

func (d *PNCDeliveryDateDataDefinition) Type() string    { return TypeDeliveryDate }
func (d *PNCDeliveryDateDataDefinition) Kind() data.Kind { return data.KindEncounter }

// PNCPatientIdDataDefinition maps each visit to the patient seen.
type PNCPatientIdDataDefinition struct{ data.Base }

func NewPNCPatientIdDataDefinition() *PNCPatientIdDataDefinition {
	return &PNCPatientIdDataDefinition{Base: data.Base{Label: "patientId"}}
}

func (d *PNCPatientIdDataDefinition) Type() string    { return TypePatientID }
func (d *PNCPatientIdDataDefinition) Kind() data.Kind { return data.KindEncounter }

const modernFPWithin6WeeksSQL = `select v.encounter_id,
       (case v.family_planning_method
            when 160570 then "Yes"
            when 780 then "Yes"
            when 5279 then "Yes"
            when 1359 then "Yes"
            when 5275 then "Yes"
            when 136163 then "Yes"
            when 5278 then "Yes"
            when 5277 then "Yes"
            when 1472 then "Yes"
            when 190 then "Yes"
            when 1489 then "Yes"
            when 162332 then "No"
            else "" end) as Modern_FP_Within_6Weeks
from kenyaemr_etl.etl_mch_postnatal_visit v
where date(v.visit_date) between date(:startDate) and date(:endDate)
  and timestampdiff(week, date(v.delivery_date), date(v.visit_date)) between 0 and 6;`

const visitDateSQL = `select v.encounter_id, v.visit_date
from kenyaemr_etl.etl_mch_postnatal_visit v`

const deliveryDateSQL = `select v.encounter_id, v.delivery_date
from kenyaemr_etl.etl_mch_postnatal_visit v`

const patientIDSQL = `select v.encounter_id, v.patient_id
from kenyaemr_etl.etl_mch_postnatal_visit v`

// Register binds the PNC evaluators.
func Register(reg *data.Registry, wh *warehouse.Service) {
	for typ, sql := range map[string]string{
		TypeModernFPWithin6Weeks: modernFPWithin6WeeksSQL,
		TypeVisitDate:            visitDateSQL,
		TypeDeliveryDate:         deliveryDateSQL,
		TypePatientID:            patientIDSQL,
	} {
		sql := sql
		reg.Register(typ, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
			return data.EvaluateMap(ctx, wh, def, ec, data.NewQuery(def, ec, sql))
		}), 50)
	}
}
