// Package art provides ART regimen history data definitions.
package art

import (
	"context"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

const TypeFirstSubstitution = "art.firstSubstitution"

// ARTFirstSubstitutionDataDefinition reports the regimen, start date and reason
// for the first substitution within the adult first line, for patients with
// exactly two first line drug events. The three parts are joined by CR LF.
type ARTFirstSubstitutionDataDefinition struct{ data.Base }

func NewARTFirstSubstitutionDataDefinition() *ARTFirstSubstitutionDataDefinition {
	return &ARTFirstSubstitutionDataDefinition{Base: data.Base{Label: "firstSubstitution"}}
}

func (d *ARTFirstSubstitutionDataDefinition) Type() string    { return TypeFirstSubstitution }
func (d *ARTFirstSubstitutionDataDefinition) Kind() data.Kind { return data.KindPerson }

// Rows are keyed by patient_id, not by the latest drug event encounter.
const firstSubstitutionSQL = `select
  fdr.patient_id,
  concat_ws('\r\n', fdr.firstSubstitution, fdr.dateStarted, fdr.reasonDiscontinued) as Substitutions
from (select
        de.patient_id,
        mid(max(concat(de.visit_date, de.regimen)), 11) as firstSubstitution,
        mid(max(concat(de.visit_date, de.date_started)), 11) as dateStarted,
        mid(max(concat(de.visit_date, (case de.reason_discontinued
                                           when 102 then "Toxicity / side effects"
                                           when 1434 then "Pregnancy"
                                           when 160559 then "Risk of pregnancy"
                                           when 160567 then "New diagnosis of TB"
                                           when 160561 then "New drug available"
                                           when 1754 then "Drugs out of stock"
                                           else "" end), "")), 11) as reasonDiscontinued,
        count(de.patient_id) as p_id
      from kenyaemr_etl.etl_drug_event de
      where de.regimen_line = "Adult first line"
      group by de.patient_id
      having p_id = 2) fdr
group by fdr.patient_id`

// Register binds the ART evaluators.
func Register(reg *data.Registry, wh *warehouse.Service) {
	reg.Register(TypeFirstSubstitution, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		return data.EvaluateMap(ctx, wh, def, ec, data.NewQuery(def, ec, firstSubstitutionSQL))
	}), 50)
}
