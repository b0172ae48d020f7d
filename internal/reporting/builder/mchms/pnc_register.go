// Package mchms builds the maternal and child health reports.
package mchms

import (
	"github.com/ehr/cohortreports/internal/reporting/cohort"
	"github.com/ehr/cohortreports/internal/reporting/convert"
	"github.com/ehr/cohortreports/internal/reporting/data/encounter"
	"github.com/ehr/cohortreports/internal/reporting/data/pnc"
	"github.com/ehr/cohortreports/internal/reporting/dataset"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
	"github.com/ehr/cohortreports/internal/reporting/report"
)

var PNCRegisterDescriptor = report.Descriptor{
	ID:          "kenyaemr.mchms.report.pnc.register",
	Name:        "PNC Register",
	Description: "Postnatal care visits in the period",
	Kind:        report.KindEncounter,
}

// PNCRegisterReportBuilder lists each postnatal visit in the period.
type PNCRegisterReportBuilder struct {
	encounters cohort.MchEncounterLibrary
}

func (b PNCRegisterReportBuilder) Build(desc report.Descriptor) (*report.Definition, error) {
	const period = "startDate=${startDate},endDate=${endDate}"

	dsd := dataset.NewEncounterDataSetDefinition("pncRegister", b.encounters.PNCVisitsBetweenDates(), period)
	dsd.AddColumn("Encounter id", encounter.NewEncounterIdDataDefinition(), "")
	dsd.AddColumn("Patient id", pnc.NewPNCPatientIdDataDefinition(), "")
	dsd.AddColumn("Visit date", pnc.NewPNCVisitDateDataDefinition(), "", convert.CalculationResult())
	dsd.AddColumn("Delivery date", pnc.NewPNCDeliveryDateDataDefinition(), "", convert.CalculationResult())
	dsd.AddColumn("Modern FP <=6 weeks", pnc.NewPNCModernFPWithin6WeeksDataDefinition(), period)
	if err := dsd.Err(); err != nil {
		return nil, err
	}

	return &report.Definition{
		Descriptor: desc,
		Parameters: []evaluation.Parameter{
			evaluation.NewParameter("startDate", "Start Date", evaluation.TypeDate),
			evaluation.NewParameter("endDate", "End Date", evaluation.TypeDate),
		},
		DataSets: []*dataset.Definition{dsd},
	}, nil
}

// Register adds the MCH reports to reg.
func Register(reg *report.Registry) {
	reg.Builds(PNCRegisterReportBuilder{}, PNCRegisterDescriptor)
}
