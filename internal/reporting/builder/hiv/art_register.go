package hiv

import (
	"github.com/ehr/cohortreports/internal/reporting/calculation/library"
	"github.com/ehr/cohortreports/internal/reporting/cohort"
	"github.com/ehr/cohortreports/internal/reporting/convert"
	"github.com/ehr/cohortreports/internal/reporting/data/art"
	"github.com/ehr/cohortreports/internal/reporting/data/patient"
	"github.com/ehr/cohortreports/internal/reporting/data/person"
	"github.com/ehr/cohortreports/internal/reporting/dataset"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
	"github.com/ehr/cohortreports/internal/reporting/metadata"
	"github.com/ehr/cohortreports/internal/reporting/report"
)

var ArtRegisterDescriptor = report.Descriptor{
	ID:          "kenyaemr.hiv.report.art.register",
	Name:        "ART Register",
	Description: "Patients starting ART in the period with their regimen history",
	Kind:        report.KindCohort,
}

// ArtRegisterReportBuilder lists patients starting ART in the period with
// their initial regimen, first substitution and current regimen.
type ArtRegisterReportBuilder struct {
	cohorts cohort.ArtCohortLibrary
}

func (b ArtRegisterReportBuilder) Build(desc report.Descriptor) (*report.Definition, error) {
	cd, err := evaluation.Map(b.cohorts.StartedArtBetweenDates(), "startDate=${startDate},endDate=${endDate}")
	if err != nil {
		return nil, err
	}

	dsd := dataset.NewPatientDataSetDefinition("artRegister")
	dsd.AddColumn("id", patient.NewPatientIdDataDefinition(), "")
	dsd.AddColumn("UPN", patient.NewPatientIdentifierDataDefinition("Unique Patient Number", metadata.UniquePatientNumber), "", convert.Identifier())
	dsd.AddColumn("Name", person.NewPreferredNameDataDefinition(), "", convert.ObjectFormatter("{familyName}, {givenName}"))
	dsd.AddColumn("Sex", person.NewGenderDataDefinition(), "")
	dsd.AddColumn("DOB", person.NewBirthdateDataDefinition(), "", convert.Birthdate())
	dsd.AddColumn("ART Start Date", calc("ART Start Date", library.DateARV1), "", convert.CalculationResult())
	dsd.AddColumn("Initial ART regimen", calc("First ART regimen", library.InitialArtRegimen), "", convert.CalculationResult())
	dsd.AddColumn("First substitution", art.NewARTFirstSubstitutionDataDefinition(), "")
	dsd.AddColumn("Current ART regimen", calc("Current ART regimen", library.CurrentArtRegimen), "", convert.CalculationResult())
	dsd.AddColumn("Current ART line", calc("Current ART Line", library.CurrentArtRegimenLine), "", convert.CalculationResult())
	if err := dsd.Err(); err != nil {
		return nil, err
	}

	return &report.Definition{
		Descriptor: desc,
		Parameters: periodParameters(),
		Cohort:     &cd,
		DataSets:   []*dataset.Definition{dsd},
	}, nil
}

// Register adds the HIV reports to reg.
func Register(reg *report.Registry) {
	reg.Builds(ArtCohortAnalysisReportBuilder{}, ArtCohortAnalysisDescriptors()...)
	reg.Builds(ArtRegisterReportBuilder{}, ArtRegisterDescriptor)
}
