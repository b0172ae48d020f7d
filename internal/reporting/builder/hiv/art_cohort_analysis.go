// Package hiv builds the HIV care and treatment reports.
package hiv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ehr/cohortreports/internal/reporting/calculation"
	"github.com/ehr/cohortreports/internal/reporting/calculation/library"
	"github.com/ehr/cohortreports/internal/reporting/cohort"
	"github.com/ehr/cohortreports/internal/reporting/convert"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/data/patient"
	"github.com/ehr/cohortreports/internal/reporting/data/person"
	"github.com/ehr/cohortreports/internal/reporting/dataset"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
	"github.com/ehr/cohortreports/internal/reporting/metadata"
	"github.com/ehr/cohortreports/internal/reporting/report"
)

const cohortAnalysisPrefix = "kenyaemr.hiv.report.art.cohort.analysis.art."

// CohortAnalysisPeriods are the follow-up periods, in months, a cohort analysis
// report exists for.
var CohortAnalysisPeriods = []int{6, 12, 24, 36, 48, 60}

// ArtCohortAnalysisDescriptors returns one descriptor per follow-up period.
func ArtCohortAnalysisDescriptors() []report.Descriptor {
	out := make([]report.Descriptor, 0, len(CohortAnalysisPeriods))
	for _, p := range CohortAnalysisPeriods {
		out = append(out, report.Descriptor{
			ID:          cohortAnalysisPrefix + strconv.Itoa(p),
			Name:        fmt.Sprintf("ART Cohort Analysis (%d months)", p),
			Description: fmt.Sprintf("Outcomes %d months after ART start for patients starting ART in the period", p),
			Kind:        report.KindCohort,
		})
	}
	return out
}

// Period reads the follow-up period from the eighth dot-separated segment of a
// cohort analysis report id.
func Period(id string) (int, error) {
	parts := strings.Split(id, ".")
	if len(parts) < 8 {
		return 0, fmt.Errorf("report id %q has no period segment", id)
	}
	n, err := strconv.Atoi(parts[7])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("report id %q has invalid period %q", id, parts[7])
	}
	return n, nil
}

func periodParameters() []evaluation.Parameter {
	return []evaluation.Parameter{
		evaluation.NewParameter("startDate", "Start Date", evaluation.TypeDate),
		evaluation.NewParameter("endDate", "End Date", evaluation.TypeDate),
	}
}

// ArtCohortAnalysisReportBuilder lists, for patients starting ART in the
// reporting period, their baseline characteristics and outcomes at the end of
// the follow-up period.
type ArtCohortAnalysisReportBuilder struct {
	cohorts cohort.ArtCohortLibrary
}

func (b ArtCohortAnalysisReportBuilder) Build(desc report.Descriptor) (*report.Definition, error) {
	period, err := Period(desc.ID)
	if err != nil {
		return nil, err
	}

	cd, err := evaluation.Map(b.cohorts.NetCohortMonthsBetweenDatesGivenMonths(period), "startDate=${startDate},endDate=${endDate}")
	if err != nil {
		return nil, err
	}

	dsd := dataset.NewPatientDataSetDefinition("artCohortAnalysis")
	b.addColumns(dsd, period)
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

func (b ArtCohortAnalysisReportBuilder) addColumns(dsd *dataset.Definition, period int) {
	upn := patient.NewPatientIdentifierDataDefinition("Unique Patient Number", metadata.UniquePatientNumber)
	tbRegNo := patient.NewPatientIdentifierDataDefinition("TB District Registration Number", metadata.TBDistrictRegNumber)
	name := person.NewPreferredNameDataDefinition()
	nameFormatter := convert.ObjectFormatter("{familyName}, {givenName}")

	dsd.AddColumn("id", patient.NewPatientIdDataDefinition(), "")
	dsd.AddColumn("ART Start Date", calc("ART Start Date", library.DateARV1), "", convert.CalculationResult())
	dsd.AddColumn("UPN", upn, "", convert.Identifier())
	dsd.AddColumn("Name", name, "", nameFormatter)
	dsd.AddColumn("Sex", person.NewGenderDataDefinition(), "")
	dsd.AddColumn("DOB", person.NewBirthdateDataDefinition(), "", convert.Birthdate())
	dsd.AddColumn("Age", person.NewAgeDataDefinition(), "")
	dsd.AddColumn("Telephone No", person.NewPersonAttributeDataDefinition("Telephone contact", metadata.TelephoneContact), "")
	dsd.AddColumn("Village_Estate_Landmark", calc("Village/Estate/Landmark", library.PersonAddress), "", convert.RDQACalculationResult())
	dsd.AddColumn("Population Type", patient.NewPopulationTypeDataDefinition(), "")
	dsd.AddColumn("coupleDiscordant", patient.NewHTSDiscordanceDataDefinition(), "")
	dsd.AddColumn("First WHO Stage", person.NewObsForPersonDataDefinition("First WHO Stage", person.First, metadata.CurrentWHOStage), "", convert.WHOStage())
	dsd.AddColumn("Latest CD4", followUp("currentCd4", library.LastCd4, period), "onDate=${endDate}", convert.ValueAndDate("value"))
	dsd.AddColumn("Height at Art Start", calc("Height at Art Start", library.HeightAtArtStart), "", convert.Height())
	dsd.AddColumn("Weight at Art Start", calc("Weight at Art Start", library.WeightAtArtStart), "", convert.Weight())
	dsd.AddColumn("CTX Start Date", calc("CTX Start Date", library.DateOfFirstCTX), "", convert.StartMonthYearDate())
	dsd.AddColumn("IPT Start Date", person.NewObsForPersonDataDefinition("IPT Start Date", person.First, metadata.IPTStart), "", convert.StartMonthYearDate())
	dsd.AddColumn("TBRx Start Date", person.NewObsForPersonDataDefinition("TB Treatment Start Date", person.First, metadata.TBTreatmentStartDate), "", convert.StartMonthYearDate())
	dsd.AddColumn("TB Reg", tbRegNo, "", convert.Identifier())

	dsd.AddColumn("Enrollment into care date", onDate(calc("careEnrollment", library.DateOfEnrollmentArt)), "onDate=${endDate}", convert.CalculationResult())
	dsd.AddColumn("Age at ART initiation", calc("Age at ART initiation", library.AgeAtARTInitiation), "", convert.CalculationResult())
	dsd.AddColumn("TI", ti(), "", convert.TransferInAndDate("state"))
	dsd.AddColumn("Date TI", ti(), "", convert.TransferInAndDate("date"))
	dsd.AddColumn("TO", followUp("to", library.IsArtTransferOutAndHasDate, period), "onDate=${endDate}", convert.TransferInAndDate("state"))
	dsd.AddColumn("Date TO", followUp("to", library.IsArtTransferOutAndHasDate, period), "onDate=${endDate}", convert.TransferInAndDate("date"))
	dsd.AddColumn("Days from enrollment in care to ART Initiation", calc("Days from enrollment in care to ART Initiation", library.DaysFromEnrollmentToArtInitiation), "", convert.CalculationResult())
	dsd.AddColumn("Days from ART eligibility to ART Initiation", followUp("eligibilityToArtStart", library.DaysFromArtEligibilityToArtInitiation, period), "onDate=${endDate}", convert.CalculationResult())
	dsd.AddColumn("Date first medically eligible for ART", followUp("date and reason", library.DateAndReasonFirstMedicallyEligibleForArt, period), "onDate=${endDate}", convert.MedicallyEligible("date"))
	dsd.AddColumn("Reason first medically eligible For ART", followUp("date and reason", library.DateAndReasonFirstMedicallyEligibleForArt, period), "onDate=${endDate}", convert.MedicallyEligible("reason"))
	dsd.AddColumn("ART baseline CD4 count", followUp("baselinecd4", library.BaselineCd4CountAndDate, period), "onDate=${endDate}", convert.Cd4ValueAndDate("value"))
	dsd.AddColumn("Date of ART baseline CD4 count", followUp("baselinecd4", library.BaselineCd4CountAndDate, period), "onDate=${endDate}", convert.Cd4ValueAndDate("date"))
	dsd.AddColumn("Initial ART regimen", calc("First ART regimen", library.InitialArtRegimen), "", convert.CalculationResult())
	dsd.AddColumn("Current ART regimen", calc("Current ART regimen", library.CurrentArtRegimen), "", convert.CalculationResult())
	dsd.AddColumn("Current ART line", calc("Current ART Line", library.CurrentArtRegimenLine), "", convert.CalculationResult())
	dsd.AddColumn("CD4 at end of follow up", followUp("currentCd4", library.LastCd4, period), "onDate=${endDate}", convert.ValueAndDate("value"))
	dsd.AddColumn("CD4 at end of follow up date", followUp("currentCd4", library.LastCd4, period), "onDate=${endDate}", convert.ValueAndDate("date"))
	dsd.AddColumn("Change in cd4 count", followUp("changeInCd4Count", library.ChangeInCd4Count, period), "onDate=${endDate}", convert.ChangeInCd4())
	dsd.AddColumn("Viral load at end of follow up", followUp("viral load", library.ViralLoad, period), "onDate=${endDate}", convert.ValueAndDate("value"))
	dsd.AddColumn("Date viral load at end of follow up", followUp("viral load", library.ViralLoad, period), "onDate=${endDate}", convert.ValueAndDate("date"))
	dsd.AddColumn("Viral suppression", followUp("viralSuppression", library.ViralSuppression, period), "onDate=${endDate}", convert.CalculationResult())
	dsd.AddColumn("Date of Last visit", followUp("lastSeenArt", library.DateLastSeenArt, period), "onDate=${endDate}", convert.CalculationResult())
	dsd.AddColumn("Date of expected next visit", followUp("nextAppointmentArt", library.LastReturnVisitDateArtAnalysis, period), "onDate=${endDate}", convert.CalculationResult())
	dsd.AddColumn("Date of death", followUp("death", library.DateOfDeathArtAnalysis, period), "onDate=${endDate}", convert.CalculationResult())
	dsd.AddColumn("ART Outcomes", followUp("outcomes", library.PatientArtOutCome, period), "onDate=${endDate}", convert.CalculationResult())
}

func calc(label string, c calculation.Calculation) *calculation.CalculationDataDefinition {
	return calculation.NewCalculationDataDefinition(label, c)
}

func onDate(cd *calculation.CalculationDataDefinition) *calculation.CalculationDataDefinition {
	cd.AddParameter(evaluation.NewParameter(calculation.OnDateParam, "On Date", evaluation.TypeDate))
	return cd
}

// followUp is a calculation evaluated on onDate over the outcome period.
func followUp(label string, c calculation.Calculation, period int) data.Definition {
	cd := onDate(calc(label, c))
	cd.AddCalculationParameter("outcomePeriod", period)
	return cd
}

// The transfer-in state does not depend on the reporting date.
func ti() data.Definition {
	return calc("tiAndDate", library.IsTransferInAndHasDate)
}
