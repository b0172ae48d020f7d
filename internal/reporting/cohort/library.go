package cohort

import (
	"fmt"

	"github.com/ehr/cohortreports/internal/reporting/calculation/library"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

func periodParams() []evaluation.Parameter {
	return []evaluation.Parameter{
		evaluation.NewParameter("startDate", "Start Date", evaluation.TypeDate),
		evaluation.NewParameter("endDate", "End Date", evaluation.TypeDate),
	}
}

const startedArtBetweenDates = `select a.patient_id
from (` + library.ArtStart + `) a
where a.art_start between date(:startDate) and date(:endDate)
order by a.patient_id`

// ArtCohortLibrary builds the HIV treatment cohorts.
type ArtCohortLibrary struct{}

// StartedArtBetweenDates is every patient whose ART start date falls in
// [startDate, endDate], transfer-ins included.
func (ArtCohortLibrary) StartedArtBetweenDates() *Definition {
	return &Definition{
		Label:       "startedArtBetweenDates",
		Description: "Started ART between dates",
		SQL:         startedArtBetweenDates,
		Params:      periodParams(),
	}
}

// NetCohortMonthsBetweenDatesGivenMonths is the cohort followed for period
// months in the cohort analysis: patients starting ART in [startDate, endDate].
// Outcomes within the follow-up period, including transfer out and death, are
// reported per patient rather than removing members.
func (l ArtCohortLibrary) NetCohortMonthsBetweenDatesGivenMonths(period int) *Definition {
	cd := l.StartedArtBetweenDates()
	cd.Label = fmt.Sprintf("netCohort%dMonths", period)
	cd.Description = fmt.Sprintf("Net cohort followed for %d months", period)
	cd.CalculationParams = map[string]interface{}{"outcomePeriod": period}
	return cd
}

const pncVisitsBetweenDates = `select v.encounter_id
from kenyaemr_etl.etl_mch_postnatal_visit v
where date(v.visit_date) between date(:startDate) and date(:endDate)
order by v.visit_date, v.encounter_id`

// MchEncounterLibrary builds maternal and child health encounter queries.
type MchEncounterLibrary struct{}

// PNCVisitsBetweenDates is every postnatal visit in [startDate, endDate].
func (MchEncounterLibrary) PNCVisitsBetweenDates() *Definition {
	return &Definition{
		Label:       "pncVisitsBetweenDates",
		Description: "PNC visits between dates",
		SQL:         pncVisitsBetweenDates,
		Params:      periodParams(),
	}
}
