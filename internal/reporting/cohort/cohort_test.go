package cohort

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

func newService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(warehouse.NewService(db), zerolog.Nop()), mock
}

func periodContext(start, end time.Time) *evaluation.Context {
	ec := evaluation.NewContext()
	ec.SetParameterValue("startDate", start)
	ec.SetParameterValue("endDate", end)
	return ec
}

func TestNetCohort_QueriesArtStartWindow(t *testing.T) {
	svc, mock := newService(t)
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2015, 3, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`where a\.art_start between date\(\?\) and date\(\?\)`).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"patient_id"}).
			AddRow(int64(9)).AddRow(int64(3)).AddRow(int64(9)))

	def := ArtCohortLibrary{}.NetCohortMonthsBetweenDatesGivenMonths(12)
	ec := periodContext(start, end)
	ids, err := svc.Evaluate(context.Background(), def, ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 9 || ids[1] != 3 {
		t.Errorf("expected distinct ids in query order, got %v", ids)
	}

	again, err := svc.Evaluate(context.Background(), def, ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 2 || again[0] != 9 {
		t.Errorf("expected cached ids in order, got %v", again)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNetCohort_PeriodInName(t *testing.T) {
	lib := ArtCohortLibrary{}
	if lib.NetCohortMonthsBetweenDatesGivenMonths(6).Name() == lib.NetCohortMonthsBetweenDatesGivenMonths(24).Name() {
		t.Error("expected the period to distinguish cohorts")
	}
}

func TestEvaluate_MissingParameter(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Evaluate(context.Background(), ArtCohortLibrary{}.StartedArtBetweenDates(), evaluation.NewContext())
	if !errors.Is(err, evaluation.ErrMissingParameter) {
		t.Fatalf("expected ErrMissingParameter, got %v", err)
	}
}

func TestPNCVisits(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery(`from kenyaemr_etl\.etl_mch_postnatal_visit v`).
		WillReturnRows(sqlmock.NewRows([]string{"encounter_id"}).AddRow(int64(100)).AddRow(int64(101)))

	ids, err := svc.Evaluate(context.Background(), MchEncounterLibrary{}.PNCVisitsBetweenDates(),
		periodContext(time.Now().AddDate(0, -1, 0), time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 encounters, got %v", ids)
	}
}
