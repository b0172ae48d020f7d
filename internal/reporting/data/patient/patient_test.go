package patient

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
	"github.com/ehr/cohortreports/internal/reporting/metadata"
)

func newService(t *testing.T) (*data.Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	reg := data.NewRegistry()
	Register(reg, warehouse.NewService(db))
	return data.NewService(reg, zerolog.Nop()), mock
}

func TestPatientId_EchoesBaseCohort(t *testing.T) {
	svc, mock := newService(t)
	ec := evaluation.NewContext()
	ec.BaseCohort = []int{4, 8, 15}

	res, err := svc.Evaluate(context.Background(), NewPatientIdDataDefinition(), ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Data) != 3 || res.Data[8] != 8 {
		t.Errorf("unexpected data %v", res.Data)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected no warehouse query: %v", err)
	}
}

func TestPatientId_PersistentCacheFollowsBaseCohort(t *testing.T) {
	svc, mock := newService(t)
	svc.SetPersistentCache(evaluation.NewMemoryCache())

	for _, cohort := range [][]int{{1, 2}, {3, 4}} {
		ec := evaluation.NewContext()
		ec.BaseCohort = cohort
		res, err := svc.Evaluate(context.Background(), NewPatientIdDataDefinition(), ec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Data) != len(cohort) {
			t.Fatalf("cohort %v: unexpected data %v", cohort, res.Data)
		}
		for _, id := range cohort {
			if res.Data[id] != id {
				t.Errorf("cohort %v: expected id %d, got %v", cohort, id, res.Data[id])
			}
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected no warehouse query: %v", err)
	}
}

func TestPatientIdentifier_LastPreferredWins(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery(`from patient_identifier pi`).
		WithArgs(metadata.UniquePatientNumber).
		WillReturnRows(sqlmock.NewRows([]string{"patient_id", "identifier"}).
			AddRow(int64(1), []byte("OLD-1")).
			AddRow(int64(1), []byte("1234500001")))

	def := NewPatientIdentifierDataDefinition("UPN", metadata.UniquePatientNumber)
	res, err := svc.Evaluate(context.Background(), def, evaluation.NewContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Data[1] != "1234500001" {
		t.Errorf("expected preferred identifier, got %v", res.Data[1])
	}
}

func TestPopulationType(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery(`from kenyaemr_etl\.etl_hts_test t`).
		WillReturnRows(sqlmock.NewRows([]string{"patient_id", "population_type"}).
			AddRow(int64(2), []byte("General Population")))

	res, err := svc.Evaluate(context.Background(), NewPopulationTypeDataDefinition(), evaluation.NewContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Data[2] != "General Population" {
		t.Errorf("unexpected value %v", res.Data[2])
	}
}
