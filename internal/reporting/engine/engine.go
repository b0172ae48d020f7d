// Package engine assembles the evaluator registry, the report catalog and the
// report runner.
package engine

import (
	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/builder/hiv"
	"github.com/ehr/cohortreports/internal/reporting/builder/mchms"
	"github.com/ehr/cohortreports/internal/reporting/calculation"
	"github.com/ehr/cohortreports/internal/reporting/cohort"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/data/art"
	"github.com/ehr/cohortreports/internal/reporting/data/encounter"
	"github.com/ehr/cohortreports/internal/reporting/data/patient"
	"github.com/ehr/cohortreports/internal/reporting/data/person"
	"github.com/ehr/cohortreports/internal/reporting/data/pnc"
	"github.com/ehr/cohortreports/internal/reporting/dataset"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
	"github.com/ehr/cohortreports/internal/reporting/report"
)

type Engine struct {
	Reports *report.Registry
	Data    *data.Service
	Runner  *report.Runner
}

// New wires every evaluator and report builder against wh. persistent may be
// nil.
func New(wh *warehouse.Service, persistent evaluation.Cache, logger zerolog.Logger) *Engine {
	dreg := data.NewRegistry()
	person.Register(dreg, wh)
	patient.Register(dreg, wh)
	encounter.Register(dreg)
	art.Register(dreg, wh)
	pnc.Register(dreg, wh)
	calculation.Register(dreg, wh)

	ds := data.NewService(dreg, logger)
	if persistent != nil {
		ds.SetPersistentCache(persistent)
	}

	reports := report.NewRegistry()
	hiv.Register(reports)
	mchms.Register(reports)

	cs := cohort.NewService(wh, logger)
	return &Engine{
		Reports: reports,
		Data:    ds,
		Runner:  report.NewRunner(reports, cs, dataset.NewEvaluator(ds, cs, logger), logger),
	}
}
