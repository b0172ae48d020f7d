// Package dataset defines tabular report sections and evaluates them row by row.
package dataset

import (
	"errors"
	"fmt"

	"github.com/ehr/cohortreports/internal/reporting/cohort"
	"github.com/ehr/cohortreports/internal/reporting/convert"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

var ErrDuplicateColumn = errors.New("duplicate column label")

// Column is one labelled, mapped and converted definition.
type Column struct {
	Label      string
	Definition evaluation.Mapped[data.Definition]
	Converters []convert.Converter
}

// Definition lists the columns of a dataset. Patient datasets have one row per
// member of the report cohort; encounter datasets have one row per encounter
// returned by the row query.
type Definition struct {
	Name     string
	Kind     data.Kind
	Columns  []Column
	RowQuery *evaluation.Mapped[*cohort.Definition]

	errs []error
}

func NewPatientDataSetDefinition(name string) *Definition {
	return &Definition{Name: name, Kind: data.KindPatient}
}

// NewEncounterDataSetDefinition creates an encounter dataset whose rows come
// from query mapped with mappings.
func NewEncounterDataSetDefinition(name string, query *cohort.Definition, mappings string) *Definition {
	d := &Definition{Name: name, Kind: data.KindEncounter}
	m, err := evaluation.Map(query, mappings)
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("row query %s: %w", query.Name(), err))
		return d
	}
	d.RowQuery = &m
	return d
}

// AddColumn appends a column. Invalid mappings and duplicate labels are
// collected and reported by Err.
func (d *Definition) AddColumn(label string, def data.Definition, mappings string, converters ...convert.Converter) {
	for _, c := range d.Columns {
		if c.Label == label {
			d.errs = append(d.errs, fmt.Errorf("%w: %s", ErrDuplicateColumn, label))
			return
		}
	}
	m, err := evaluation.Map(def, mappings)
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("column %s: %w", label, err))
		return
	}
	d.Columns = append(d.Columns, Column{Label: label, Definition: m, Converters: converters})
}

// Err returns the problems found while building the definition.
func (d *Definition) Err() error {
	return errors.Join(d.errs...)
}

// Labels returns the column labels in order.
func (d *Definition) Labels() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Label
	}
	return out
}

// DataSet is an evaluated dataset. Rows follow IDs.
type DataSet struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	IDs     []int           `json:"ids"`
	Rows    [][]interface{} `json:"rows"`
}
