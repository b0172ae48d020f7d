// Package report ties report descriptors to the builders that assemble their
// definitions and runs them.
package report

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ehr/cohortreports/internal/reporting/cohort"
	"github.com/ehr/cohortreports/internal/reporting/dataset"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

var (
	ErrReportNotFound = errors.New("report not found")
	ErrInvalidParams  = errors.New("invalid report parameters")
)

// Descriptor identifies a report offered to users.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
}

// Descriptor kinds.
const (
	KindCohort    = "cohort"
	KindEncounter = "encounter"
)

// Definition is a fully built report. Cohort is nil for reports whose datasets
// select their own rows.
type Definition struct {
	Descriptor Descriptor
	Parameters []evaluation.Parameter
	Cohort     *evaluation.Mapped[*cohort.Definition]
	DataSets   []*dataset.Definition
}

// Builder assembles the definition of the reports it is registered for.
type Builder interface {
	Build(desc Descriptor) (*Definition, error)
}

type entry struct {
	desc    Descriptor
	builder Builder
}

// Registry maps report ids to descriptors and builders.
type Registry struct {
	mu      sync.RWMutex
	reports map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{reports: make(map[string]entry)}
}

// Builds registers b as the builder for each descriptor. A repeated id replaces
// the earlier registration.
func (r *Registry) Builds(b Builder, descs ...Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range descs {
		r.reports[d.ID] = entry{desc: d, builder: b}
	}
}

// List returns all descriptors ordered by id.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.reports))
	for _, e := range r.reports {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Descriptor returns the descriptor registered for id.
func (r *Registry) Descriptor(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.reports[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return e.desc, nil
}

// Build returns the definition of report id.
func (r *Registry) Build(id string) (*Definition, error) {
	r.mu.RLock()
	e, ok := r.reports[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	def, err := e.builder.Build(e.desc)
	if err != nil {
		return nil, fmt.Errorf("build report %s: %w", id, err)
	}
	return def, nil
}
