package reportrun

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/cohortreports/internal/reporting/report"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run maps to the report_run table. Result is loaded from report_run_result
// only when asked for.
type Run struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	ReportID       string            `db:"report_id" json:"report_id"`
	Parameters     map[string]string `db:"parameters" json:"parameters"`
	Status         Status            `db:"status" json:"status"`
	RequestedBy    string            `db:"requested_by" json:"requested_by"`
	RowCount       int               `db:"row_count" json:"row_count"`
	Error          *string           `db:"error" json:"error,omitempty"`
	ExportLocation *string           `db:"export_location" json:"export_location,omitempty"`
	StartedAt      time.Time         `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	Result         *report.Data      `db:"-" json:"result,omitempty"`
}

// Done reports whether the run has reached a final status.
func (r *Run) Done() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Complete records a successful evaluation.
func (r *Run) Complete(data *report.Data, at time.Time) {
	r.Status = StatusCompleted
	r.Result = data
	r.RowCount = data.RowCount()
	r.Error = nil
	r.CompletedAt = &at
}

// Fail records a failed evaluation.
func (r *Run) Fail(err error, at time.Time) {
	msg := err.Error()
	r.Status = StatusFailed
	r.Error = &msg
	r.CompletedAt = &at
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	ReportID    string
	Status      Status
	RequestedBy string
}
