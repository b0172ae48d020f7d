package reportrun

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("report run not found")

type Repository interface {
	Create(ctx context.Context, run *Run) error
	// Get loads a run. The stored result is attached when withResult is set.
	Get(ctx context.Context, id uuid.UUID, withResult bool) (*Run, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Run, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// Finish stores the final status, row count, error and result of run.
	Finish(ctx context.Context, run *Run) error
	SetExportLocation(ctx context.Context, id uuid.UUID, location string) error
}
