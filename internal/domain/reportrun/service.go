package reportrun

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/platform/events"
	"github.com/ehr/cohortreports/internal/platform/export"
	"github.com/ehr/cohortreports/internal/reporting/report"
)

var (
	ErrNotCompleted   = errors.New("report run has not completed")
	ErrExportDisabled = errors.New("export archive is not configured")
)

// Executor is satisfied by *report.Runner.
type Executor interface {
	Validate(id string, raw map[string]string) error
	Run(ctx context.Context, id string, raw map[string]string) (*report.Data, error)
}

type Service struct {
	runs      Repository
	exec      Executor
	publisher events.Publisher
	archiver  export.Archiver
	notifier  export.Notifier
	timeout   time.Duration
	now       func() time.Time
	wg        sync.WaitGroup
	logger    zerolog.Logger
}

func NewService(runs Repository, exec Executor, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		runs:      runs,
		exec:      exec,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("component", "reportrun").Logger(),
	}
}

// SetArchiver enables Export.
func (s *Service) SetArchiver(a export.Archiver) { s.archiver = a }

// SetNotifier announces each archived export.
func (s *Service) SetNotifier(n export.Notifier) { s.notifier = n }

// SetTimeout bounds each evaluation. Zero means no limit beyond the caller's.
func (s *Service) SetTimeout(d time.Duration) { s.timeout = d }

// Execute records a run, evaluates it and returns the finished run. A failed
// evaluation is stored and returned together with its error.
func (s *Service) Execute(ctx context.Context, reportID string, params map[string]string, requestedBy string) (*Run, error) {
	run, err := s.start(ctx, reportID, params, requestedBy, StatusRunning)
	if err != nil {
		return nil, err
	}
	return run, s.evaluate(ctx, run)
}

// Submit records a pending run and evaluates it in the background. Wait blocks
// until every submitted run has finished.
func (s *Service) Submit(ctx context.Context, reportID string, params map[string]string, requestedBy string) (*Run, error) {
	run, err := s.start(ctx, reportID, params, requestedBy, StatusPending)
	if err != nil {
		return nil, err
	}
	snapshot := *run

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg := context.WithoutCancel(ctx)
		if err := s.runs.UpdateStatus(bg, run.ID, StatusRunning); err != nil {
			s.logger.Error().Err(err).Str("run_id", run.ID.String()).Msg("mark run running")
		}
		run.Status = StatusRunning
		s.evaluate(bg, run)
	}()
	return &snapshot, nil
}

func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) start(ctx context.Context, reportID string, params map[string]string, requestedBy string, status Status) (*Run, error) {
	if params == nil {
		params = map[string]string{}
	}
	if err := s.exec.Validate(reportID, params); err != nil {
		return nil, err
	}
	run := &Run{
		ID:          uuid.New(),
		ReportID:    reportID,
		Parameters:  params,
		Status:      status,
		RequestedBy: requestedBy,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create report run: %w", err)
	}
	return run, nil
}

func (s *Service) evaluate(ctx context.Context, run *Run) error {
	evalCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	data, runErr := s.exec.Run(evalCtx, run.ReportID, run.Parameters)
	if runErr != nil {
		run.Fail(runErr, s.now())
	} else {
		run.Complete(data, s.now())
	}

	// The evaluation context may have expired; the outcome must still be stored.
	store := context.WithoutCancel(ctx)
	if err := s.runs.Finish(store, run); err != nil {
		return fmt.Errorf("store report run %s: %w", run.ID, errors.Join(err, runErr))
	}

	log := s.logger.Info()
	if runErr != nil {
		log = s.logger.Warn().Err(runErr)
	}
	log.Str("run_id", run.ID.String()).
		Str("report", run.ReportID).
		Str("status", string(run.Status)).
		Int("rows", run.RowCount).
		Msg("report run finished")

	s.publish(store, run)
	return runErr
}

func (s *Service) publish(ctx context.Context, run *Run) {
	evt := events.Event{
		Type:        events.TypeRunCompleted,
		RunID:       run.ID.String(),
		ReportID:    run.ReportID,
		Status:      string(run.Status),
		RowCount:    run.RowCount,
		RequestedBy: run.RequestedBy,
	}
	if run.Error != nil {
		evt.Error = *run.Error
	}
	if run.CompletedAt != nil {
		evt.OccurredAt = *run.CompletedAt
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error().Err(err).Str("run_id", evt.RunID).Msg("publish run event")
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, withResult bool) (*Run, error) {
	return s.runs.Get(ctx, id, withResult)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Run, int, error) {
	return s.runs.List(ctx, f, limit, offset)
}

// CSV renders the result of a completed run.
func (s *Service) CSV(ctx context.Context, id uuid.UUID) (*Run, []byte, error) {
	run, err := s.runs.Get(ctx, id, true)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != StatusCompleted || run.Result == nil {
		return run, nil, fmt.Errorf("%w: status %s", ErrNotCompleted, run.Status)
	}
	body, err := export.RenderCSV(run.Result.DataSets...)
	if err != nil {
		return run, nil, fmt.Errorf("render csv: %w", err)
	}
	return run, body, nil
}

// Export archives the CSV of a completed run, records where it went and
// notifies the export queue when one is configured.
func (s *Service) Export(ctx context.Context, id uuid.UUID) (*Run, error) {
	if s.archiver == nil {
		return nil, ErrExportDisabled
	}
	run, body, err := s.CSV(ctx, id)
	if err != nil {
		return run, err
	}

	loc, err := s.archiver.Archive(ctx, FileName(run), body)
	if err != nil {
		return run, fmt.Errorf("archive run %s: %w", id, err)
	}
	if err := s.runs.SetExportLocation(ctx, id, loc); err != nil {
		return run, fmt.Errorf("record export location: %w", err)
	}
	run.ExportLocation = &loc

	if s.notifier != nil {
		notice := export.Notice{
			RunID:      run.ID.String(),
			ReportID:   run.ReportID,
			Location:   loc,
			RowCount:   run.RowCount,
			ExportedAt: s.now(),
		}
		if err := s.notifier.Notify(ctx, notice); err != nil {
			s.logger.Error().Err(err).Str("run_id", notice.RunID).Msg("notify export")
		}
	}
	return run, nil
}

// FileName names the export of run after its report and period.
func FileName(run *Run) string {
	name := run.ReportID
	if start, end := run.Parameters["startDate"], run.Parameters["endDate"]; start != "" && end != "" {
		name += "_" + start + "_" + end
	}
	return name + "_" + run.ID.String() + ".csv"
}
