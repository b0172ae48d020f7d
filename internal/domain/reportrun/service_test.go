package reportrun

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/platform/events"
	"github.com/ehr/cohortreports/internal/platform/export"
	"github.com/ehr/cohortreports/internal/reporting/dataset"
	"github.com/ehr/cohortreports/internal/reporting/report"
)

// -- Fakes --

type mockRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*Run
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[uuid.UUID]*Run)}
}

func (m *mockRunRepo) Create(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.StartedAt = time.Now()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockRunRepo) Get(_ context.Context, id uuid.UUID, withResult bool) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	if !withResult {
		cp.Result = nil
	}
	return &cp, nil
}

func (m *mockRunRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Run, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Run
	for _, r := range m.runs {
		if f.ReportID != "" && r.ReportID != f.ReportID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		cp := *r
		cp.Result = nil
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRunRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	return nil
}

func (m *mockRunRepo) Finish(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrNotFound
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockRunRepo) SetExportLocation(_ context.Context, id uuid.UUID, loc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.ExportLocation = &loc
	return nil
}

type fakeExecutor struct {
	data *report.Data
	err  error
	seen context.Context
}

func (f *fakeExecutor) Validate(id string, raw map[string]string) error {
	if id != "kenyaemr.hiv.report.art.register" {
		return fmt.Errorf("%w: %s", report.ErrReportNotFound, id)
	}
	if raw["startDate"] == "" {
		return fmt.Errorf("%w: startDate", report.ErrInvalidParams)
	}
	return nil
}

func (f *fakeExecutor) Run(ctx context.Context, _ string, _ map[string]string) (*report.Data, error) {
	f.seen = ctx
	return f.data, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeArchiver struct {
	name string
	body string
}

func (a *fakeArchiver) Archive(_ context.Context, name string, body []byte) (string, error) {
	a.name, a.body = name, string(body)
	return "s3://exports/" + name, nil
}

type fakeNotifier struct{ notices []export.Notice }

func (n *fakeNotifier) Notify(_ context.Context, notice export.Notice) error {
	n.notices = append(n.notices, notice)
	return nil
}

func sampleData() *report.Data {
	return &report.Data{
		Descriptor: report.Descriptor{ID: "kenyaemr.hiv.report.art.register"},
		CohortSize: 2,
		DataSets: []*dataset.DataSet{{
			Name:    "artRegister",
			Columns: []string{"id", "Sex"},
			IDs:     []int{7, 8},
			Rows:    [][]interface{}{{7, "F"}, {8, "M"}},
		}},
	}
}

var period = map[string]string{"startDate": "2024-01-01", "endDate": "2024-03-31"}

func newTestService(exec *fakeExecutor) (*Service, *mockRunRepo, *fakePublisher) {
	repo := newMockRunRepo()
	pub := &fakePublisher{}
	return NewService(repo, exec, pub, zerolog.Nop()), repo, pub
}

// -- Tests --

func TestExecute_Completed(t *testing.T) {
	svc, repo, pub := newTestService(&fakeExecutor{data: sampleData()})

	run, err := svc.Execute(context.Background(), "kenyaemr.hiv.report.art.register", period, "clerk-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != StatusCompleted || run.RowCount != 2 || run.CompletedAt == nil {
		t.Errorf("unexpected run %+v", run)
	}

	stored, _ := repo.Get(context.Background(), run.ID, true)
	if stored.Status != StatusCompleted || stored.Result == nil || stored.RequestedBy != "clerk-1" {
		t.Errorf("unexpected stored run %+v", stored)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeRunCompleted || pub.events[0].RowCount != 2 {
		t.Errorf("unexpected events %+v", pub.events)
	}
}

func TestExecute_FailedRunIsStored(t *testing.T) {
	svc, repo, pub := newTestService(&fakeExecutor{err: errors.New("evaluate lastCd4: table missing")})

	run, err := svc.Execute(context.Background(), "kenyaemr.hiv.report.art.register", period, "")
	if err == nil {
		t.Fatal("expected evaluation error")
	}
	if run == nil || run.Status != StatusFailed || run.Error == nil {
		t.Fatalf("expected failed run, got %+v", run)
	}
	stored, _ := repo.Get(context.Background(), run.ID, false)
	if stored.Status != StatusFailed || !strings.Contains(*stored.Error, "table missing") {
		t.Errorf("unexpected stored run %+v", stored)
	}
	if pub.events[0].Status != string(StatusFailed) || pub.events[0].Error == "" {
		t.Errorf("expected failed event, got %+v", pub.events[0])
	}
}

func TestExecute_InvalidRequestRecordsNothing(t *testing.T) {
	svc, repo, _ := newTestService(&fakeExecutor{data: sampleData()})

	if _, err := svc.Execute(context.Background(), "missing", period, ""); !errors.Is(err, report.ErrReportNotFound) {
		t.Errorf("expected ErrReportNotFound, got %v", err)
	}
	if _, err := svc.Execute(context.Background(), "kenyaemr.hiv.report.art.register", nil, ""); !errors.Is(err, report.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
	if len(repo.runs) != 0 {
		t.Errorf("expected no stored runs, got %d", len(repo.runs))
	}
}

func TestExecute_Timeout(t *testing.T) {
	exec := &fakeExecutor{data: sampleData()}
	svc, _, _ := newTestService(exec)
	svc.SetTimeout(time.Minute)

	if _, err := svc.Execute(context.Background(), "kenyaemr.hiv.report.art.register", period, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := exec.seen.Deadline(); !ok {
		t.Error("expected evaluation context to carry a deadline")
	}
}

func TestSubmit_RunsInBackground(t *testing.T) {
	svc, repo, pub := newTestService(&fakeExecutor{data: sampleData()})

	run, err := svc.Submit(context.Background(), "kenyaemr.hiv.report.art.register", period, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != StatusPending {
		t.Errorf("expected pending run, got %s", run.Status)
	}
	svc.Wait()

	stored, _ := repo.Get(context.Background(), run.ID, false)
	if stored.Status != StatusCompleted {
		t.Errorf("expected completed run after Wait, got %s", stored.Status)
	}
	if len(pub.events) != 1 {
		t.Errorf("expected one event, got %d", len(pub.events))
	}
}

func TestCSV_RequiresCompletedRun(t *testing.T) {
	svc, _, _ := newTestService(&fakeExecutor{err: errors.New("boom")})
	run, _ := svc.Execute(context.Background(), "kenyaemr.hiv.report.art.register", period, "")

	if _, _, err := svc.CSV(context.Background(), run.ID); !errors.Is(err, ErrNotCompleted) {
		t.Errorf("expected ErrNotCompleted, got %v", err)
	}
	if _, _, err := svc.CSV(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExport(t *testing.T) {
	svc, repo, _ := newTestService(&fakeExecutor{data: sampleData()})
	if _, err := svc.Export(context.Background(), uuid.New()); !errors.Is(err, ErrExportDisabled) {
		t.Fatalf("expected ErrExportDisabled, got %v", err)
	}

	arch := &fakeArchiver{}
	notif := &fakeNotifier{}
	svc.SetArchiver(arch)
	svc.SetNotifier(notif)

	run, _ := svc.Execute(context.Background(), "kenyaemr.hiv.report.art.register", period, "")
	exported, err := svc.Export(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantName := "kenyaemr.hiv.report.art.register_2024-01-01_2024-03-31_" + run.ID.String() + ".csv"
	if arch.name != wantName {
		t.Errorf("expected %s, got %s", wantName, arch.name)
	}
	if arch.body != "id,Sex\n7,F\n8,M\n" {
		t.Errorf("unexpected CSV %q", arch.body)
	}
	if exported.ExportLocation == nil || *exported.ExportLocation != "s3://exports/"+wantName {
		t.Errorf("unexpected location %v", exported.ExportLocation)
	}
	stored, _ := repo.Get(context.Background(), run.ID, false)
	if stored.ExportLocation == nil {
		t.Error("expected export location to be stored")
	}
	if len(notif.notices) != 1 || notif.notices[0].RowCount != 2 {
		t.Errorf("unexpected notices %+v", notif.notices)
	}
}
