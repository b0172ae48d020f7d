package reportrun

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/cohortreports/internal/platform/auth"
)

func newTestHandler(exec *fakeExecutor) (*Handler, *Service, *echo.Echo) {
	svc, _, _ := newTestService(exec)
	h := NewHandler(svc)
	e := echo.New()
	api := e.Group("/api/v1", auth.DevAuthMiddleware())
	h.RegisterRoutes(api)
	return h, svc, e
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_EvaluateJSONBody(t *testing.T) {
	_, _, e := newTestHandler(&fakeExecutor{data: sampleData()})

	rec := serve(e, http.MethodPost, "/api/v1/reports/kenyaemr.hiv.report.art.register/evaluate",
		`{"startDate":"2024-01-01","endDate":"2024-03-31"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var run Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Status != StatusCompleted || run.RequestedBy != "dev-user" || run.Result == nil {
		t.Errorf("unexpected run %+v", run)
	}
	if run.Parameters["endDate"] != "2024-03-31" || len(run.Parameters) != 2 {
		t.Errorf("unexpected parameters %v", run.Parameters)
	}
}

func TestHandler_EvaluateQueryParams(t *testing.T) {
	_, _, e := newTestHandler(&fakeExecutor{data: sampleData()})
	rec := serve(e, http.MethodPost,
		"/api/v1/reports/kenyaemr.hiv.report.art.register/evaluate?startDate=2024-01-01&endDate=2024-03-31", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_EvaluateAsync(t *testing.T) {
	_, svc, e := newTestHandler(&fakeExecutor{data: sampleData()})
	rec := serve(e, http.MethodPost,
		"/api/v1/reports/kenyaemr.hiv.report.art.register/evaluate?async=true&startDate=2024-01-01&endDate=2024-03-31", "")
	svc.Wait()
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_EvaluateErrors(t *testing.T) {
	_, _, e := newTestHandler(&fakeExecutor{err: errors.New("evaluate lastCd4: boom")})

	tests := []struct {
		target string
		body   string
		want   int
	}{
		{"/api/v1/reports/missing/evaluate", `{"startDate":"2024-01-01"}`, http.StatusNotFound},
		{"/api/v1/reports/kenyaemr.hiv.report.art.register/evaluate", `{"endDate":"2024-01-01"}`, http.StatusBadRequest},
		{"/api/v1/reports/kenyaemr.hiv.report.art.register/evaluate", `not json`, http.StatusBadRequest},
		{"/api/v1/reports/kenyaemr.hiv.report.art.register/evaluate", `{"startDate":"2024-01-01"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := serve(e, http.MethodPost, tt.target, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.target, tt.body, tt.want, rec.Code)
		}
	}
}

func TestHandler_GetListAndCSV(t *testing.T) {
	_, svc, e := newTestHandler(&fakeExecutor{data: sampleData()})
	run, err := svc.Execute(context.Background(), "kenyaemr.hiv.report.art.register", period, "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	rec := serve(e, http.MethodGet, "/api/v1/report-runs/"+run.ID.String()+"?result=false", "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), `"result"`) {
		t.Errorf("expected run without result, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(e, http.MethodGet, "/api/v1/report-runs?report=kenyaemr.hiv.report.art.register", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("unexpected list response %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(e, http.MethodGet, "/api/v1/report-runs/"+run.ID.String()+"/csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "id,Sex\n7,F\n8,M\n" {
		t.Errorf("unexpected CSV %q", rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "attachment") {
		t.Errorf("expected attachment disposition")
	}

	if rec := serve(e, http.MethodGet, "/api/v1/report-runs/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/v1/report-runs/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_ExportDisabled(t *testing.T) {
	_, svc, e := newTestHandler(&fakeExecutor{data: sampleData()})
	run, _ := svc.Execute(context.Background(), "kenyaemr.hiv.report.art.register", period, "")

	rec := serve(e, http.MethodPost, "/api/v1/report-runs/"+run.ID.String()+"/export", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
