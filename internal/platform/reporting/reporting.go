// Package reporting serves the report catalog over HTTP.
package reporting

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/cohortreports/internal/platform/auth"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
	"github.com/ehr/cohortreports/internal/reporting/report"
)

// Catalog is satisfied by *report.Registry.
type Catalog interface {
	List() []report.Descriptor
	Build(id string) (*report.Definition, error)
}

// DataSetSummary lists the columns a dataset will produce.
type DataSetSummary struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`
}

// ReportDetail describes one report and the inputs it accepts.
type ReportDetail struct {
	report.Descriptor
	Parameters []evaluation.Parameter `json:"parameters"`
	DataSets   []DataSetSummary       `json:"dataSets"`
}

func Describe(def *report.Definition) ReportDetail {
	d := ReportDetail{Descriptor: def.Descriptor, Parameters: def.Parameters}
	for _, ds := range def.DataSets {
		d.DataSets = append(d.DataSets, DataSetSummary{
			Name:    ds.Name,
			Kind:    ds.Kind.String(),
			Columns: ds.Labels(),
		})
	}
	return d
}

type Handler struct {
	catalog Catalog
}

func NewHandler(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RolePhysician, auth.RoleDataClerk))
	g.GET("", h.ListReports)
	g.GET("/:id", h.GetReport)
}

func (h *Handler) ListReports(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.List())
}

func (h *Handler) GetReport(c echo.Context) error {
	def, err := h.catalog.Build(c.Param("id"))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, Describe(def))
}

// HTTPError maps report and evaluation failures onto HTTP status codes.
func HTTPError(err error) *echo.HTTPError {
	var ee *evaluation.EvaluationError
	switch {
	case errors.Is(err, report.ErrReportNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, report.ErrInvalidParams),
		errors.Is(err, evaluation.ErrMissingParameter),
		errors.Is(err, evaluation.ErrUnknownParameter):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "report evaluation timed out")
	case errors.As(err, &ee):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
