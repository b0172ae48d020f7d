package reportrun

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/cohortreports/internal/platform/auth"
	"github.com/ehr/cohortreports/internal/platform/export"
	"github.com/ehr/cohortreports/internal/platform/reporting"
	"github.com/ehr/cohortreports/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole(auth.RolePhysician, auth.RoleDataClerk)

	api.POST("/reports/:id/evaluate", h.Evaluate, role)

	runs := api.Group("/report-runs", role)
	runs.GET("", h.ListRuns)
	runs.GET("/:id", h.GetRun)
	runs.GET("/:id/csv", h.DownloadCSV)
	runs.POST("/:id/export", h.ExportRun, auth.RequireRole(auth.RoleDataClerk))
}

// Evaluate runs a report. Parameters come from a JSON object body or, when
// the body is empty, from the query string. ?async=true answers 202 with the
// pending run.
func (h *Handler) Evaluate(c echo.Context) error {
	params := map[string]string{}
	if c.Request().ContentLength > 0 {
		if err := (&echo.DefaultBinder{}).BindBody(c, &params); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	} else {
		for k, v := range c.QueryParams() {
			if k != "async" && len(v) > 0 {
				params[k] = v[0]
			}
		}
	}

	ctx := c.Request().Context()
	user := auth.UserIDFromContext(ctx)
	reportID := c.Param("id")

	if async, _ := strconv.ParseBool(c.QueryParam("async")); async {
		run, err := h.svc.Submit(ctx, reportID, params, user)
		if err != nil {
			return reporting.HTTPError(err)
		}
		return c.JSON(http.StatusAccepted, run)
	}

	run, err := h.svc.Execute(ctx, reportID, params, user)
	if run == nil {
		return reporting.HTTPError(err)
	}
	if err != nil {
		// The failed run is stored; return it with the mapped status.
		return c.JSON(reporting.HTTPError(err).Code, run)
	}
	return c.JSON(http.StatusCreated, run)
}

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		ReportID:    c.QueryParam("report"),
		Status:      Status(c.QueryParam("status")),
		RequestedBy: c.QueryParam("requested_by"),
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Run{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	withResult := c.QueryParam("result") != "false"
	run, err := h.svc.Get(c.Request().Context(), id, withResult)
	if err != nil {
		return runError(err)
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) DownloadCSV(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	run, body, err := h.svc.CSV(c.Request().Context(), id)
	if err != nil {
		return runError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", FileName(run)))
	return c.Blob(http.StatusOK, export.ContentTypeCSV, body)
}

func (h *Handler) ExportRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	run, err := h.svc.Export(c.Request().Context(), id)
	if err != nil {
		return runError(err)
	}
	return c.JSON(http.StatusOK, run)
}

func runError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "report run not found")
	case errors.Is(err, ErrNotCompleted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrExportDisabled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
