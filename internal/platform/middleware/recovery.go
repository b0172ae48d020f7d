package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/cohortreports/internal/platform/metrics"
)

// Recovery turns a handler panic into a 500 whose message carries the request
// id. http.ErrAbortHandler is re-raised.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				cause, ok := r.(error)
				if !ok {
					cause = fmt.Errorf("%v", r)
				}
				route := c.Path()
				if route == "" {
					route = "unmatched"
				}
				metrics.RecordPanic(route)

				rid, _ := c.Get("request_id").(string)
				evt := logger.Error().
					Err(cause).
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("route", route).
					Bytes("stack", debug.Stack())
				if id := c.Param("id"); id != "" {
					evt = evt.Str("target", id)
				}
				if uid, ok := c.Get("user_id").(string); ok {
					evt = evt.Str("user_id", uid)
				}
				evt.Msg("panic recovered")

				he := echo.NewHTTPError(http.StatusInternalServerError, panicMessage(rid))
				err = he.SetInternal(errors.Join(errPanic, cause))
			}()
			return next(c)
		}
	}
}

var errPanic = errors.New("handler panicked")

func panicMessage(requestID string) string {
	if requestID == "" {
		return "internal server error"
	}
	return "internal server error (request " + requestID + ")"
}
