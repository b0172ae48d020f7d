package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents run store connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// ComponentStatus is the outcome of one Check.
type ComponentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadyHandler runs every check with a shared timeout. It answers 503 when any
// component is unhealthy.
func ReadyHandler(checks map[string]Check) echo.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		code := http.StatusOK
		overall := "healthy"
		components := make([]ComponentStatus, 0, len(names))
		for _, name := range names {
			cs := ComponentStatus{Name: name, Status: "healthy"}
			if err := checks[name](ctx); err != nil {
				cs.Status = "unhealthy"
				cs.Error = err.Error()
				code = http.StatusServiceUnavailable
				overall = "unhealthy"
			}
			components = append(components, cs)
		}

		return c.JSON(code, map[string]interface{}{
			"status":     overall,
			"components": components,
		})
	}
}

// StatsHandler reports the pool statistics.
func StatsHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, GetPoolStats(pool))
	}
}
