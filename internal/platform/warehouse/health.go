package warehouse

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// PoolStats represents warehouse connection pool statistics.
type PoolStats struct {
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	MaxOpen         int    `json:"max_open"`
	WaitCount       int64  `json:"wait_count"`
	WaitDuration    string `json:"wait_duration"`
}

// GetPoolStats converts sql.DBStats into PoolStats.
func GetPoolStats(s sql.DBStats) *PoolStats {
	return &PoolStats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
		MaxOpen:         s.MaxOpenConnections,
		WaitCount:       s.WaitCount,
		WaitDuration:    s.WaitDuration.String(),
	}
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// HealthHandler returns a handler for the warehouse health check endpoint.
func HealthHandler(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := db.PingContext(ctx)
		stats := GetPoolStats(db.Stats())

		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
