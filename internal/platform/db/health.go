package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const pingTimeout = 5 * time.Second

// Pool states reported by /health/db.
const (
	StateHealthy   = "healthy"
	StateSaturated = "saturated"
	StateDown      = "unhealthy"
)

// PoolReport is the connection pool snapshot served by /health/db.
type PoolReport struct {
	State        string `json:"status"`
	Error        string `json:"error,omitempty"`
	Open         int32  `json:"open"`
	Idle         int32  `json:"idle"`
	InUse        int32  `json:"in_use"`
	Limit        int32  `json:"limit"`
	Acquisitions int64  `json:"acquisitions"`
	WaitTime     string `json:"wait_time"`
}

// Ping checks the pool with a short deadline.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return pool.Ping(ctx)
}

// Report pings the pool and snapshots its counters.
func Report(ctx context.Context, pool *pgxpool.Pool) PoolReport {
	err := Ping(ctx, pool)
	stat := pool.Stat()
	r := PoolReport{
		Open:         stat.TotalConns(),
		Idle:         stat.IdleConns(),
		InUse:        stat.AcquiredConns(),
		Limit:        stat.MaxConns(),
		Acquisitions: stat.AcquireCount(),
		WaitTime:     stat.AcquireDuration().String(),
	}
	r.State = poolState(r.InUse, r.Limit, err)
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// poolState is saturated when every connection is checked out. A saturated
// pool still serves requests, so it is not reported as unavailable.
func poolState(inUse, limit int32, pingErr error) string {
	switch {
	case pingErr != nil:
		return StateDown
	case limit > 0 && inUse >= limit:
		return StateSaturated
	default:
		return StateHealthy
	}
}

// HealthHandler serves /health/db.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := Report(c.Request().Context(), pool)
		status := http.StatusOK
		if r.State == StateDown {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, r)
	}
}
