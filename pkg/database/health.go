package database

import (
	"context"
	"database/sql"
	"time"
)

// PoolStats is a snapshot of the connection pool.
type PoolStats struct {
	Open       int   `json:"open"`
	InUse      int   `json:"in_use"`
	Idle       int   `json:"idle"`
	MaxOpen    int   `json:"max_open"`
	WaitCount  int64 `json:"wait_count"`
	WaitMillis int64 `json:"wait_ms"`
}

// HealthStatus reports connectivity and the pool snapshot taken right after
// a successful ping.
type HealthStatus struct {
	Status     string    `json:"status"`
	PingMillis int64     `json:"ping_ms"`
	Pool       PoolStats `json:"pool"`
}

// Health pings the database and reports latency plus pool statistics. On a
// failed ping the returned status still carries the measured latency so
// callers can include it in the 503 body.
func Health(ctx context.Context, db *sql.DB) (*HealthStatus, error) {
	start := time.Now()
	err := db.PingContext(ctx)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return &HealthStatus{Status: "unhealthy", PingMillis: elapsed}, err
	}

	s := db.Stats()
	return &HealthStatus{
		Status:     "healthy",
		PingMillis: elapsed,
		Pool: PoolStats{
			Open:       s.OpenConnections,
			InUse:      s.InUse,
			Idle:       s.Idle,
			MaxOpen:    s.MaxOpenConnections,
			WaitCount:  s.WaitCount,
			WaitMillis: s.WaitDuration.Milliseconds(),
		},
	}, nil
}
