package store

import (
	"context"
	"time"
)

// HealthStatus reports pool connectivity and *pgxpool.Pool.Stat()
// connection counts for the health endpoint.
type HealthStatus struct {
	Status          string        `json:"status"`
	ResponseTime    time.Duration `json:"response_time_ms"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	MaxOpenConns    int           `json:"max_open_conns"`
}

// Health pings the pool and reports its current connection stats, used
// by the /healthz surface.
func (s *Store) Health(ctx context.Context) (*HealthStatus, error) {
	if !s.connected() {
		return &HealthStatus{Status: "unhealthy"}, ErrNotConnected
	}

	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start)}, err
	}

	stat := s.pool.Stat()
	return &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start),
		OpenConnections: int(stat.TotalConns()),
		InUse:           int(stat.AcquiredConns()),
		Idle:            int(stat.IdleConns()),
		MaxOpenConns:    int(stat.MaxConns()),
	}, nil
}
