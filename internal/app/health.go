// Package app provides application use cases.
package app

import "context"

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthUsecase defines the health check use case.
type HealthUsecase interface {
	Handle(ctx context.Context) (HealthResult, error)
}

// HealthResult represents the health check response.
type HealthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage"`
}

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService implements HealthUsecase.
type HealthService struct {
	Version string
	Store   Pinger
}

// Handle returns the current health status. A failed storage ping degrades
// the status; it is not an error.
func (s HealthService) Handle(ctx context.Context) (HealthResult, error) {
	res := HealthResult{
		Status:  StatusOK,
		Version: s.Version,
		Storage: StatusOK,
	}
	if s.Store != nil {
		if err := s.Store.Ping(ctx); err != nil {
			res.Status = StatusDegraded
			res.Storage = "unavailable"
		}
	}
	return res, nil
}
