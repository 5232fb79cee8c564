// Package health aggregates component checks into one report for the
// health endpoint and the screening facade.
package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the primary backend is down but the
	// fallback path can still serve.
	Degraded Status = "degraded"
	// Unhealthy indicates no search capability at all.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	fallback  FallbackReadiness
}

// New creates a Service. embedding and fallback can be nil.
func New(db DBPinger, embedding EmbeddingChecker, fallback FallbackReadiness) *Service {
	return &Service{db: db, embedding: embedding, fallback: fallback}
}

// Check runs health checks against all components. The backend being
// down degrades the service; it only becomes unhealthy when the
// fallback index is empty too.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	backendUp := true
	if err := s.db.Ping(ctx); err != nil {
		checks["backend"] = CheckError
		backendUp = false
	} else {
		checks["backend"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	fallbackReady := false
	if s.fallback != nil {
		if s.fallback.Len() > 0 {
			checks["fallback_index"] = CheckOK
			fallbackReady = true
		} else {
			checks["fallback_index"] = CheckError
		}
	}

	switch {
	case backendUp && checks["embedding"] != CheckError:
		return Report{Status: Healthy, Checks: checks}
	case backendUp || fallbackReady:
		return Report{Status: Degraded, Checks: checks}
	default:
		return Report{Status: Unhealthy, Checks: checks}
	}
}
