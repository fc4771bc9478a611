package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy means every configured component responded.
	Healthy Status = "ok"
	// Degraded means at least one component failed its check.
	Degraded Status = "degraded"
)

// CheckResult is one component's health check outcome.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Report aggregates per-component check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service probes the components the server was started with. The vector
// store is always probed; cache and embedding only when configured.
type Service struct {
	store     StoreChecker
	cache     CachePinger
	embedding EmbeddingChecker
}

// New creates a Service. cache and embedding can be nil when those
// components are not configured.
func New(store StoreChecker, cache CachePinger, embedding EmbeddingChecker) *Service {
	return &Service{store: store, cache: cache, embedding: embedding}
}

// Check probes every configured component and aggregates the outcome.
// One failing component degrades the whole report.
func (s *Service) Check(ctx context.Context) Report {
	type probe struct {
		name string
		run  func(context.Context) error
	}

	probes := []probe{{name: "vector_store", run: s.store.HealthCheck}}
	if s.cache != nil {
		probes = append(probes, probe{name: "cache", run: s.cache.Ping})
	}
	if s.embedding != nil {
		probes = append(probes, probe{name: "embedding", run: s.embedding.HealthCheck})
	}

	report := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(probes))}
	for _, p := range probes {
		if err := p.run(ctx); err != nil {
			report.Checks[p.name] = CheckError
			report.Status = Degraded
		} else {
			report.Checks[p.name] = CheckOK
		}
	}
	return report
}
