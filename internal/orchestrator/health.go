package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/versekeeper/versekeeper/pkg/contracts"
	"github.com/versekeeper/versekeeper/pkg/models"
)

// Test runs the selected provider's Test, or the first available AI
// provider's when nothing is selected. It is not part of the fallback path.
func (s *Service) Test(ctx context.Context) bool {
	p, ok := s.testTarget()
	if !ok {
		log.Warn().Msg("Test skipped: no available provider")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	start := time.Now()
	healthy := p.Test(ctx)
	log.Info().
		Str("provider", p.Descriptor().ID).
		Bool("healthy", healthy).
		Dur("latency", time.Since(start)).
		Msg("Provider test")
	return healthy
}

func (s *Service) testTarget() (contracts.ScriptureProvider, bool) {
	if id := s.SelectedProvider(); id != "" {
		if p, ok := s.registry.Get(id); ok && p.IsInitialized() {
			return p, true
		}
	}
	if avail := s.registry.Available(); len(avail) > 0 {
		return avail[0], true
	}
	return nil, false
}

// HealthCheck tests every registered provider concurrently and reports the
// outcome in registry order. Unconfigured providers are reported unhealthy
// without a network call.
func (s *Service) HealthCheck(ctx context.Context) []models.ProviderHealth {
	all := s.registry.All()
	report := make([]models.ProviderHealth, len(all))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range all {
		report[i].ID = p.Descriptor().ID
		if !p.IsInitialized() {
			report[i].Error = p.InitializationError()
			if report[i].Error == "" {
				report[i].Error = "not configured"
			}
			continue
		}
		g.Go(func() error {
			actx, cancel := context.WithTimeout(gctx, s.attemptTimeout)
			defer cancel()
			start := time.Now()
			healthy := p.Test(actx)
			report[i].Healthy = healthy
			report[i].LatencyMs = time.Since(start).Milliseconds()
			if !healthy {
				report[i].Error = "test failed"
			}
			// Failures are reported, not returned.
			return nil
		})
	}
	_ = g.Wait()

	healthy := 0
	for _, h := range report {
		if h.Healthy {
			healthy++
		}
	}
	log.Info().Int("providers", len(report)).Int("healthy", healthy).Msg("Provider health check")
	return report
}
