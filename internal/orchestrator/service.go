// Package orchestrator implements the VerseKeeper orchestrating facade.
//
// The facade configures every registered provider from one settings batch,
// then serves five operations (scripture retrieval, key takeaway, scoring,
// takeaway validation and description search) by walking the available
// providers in priority order. Each attempt is bounded by a per-attempt
// timeout; a failure of any kind moves on to the next candidate. Only one
// attempt is in flight per call.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/versekeeper/versekeeper/internal/registry"
	"github.com/versekeeper/versekeeper/pkg/contracts"
	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

// DefaultAttemptTimeout bounds a single provider attempt.
const DefaultAttemptTimeout = 10 * time.Second

// Operation names used in logs and spans.
const (
	OpFetchScripture = "fetch_scripture"
	OpKeyTakeaway    = "key_takeaway"
	OpScore          = "score"
	OpValidate       = "validate_takeaway"
	OpSearch         = "search_verses"
)

var tracer = otel.Tracer("versekeeper/orchestrator")

// Option configures a Service.
type Option func(*Service)

// WithAttemptTimeout overrides DefaultAttemptTimeout. Non-positive values are ignored.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.attemptTimeout = d
		}
	}
}

// WithScriptureCache memoizes successful scripture retrievals keyed by
// reference and translation, keeping at most size entries.
func WithScriptureCache(size int) Option {
	return func(s *Service) {
		if size <= 0 {
			return
		}
		c, err := lru.New[string, []models.ScriptureVerse](size)
		if err != nil {
			log.Warn().Err(err).Int("size", size).Msg("Scripture cache disabled")
			return
		}
		s.scriptureCache = c
	}
}

// Service is the orchestrating facade. Safe for concurrent use.
type Service struct {
	registry       *registry.Registry
	attemptTimeout time.Duration
	scriptureCache *lru.Cache[string, []models.ScriptureVerse]

	mu          sync.RWMutex
	selected    string
	initialized bool
	initErr     string

	// Latency tracking: provider id → rolling avg ms
	latencyMu sync.RWMutex
	latencies map[string]int64
}

// New creates a facade over reg.
func New(reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		registry:       reg,
		attemptTimeout: DefaultAttemptTimeout,
		latencies:      make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry the facade reads from.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// AttemptTimeout returns the per-attempt bound.
func (s *Service) AttemptTimeout() time.Duration {
	return s.attemptTimeout
}

// ── Configuration ───────────────────────────────────────────

// Configure applies settings to every registered provider. A provider with
// no entry gets a disabled config, so nothing from an earlier call survives.
// Returns true when at least one provider is ready.
func (s *Service) Configure(settings models.AggregateSettings) bool {
	var (
		ready    []string
		failures []string
	)
	for _, p := range s.registry.All() {
		id := p.Descriptor().ID
		cfg, ok := settings.Configs[id]
		if !ok {
			cfg = models.ProviderConfig{ID: id, Enabled: false}
		}
		if cfg.ID == "" {
			cfg.ID = id
		}
		if p.Configure(cfg) {
			ready = append(ready, id)
			continue
		}
		if ok && cfg.Enabled {
			failures = append(failures, fmt.Sprintf("%s: %s", id, p.InitializationError()))
		}
	}

	// Scripture caches belong to the previous provider set.
	if s.scriptureCache != nil {
		s.scriptureCache.Purge()
	}

	s.mu.Lock()
	s.selected = strings.TrimSpace(settings.SelectedProvider)
	s.initialized = len(ready) > 0
	switch {
	case s.initialized:
		s.initErr = ""
	case len(failures) > 0:
		s.initErr = "no provider configured: " + strings.Join(failures, "; ")
	default:
		s.initErr = "no provider configured"
	}
	initialized, initErr, selected := s.initialized, s.initErr, s.selected
	s.mu.Unlock()

	if initialized {
		log.Info().Strs("ready", ready).Str("selected", selected).Msg("Providers configured")
	} else {
		log.Warn().Str("reason", initErr).Msg("No provider configured")
	}
	return initialized
}

// IsInitialized reports whether the last Configure left at least one provider ready.
func (s *Service) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// InitializationError is empty when IsInitialized is true.
func (s *Service) InitializationError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initErr
}

// SelectedProvider returns the preferred provider id from the last Configure.
func (s *Service) SelectedProvider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Stats forwards the registry counters.
func (s *Service) Stats() models.RegistryStats {
	return s.registry.Stats()
}

// ── Operations ──────────────────────────────────────────────

// FetchScripture retrieves the verses of ref. Scripture-only providers are
// tried before AI providers.
func (s *Service) FetchScripture(ctx context.Context, ref models.VerseRef, translation string) result.Result[[]models.ScriptureVerse] {
	ref = ref.Normalize()
	if !ref.IsValid() {
		return result.Errorf[[]models.ScriptureVerse](result.KindInvalidInput, "invalid verse reference %q", ref.String())
	}
	translation = strings.TrimSpace(translation)

	key := cacheKey(ref, translation)
	if s.scriptureCache != nil {
		if verses, ok := s.scriptureCache.Get(key); ok {
			log.Debug().Str("reference", ref.String()).Str("translation", translation).Msg("Scripture cache hit")
			return result.Success(clone(verses))
		}
	}

	r := runFallback(ctx, s, OpFetchScripture, s.scriptureCandidates(),
		func(ctx context.Context, p contracts.ScriptureProvider) result.Result[[]models.ScriptureVerse] {
			return p.FetchScripture(ctx, ref, translation)
		})

	if verses, ok := r.Value(); ok && s.scriptureCache != nil {
		s.scriptureCache.Add(key, clone(verses))
	}
	return r
}

// GetKeyTakeaway asks for a one-sentence takeaway of the passage.
func (s *Service) GetKeyTakeaway(ctx context.Context, ref string) result.Result[string] {
	if strings.TrimSpace(ref) == "" {
		return result.Errorf[string](result.KindInvalidInput, "reference is required")
	}
	return runFallback(ctx, s, OpKeyTakeaway, s.aiCandidates(),
		func(ctx context.Context, p contracts.AIProvider) result.Result[string] {
			return p.GetKeyTakeaway(ctx, ref)
		})
}

// GetAIScore scores a user's quote and application against the passage.
func (s *Service) GetAIScore(ctx context.Context, ref, directQuote, application string) result.Result[models.ScoreResult] {
	if strings.TrimSpace(ref) == "" {
		return result.Errorf[models.ScoreResult](result.KindInvalidInput, "reference is required")
	}
	return runFallback(ctx, s, OpScore, s.aiCandidates(),
		func(ctx context.Context, p contracts.AIProvider) result.Result[models.ScoreResult] {
			return p.GetAIScore(ctx, ref, directQuote, application)
		})
}

// ValidateKeyTakeaway checks whether takeaway is faithful to the passage.
// Success(false) is a valid answer, not a failure.
func (s *Service) ValidateKeyTakeaway(ctx context.Context, ref, takeaway string) result.Result[bool] {
	if strings.TrimSpace(ref) == "" || strings.TrimSpace(takeaway) == "" {
		return result.Errorf[bool](result.KindInvalidInput, "reference and takeaway are required")
	}
	return runFallback(ctx, s, OpValidate, s.aiCandidates(),
		func(ctx context.Context, p contracts.AIProvider) result.Result[bool] {
			return p.ValidateKeyTakeaway(ctx, ref, takeaway)
		})
}

// FindVersesByDescription searches for passages matching a free-text description.
// No matches is Success with an empty slice.
func (s *Service) FindVersesByDescription(ctx context.Context, description string) result.Result[[]models.VerseRef] {
	if strings.TrimSpace(description) == "" {
		return result.Errorf[[]models.VerseRef](result.KindInvalidInput, "description is required")
	}
	return runFallback(ctx, s, OpSearch, s.aiCandidates(),
		func(ctx context.Context, p contracts.AIProvider) result.Result[[]models.VerseRef] {
			return p.FindVersesByDescription(ctx, description)
		})
}

// ── Candidates ──────────────────────────────────────────────

func (s *Service) aiCandidates() []contracts.AIProvider {
	return preferSelected(s.registry.Available(), s.SelectedProvider())
}

func (s *Service) scriptureCandidates() []contracts.ScriptureProvider {
	selected := s.SelectedProvider()
	out := preferSelected(s.registry.AvailableScripture(), selected)
	for _, p := range preferSelected(s.registry.Available(), selected) {
		out = append(out, p)
	}
	return out
}

// preferSelected moves the provider with id selected to the front and keeps
// the rest in priority order.
func preferSelected[P contracts.ScriptureProvider](list []P, selected string) []P {
	if selected == "" {
		return list
	}
	for i, p := range list {
		if p.Descriptor().ID != selected {
			continue
		}
		if i == 0 {
			return list
		}
		out := make([]P, 0, len(list))
		out = append(out, p)
		out = append(out, list[:i]...)
		return append(out, list[i+1:]...)
	}
	return list
}

// ── Fallback ────────────────────────────────────────────────

// runFallback tries candidates in order and returns the first success.
func runFallback[P contracts.ScriptureProvider, T any](
	ctx context.Context,
	s *Service,
	op string,
	candidates []P,
	call func(context.Context, P) result.Result[T],
) result.Result[T] {
	callID := newCallID()
	ctx, span := tracer.Start(ctx, "orchestrator."+op,
		trace.WithAttributes(operationAttrs(op, callID, len(candidates))...))
	defer span.End()

	logger := log.With().Str("operation", op).Str("call_id", callID).Logger()

	if len(candidates) == 0 {
		logger.Warn().Msg("No available providers")
		r := result.Errorf[T](result.KindExhausted, "no available providers")
		markSpan(span, r)
		return r
	}

	var last result.Result[T]
	for i, p := range candidates {
		if err := ctx.Err(); err != nil {
			r := result.Fail[T](result.KindCancelled, fmt.Sprintf("%s cancelled: %v", op, err), err)
			markSpan(span, r)
			return r
		}

		id := p.Descriptor().ID
		actx, aspan := tracer.Start(ctx, "orchestrator.attempt", trace.WithAttributes(attemptAttrs(id, i+1)...))
		start := time.Now()
		r := attempt(actx, s.attemptTimeout, id, func(ctx context.Context) result.Result[T] { return call(ctx, p) })
		latency := time.Since(start)
		markSpan(aspan, r)
		aspan.End()

		if r.IsSuccess() {
			s.recordLatency(id, latency.Milliseconds())
			logger.Info().
				Str("provider", id).
				Int("attempt", i+1).
				Dur("latency", latency).
				Msg("Provider call succeeded")
			markSpan(span, r)
			return r
		}

		if r.Kind() == result.KindCancelled && ctx.Err() != nil {
			logger.Warn().Str("provider", id).Int("attempt", i+1).Msg("Call cancelled")
			markSpan(span, r)
			return r
		}

		logger.Warn().
			Str("provider", id).
			Int("attempt", i+1).
			Str("kind", string(r.Kind())).
			Dur("latency", latency).
			Str("error", r.Message()).
			Msg("Provider call failed, trying next")
		last = r
	}

	r := result.Fail[T](result.KindExhausted, "all providers failed, last error: "+last.Message(), last.Cause())
	logger.Error().Int("attempts", len(candidates)).Str("error", last.Message()).Msg("All providers failed")
	markSpan(span, r)
	return r
}
