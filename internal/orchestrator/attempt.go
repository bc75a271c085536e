package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

// attempt runs fn in its own goroutine under timeout. A provider panic
// becomes an Error result. When the deadline fires first the goroutine is
// abandoned with an already-cancelled context; the buffered channel lets it
// finish without blocking.
func attempt[T any](ctx context.Context, timeout time.Duration, providerID string, fn func(context.Context) result.Result[T]) result.Result[T] {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result.Result[T], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result.Errorf[T](result.KindTransport, "%s: provider panicked: %v", providerID, rec)
			}
		}()
		done <- fn(actx)
	}()

	select {
	case r := <-done:
		return r
	case <-actx.Done():
	}

	// A result that raced the deadline still counts.
	select {
	case r := <-done:
		return r
	default:
	}

	if err := ctx.Err(); err != nil {
		return result.Fail[T](result.KindCancelled, fmt.Sprintf("%s: %v", providerID, err), err)
	}
	return result.Fail[T](result.KindTimeout,
		fmt.Sprintf("%s: timed out after %s", providerID, timeout), context.DeadlineExceeded)
}

// ── Latency ─────────────────────────────────────────────────

func (s *Service) recordLatency(providerID string, ms int64) {
	s.latencyMu.Lock()
	defer s.latencyMu.Unlock()
	prev := s.latencies[providerID]
	if prev == 0 {
		s.latencies[providerID] = ms
		return
	}
	// Exponential moving average
	s.latencies[providerID] = (prev*7 + ms*3) / 10
}

// Latencies returns the rolling average latency in milliseconds of successful
// calls, keyed by provider id.
func (s *Service) Latencies() map[string]int64 {
	s.latencyMu.RLock()
	defer s.latencyMu.RUnlock()
	out := make(map[string]int64, len(s.latencies))
	for k, v := range s.latencies {
		out[k] = v
	}
	return out
}

// ── Helpers ─────────────────────────────────────────────────

func newCallID() string {
	return uuid.NewString()
}

func operationAttrs(op, callID string, candidates int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("versekeeper.operation", op),
		attribute.String("versekeeper.call_id", callID),
		attribute.Int("versekeeper.candidates", candidates),
	}
}

func attemptAttrs(providerID string, n int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("versekeeper.provider", providerID),
		attribute.Int("versekeeper.attempt", n),
	}
}

func markSpan[T any](span trace.Span, r result.Result[T]) {
	if r.IsSuccess() {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.SetAttributes(attribute.String("versekeeper.error_kind", string(r.Kind())))
	span.SetStatus(codes.Error, r.Message())
	if cause := r.Cause(); cause != nil && !errors.Is(cause, context.Canceled) {
		span.RecordError(cause)
	}
}

func cacheKey(ref models.VerseRef, translation string) string {
	return ref.String() + "|" + strings.ToUpper(translation)
}

func clone(verses []models.ScriptureVerse) []models.ScriptureVerse {
	out := make([]models.ScriptureVerse, len(verses))
	copy(out, verses)
	return out
}
