// Package feedback holds the scoring memoization policy: a stored score is
// reused only while the submitted quote and application are unchanged.
package feedback

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/versekeeper/versekeeper/internal/store"
	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

// Lookup returns the stored score when it is still valid for quote and
// application. A hit needs a non-blank explanation or feedback, a positive
// score, and an exact match of the trimmed inputs.
func Lookup(cached models.CachedFeedback, quote, application string) (models.ScoreResult, bool) {
	if strings.TrimSpace(cached.Explanation) == "" && strings.TrimSpace(cached.Feedback) == "" {
		return models.ScoreResult{}, false
	}
	if cached.Score <= 0 {
		return models.ScoreResult{}, false
	}
	if strings.TrimSpace(cached.DirectQuote) != strings.TrimSpace(quote) ||
		strings.TrimSpace(cached.Application) != strings.TrimSpace(application) {
		return models.ScoreResult{}, false
	}
	return models.ScoreResult{
		ContextScore: cached.Score,
		Explanation:  cached.Explanation,
		Feedback:     cached.Feedback,
	}, true
}

// Entry builds the value stored after a successful scoring call.
func Entry(quote, application string, score models.ScoreResult) models.CachedFeedback {
	return models.CachedFeedback{
		DirectQuote: strings.TrimSpace(quote),
		Application: strings.TrimSpace(application),
		Explanation: score.Explanation,
		Feedback:    score.Feedback,
		Score:       score.ContextScore,
	}
}

// ── Scorer ──────────────────────────────────────────────────

// Records is the persistence the scorer needs.
type Records interface {
	GetVerse(ctx context.Context, id string) (*models.VerseRecord, error)
	// UpdateFeedback replaces all cached fields of the record as one write.
	UpdateFeedback(ctx context.Context, id string, fb models.CachedFeedback) error
}

// ScoringService is the facade operation the scorer falls through to.
type ScoringService interface {
	GetAIScore(ctx context.Context, ref, directQuote, application string) result.Result[models.ScoreResult]
}

// Outcome is a score and whether it came from the record.
type Outcome struct {
	Score  models.ScoreResult `json:"score"`
	Cached bool               `json:"cached"`
}

// Scorer scores a stored verse, consulting the cached feedback first.
type Scorer struct {
	records Records
	scoring ScoringService
}

// NewScorer creates a Scorer.
func NewScorer(records Records, scoring ScoringService) *Scorer {
	return &Scorer{records: records, scoring: scoring}
}

// Score returns the cached score on a hit. On a miss it calls the scoring
// service and, on success, stores the new input and output together.
func (s *Scorer) Score(ctx context.Context, verseID, quote, application string) result.Result[Outcome] {
	rec, err := s.records.GetVerse(ctx, verseID)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			return result.Fail[Outcome](result.KindInvalidInput, "", err)
		}
		return result.Fail[Outcome](result.KindStorage, "load verse: "+err.Error(), err)
	}

	if score, ok := Lookup(rec.Feedback, quote, application); ok {
		log.Debug().Str("verse", verseID).Msg("Feedback cache hit")
		return result.Success(Outcome{Score: score, Cached: true})
	}

	r := s.scoring.GetAIScore(ctx, rec.Reference.String(), quote, application)
	score, ok := r.Value()
	if !ok {
		return result.Retag[Outcome](r)
	}

	if err := s.records.UpdateFeedback(ctx, verseID, Entry(quote, application, score)); err != nil {
		// The score is still good; the next call just misses the cache.
		log.Error().Err(err).Str("verse", verseID).Msg("Failed to store feedback")
	}
	return result.Success(Outcome{Score: score})
}
