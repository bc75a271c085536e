// Package store persists the verse records a user is memorizing together
// with the last scoring feedback for each. The in-memory store serves local
// development and tests; PostgreSQL backs production deployments.
package store

import (
	"context"
	"time"

	"github.com/versekeeper/versekeeper/pkg/models"
)

// Store is the storage interface used by the API and the feedback scorer.
type Store interface {
	VerseStore

	// Ping checks if the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate creates the schema if needed.
	Migrate(ctx context.Context) error
}

// ── Verse Store ─────────────────────────────────────────────

type VerseStore interface {
	// CreateVerse stores rec. An empty ID is filled with a new uuid; the
	// timestamps are set by the store.
	CreateVerse(ctx context.Context, rec *models.VerseRecord) error
	GetVerse(ctx context.Context, id string) (*models.VerseRecord, error)
	ListVerses(ctx context.Context, filter ListFilter) ([]models.VerseRecord, error)
	DeleteVerse(ctx context.Context, id string) error

	// UpdateFeedback overwrites quote, application, explanation, feedback and
	// score as one unit. Readers never observe a partial update.
	UpdateFeedback(ctx context.Context, id string, fb models.CachedFeedback) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ── Filter helpers ──────────────────────────────────────────

// ListFilter provides common pagination/filter options.
type ListFilter struct {
	Limit  int
	Offset int
	Since  *time.Time
}

const defaultListLimit = 100

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return defaultListLimit
	}
	return f.Limit
}
