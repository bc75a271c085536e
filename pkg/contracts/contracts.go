// Package contracts defines the capability interfaces every backend
// integration implements.
//
// The orchestrator depends only on these interfaces, so adding a backend is a
// new implementation plus one Register call in the wiring code.
package contracts

import (
	"context"

	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

// ── Scripture Provider ──────────────────────────────────────

// ScriptureProvider retrieves verse text. Scripture-only backends (ESV,
// bible-api, BibleGateway) implement just this.
type ScriptureProvider interface {
	// Descriptor returns identity and priority. Available mirrors IsInitialized.
	Descriptor() models.ProviderDescriptor

	// Configure replaces all prior settings and reports whether the provider
	// ended in a usable state.
	Configure(cfg models.ProviderConfig) bool

	// IsInitialized is true only after a successful Configure.
	IsInitialized() bool

	// InitializationError is the last configuration failure, or "".
	InitializationError() string

	// Test performs a minimal round-trip to the backend. It never mutates
	// configuration.
	Test(ctx context.Context) bool

	// FetchScripture returns the verses of ref, ordered by verse number.
	FetchScripture(ctx context.Context, ref models.VerseRef, translation string) result.Result[[]models.ScriptureVerse]
}

// ── AI Provider ─────────────────────────────────────────────

// AIProvider is a general model backend. It can also retrieve scripture.
type AIProvider interface {
	ScriptureProvider

	// GetKeyTakeaway summarizes the main point of a passage.
	GetKeyTakeaway(ctx context.Context, ref string) result.Result[string]

	// GetAIScore grades how well the user's quote and application fit the
	// passage's context.
	GetAIScore(ctx context.Context, ref, directQuote, application string) result.Result[models.ScoreResult]

	// ValidateKeyTakeaway reports whether a takeaway is accurate for the
	// passage. Success(false) is a normal answer, not an error.
	ValidateKeyTakeaway(ctx context.Context, ref, takeaway string) result.Result[bool]

	// FindVersesByDescription suggests passages matching a free-text
	// description. An empty slice is a valid answer.
	FindVersesByDescription(ctx context.Context, description string) result.Result[[]models.VerseRef]
}
