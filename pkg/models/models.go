package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ── Providers ───────────────────────────────────────────────

// ServiceType tags the kind of backend a provider talks to.
type ServiceType string

const (
	ServiceOpenAI       ServiceType = "openai"
	ServiceAnthropic    ServiceType = "anthropic"
	ServiceGemini       ServiceType = "gemini"
	ServiceOllama       ServiceType = "ollama"
	ServiceESV          ServiceType = "esv"
	ServiceBibleAPI     ServiceType = "bible-api"
	ServiceBibleGateway ServiceType = "biblegateway"
	ServiceMock         ServiceType = "mock"
)

// RequiresCredential reports whether the backend refuses to work without an API key.
func (s ServiceType) RequiresCredential() bool {
	switch s {
	case ServiceOpenAI, ServiceAnthropic, ServiceGemini, ServiceESV:
		return true
	}
	return false
}

// ProviderDescriptor is the identity of one provider implementation.
// Available is computed at read time from the provider's readiness.
type ProviderDescriptor struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	ServiceType  ServiceType `json:"service_type"`
	DefaultModel string      `json:"default_model,omitempty"`
	Priority     int         `json:"priority"`
	Available    bool        `json:"available"`
}

// ProviderConfig is applied to a provider by Configure. A new config replaces
// the previous one entirely.
type ProviderConfig struct {
	ID          string      `json:"id" validate:"required"`
	Name        string      `json:"name,omitempty"`
	ServiceType ServiceType `json:"service_type,omitempty"`
	Model       string      `json:"model,omitempty"`
	APIKey      string      `json:"api_key,omitempty"`
	Endpoint    string      `json:"endpoint,omitempty" validate:"omitempty,url"`
	Temperature float64     `json:"temperature" validate:"gte=0,lte=2"`
	Enabled     bool        `json:"enabled"`
}

var validate = validator.New()

// Validate checks field-level constraints (id present, temperature in [0,2]).
func (c ProviderConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid provider config %q: %w", c.ID, err)
	}
	return nil
}

// DefaultTemperature is used when a config leaves temperature unset.
const DefaultTemperature = 0.7

// AggregateSettings is one configuration batch. It fully replaces whatever
// was configured before.
type AggregateSettings struct {
	SelectedProvider string                    `json:"selected_provider"`
	Configs          map[string]ProviderConfig `json:"configs"`
}

// RegistryStats are counts recomputed on every call.
type RegistryStats struct {
	TotalProviders     int `json:"total_providers"`
	AvailableProviders int `json:"available_providers"`
	AIProviders        int `json:"ai_providers"`
	ScriptureProviders int `json:"scripture_providers"`
}

// ProviderHealth is one row of a health report.
type ProviderHealth struct {
	ID        string `json:"id"`
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// ── Scripture ───────────────────────────────────────────────

// VerseRef points at a passage. StartVerse == EndVerse is a single verse.
type VerseRef struct {
	Book       string `json:"book"`
	Chapter    int    `json:"chapter"`
	StartVerse int    `json:"start_verse"`
	EndVerse   int    `json:"end_verse"`
}

// Normalize fills a missing end verse and swaps a reversed range.
func (v VerseRef) Normalize() VerseRef {
	v.Book = strings.TrimSpace(v.Book)
	if v.EndVerse == 0 {
		v.EndVerse = v.StartVerse
	}
	if v.EndVerse < v.StartVerse {
		v.StartVerse, v.EndVerse = v.EndVerse, v.StartVerse
	}
	return v
}

// IsValid reports whether the reference names a book, chapter and verse.
func (v VerseRef) IsValid() bool {
	return strings.TrimSpace(v.Book) != "" && v.Chapter > 0 && v.StartVerse > 0
}

// String formats as "Book C:V" or "Book C:V-W".
func (v VerseRef) String() string {
	n := v.Normalize()
	if n.EndVerse == n.StartVerse {
		return fmt.Sprintf("%s %d:%d", n.Book, n.Chapter, n.StartVerse)
	}
	return fmt.Sprintf("%s %d:%d-%d", n.Book, n.Chapter, n.StartVerse, n.EndVerse)
}

// ScriptureVerse is one numbered verse of retrieved text.
type ScriptureVerse struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// ScoreResult is produced whole by one scoring call.
type ScoreResult struct {
	ContextScore int    `json:"context_score"`
	Explanation  string `json:"explanation"`
	Feedback     string `json:"feedback"`
}

// ── Verse records ───────────────────────────────────────────

// CachedFeedback is the last scoring output stored on a verse record together
// with the exact input that produced it.
type CachedFeedback struct {
	DirectQuote string `json:"direct_quote"`
	Application string `json:"application"`
	Explanation string `json:"explanation"`
	Feedback    string `json:"feedback"`
	Score       int    `json:"score"`
}

// VerseRecord is the persisted verse a user is memorizing.
type VerseRecord struct {
	ID          string         `json:"id"`
	Reference   VerseRef       `json:"reference"`
	Translation string         `json:"translation,omitempty"`
	Feedback    CachedFeedback `json:"feedback"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
