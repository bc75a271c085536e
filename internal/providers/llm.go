package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/versekeeper/versekeeper/pkg/contracts"
	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

// Backend is the transport half of an LLM provider: it turns one prompt into
// raw model text. Prompting and response parsing live in LLMProvider.
type Backend interface {
	// Setup prepares clients for cfg. Called from Configure under the
	// provider's lock; it must not perform network calls.
	Setup(cfg models.ProviderConfig) error

	// Complete sends one request and returns the model's text.
	Complete(ctx context.Context, cfg models.ProviderConfig, req Request) (string, error)

	// Ping performs the cheapest request that proves reachability.
	Ping(ctx context.Context, cfg models.ProviderConfig) error
}

// LLMProvider implements contracts.AIProvider on top of a Backend.
type LLMProvider struct {
	base
	backend Backend
}

var _ contracts.AIProvider = (*LLMProvider)(nil)

// NewLLMProvider pairs a descriptor with a backend.
func NewLLMProvider(desc models.ProviderDescriptor, backend Backend) *LLMProvider {
	return &LLMProvider{base: newBase(desc), backend: backend}
}

func (p *LLMProvider) Configure(cfg models.ProviderConfig) bool {
	return p.applyConfig(cfg, p.backend.Setup)
}

func (p *LLMProvider) Test(ctx context.Context) bool {
	if !p.IsInitialized() {
		return false
	}
	return p.backend.Ping(ctx, p.config()) == nil
}

func (p *LLMProvider) FetchScripture(ctx context.Context, ref models.VerseRef, translation string) result.Result[[]models.ScriptureVerse] {
	text, failed := complete[[]models.ScriptureVerse](ctx, p, scripturePrompt(ref.Normalize(), translation))
	if failed != nil {
		return *failed
	}
	return ParseVerses(text)
}

func (p *LLMProvider) GetKeyTakeaway(ctx context.Context, ref string) result.Result[string] {
	text, failed := complete[string](ctx, p, takeawayPrompt(ref))
	if failed != nil {
		return *failed
	}
	return ParseTakeaway(text)
}

func (p *LLMProvider) GetAIScore(ctx context.Context, ref, directQuote, application string) result.Result[models.ScoreResult] {
	text, failed := complete[models.ScoreResult](ctx, p, scorePrompt(ref, directQuote, application))
	if failed != nil {
		return *failed
	}
	return ParseScore(text)
}

func (p *LLMProvider) ValidateKeyTakeaway(ctx context.Context, ref, takeaway string) result.Result[bool] {
	text, failed := complete[bool](ctx, p, validatePrompt(ref, takeaway))
	if failed != nil {
		return *failed
	}
	return ParseValidation(text)
}

func (p *LLMProvider) FindVersesByDescription(ctx context.Context, description string) result.Result[[]models.VerseRef] {
	text, failed := complete[[]models.VerseRef](ctx, p, searchPrompt(description))
	if failed != nil {
		return *failed
	}
	return ParseVerseRefs(text)
}

// complete runs req and converts any failure into a typed error result.
func complete[T any](ctx context.Context, p *LLMProvider, req Request) (string, *result.Result[T]) {
	if !p.IsInitialized() {
		r := result.Errorf[T](result.KindConfiguration, "%s: not configured: %s", p.desc.ID, p.InitializationError())
		return "", &r
	}
	text, err := p.backend.Complete(ctx, p.config(), req)
	if err != nil {
		kind := result.KindTransport
		if errors.Is(err, context.DeadlineExceeded) {
			kind = result.KindTimeout
		}
		r := result.Fail[T](kind, fmt.Sprintf("%s: %v", p.desc.ID, err), err)
		return "", &r
	}
	if strings.TrimSpace(text) == "" {
		r := result.Errorf[T](result.KindParse, "%s: empty response", p.desc.ID)
		return "", &r
	}
	return text, nil
}
