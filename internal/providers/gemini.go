package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	genai "google.golang.org/genai"

	"github.com/versekeeper/versekeeper/pkg/models"
)

var errNoCandidates = errors.New("gemini: no candidates in response")

// geminiBackend is a thin wrapper around the official genai client.
type geminiBackend struct {
	mu  sync.RWMutex
	cli *genai.Client
}

// NewGemini creates the Google Gemini provider.
func NewGemini(priority int) *LLMProvider {
	return NewLLMProvider(models.ProviderDescriptor{
		ID:           "gemini",
		Name:         "Google Gemini",
		ServiceType:  models.ServiceGemini,
		DefaultModel: "gemini-2.5-flash",
		Priority:     priority,
	}, &geminiBackend{})
}

func (b *geminiBackend) Setup(cfg models.ProviderConfig) error {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	cli, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	b.mu.Lock()
	b.cli = cli
	b.mu.Unlock()
	return nil
}

func (b *geminiBackend) Complete(ctx context.Context, cfg models.ProviderConfig, req Request) (string, error) {
	b.mu.RLock()
	cli := b.cli
	b.mu.RUnlock()
	if cli == nil {
		return "", fmt.Errorf("gemini: client not initialized")
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(cfg.Temperature)),
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := cli.Models.GenerateContent(ctx, cfg.Model, genai.Text(req.Prompt), gc)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errNoCandidates
	}

	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("gemini: no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

func (b *geminiBackend) Ping(ctx context.Context, cfg models.ProviderConfig) error {
	_, err := b.Complete(ctx, cfg, pingPrompt())
	return err
}
