package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/versekeeper/versekeeper/pkg/models"
)

const defaultAnthropicMaxTokens = 1024

// anthropicBackend calls the Messages API through the official SDK.
type anthropicBackend struct {
	mu     sync.RWMutex
	client *anthropic.Client
}

// NewAnthropic creates the Anthropic provider.
func NewAnthropic(priority int) *LLMProvider {
	return NewLLMProvider(models.ProviderDescriptor{
		ID:           "anthropic",
		Name:         "Anthropic",
		ServiceType:  models.ServiceAnthropic,
		DefaultModel: "claude-3-5-haiku-20241022",
		Priority:     priority,
	}, &anthropicBackend{})
}

func (b *anthropicBackend) Setup(cfg models.ProviderConfig) error {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	client := anthropic.NewClient(opts...)

	b.mu.Lock()
	b.client = &client
	b.mu.Unlock()
	return nil
}

func (b *anthropicBackend) Complete(ctx context.Context, cfg models.ProviderConfig, req Request) (string, error) {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return "", fmt.Errorf("anthropic: client not initialized")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	// The Messages API caps temperature at 1.0.
	temperature := cfg.Temperature
	if temperature > 1 {
		temperature = 1
	}

	response, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(cfg.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func (b *anthropicBackend) Ping(ctx context.Context, cfg models.ProviderConfig) error {
	_, err := b.Complete(ctx, cfg, pingPrompt())
	return err
}
