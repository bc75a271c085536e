package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/versekeeper/versekeeper/pkg/models"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	defaultOllamaEndpoint = "http://localhost:11434"
)

// ── OpenAI-compatible chat completions ──────────────────────

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// chatBackend speaks the /chat/completions protocol shared by OpenAI and
// Ollama's OpenAI-compatible endpoint.
type chatBackend struct {
	kind            models.ServiceType
	defaultEndpoint string
	completionsPath string
	client          *http.Client
}

// NewOpenAI creates the OpenAI provider.
func NewOpenAI(priority int) *LLMProvider {
	return NewLLMProvider(models.ProviderDescriptor{
		ID:           "openai",
		Name:         "OpenAI",
		ServiceType:  models.ServiceOpenAI,
		DefaultModel: "gpt-4o-mini",
		Priority:     priority,
	}, &chatBackend{
		kind:            models.ServiceOpenAI,
		defaultEndpoint: defaultOpenAIEndpoint,
		completionsPath: "/chat/completions",
		client:          &http.Client{Timeout: 120 * time.Second},
	})
}

// NewOllama creates the provider for a local Ollama server. No credential is needed.
func NewOllama(priority int) *LLMProvider {
	return NewLLMProvider(models.ProviderDescriptor{
		ID:           "ollama",
		Name:         "Ollama",
		ServiceType:  models.ServiceOllama,
		DefaultModel: "llama3.1",
		Priority:     priority,
	}, &chatBackend{
		kind:            models.ServiceOllama,
		defaultEndpoint: defaultOllamaEndpoint,
		completionsPath: "/v1/chat/completions",
		client:          &http.Client{Timeout: 120 * time.Second},
	})
}

func (b *chatBackend) Setup(cfg models.ProviderConfig) error {
	if cfg.Model == "" {
		return fmt.Errorf("%s: model is required", b.kind)
	}
	return nil
}

func (b *chatBackend) endpoint(cfg models.ProviderConfig) string {
	if cfg.Endpoint != "" {
		return strings.TrimRight(cfg.Endpoint, "/")
	}
	return b.defaultEndpoint
}

func (b *chatBackend) Complete(ctx context.Context, cfg models.ProviderConfig, req Request) (string, error) {
	body := chatRequest{
		Model:       cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON && b.kind == models.ServiceOpenAI {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := b.post(ctx, cfg, body, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s error: %s (%s)", b.kind, resp.Error.Message, resp.Error.Type)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in response", b.kind)
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *chatBackend) post(ctx context.Context, cfg models.ProviderConfig, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", b.kind, err)
	}

	url := b.endpoint(cfg) + b.completionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", b.kind, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", b.kind, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return fmt.Errorf("%s: status %d: %s", b.kind, httpResp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", b.kind, err)
	}
	return nil
}

// Ping sends a 1-token completion for OpenAI and lists local models for Ollama.
func (b *chatBackend) Ping(ctx context.Context, cfg models.ProviderConfig) error {
	if b.kind != models.ServiceOllama {
		_, err := b.Complete(ctx, cfg, pingPrompt())
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint(cfg)+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: create request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
