package providers

import (
	"context"
	"sync"

	"github.com/versekeeper/versekeeper/pkg/models"
)

// MockBackend returns predefined responses. It backs the "mock" provider used
// for offline development and is the LLM stand-in in tests.
type MockBackend struct {
	mu sync.Mutex

	// Responses maps an operation name (OpScore, ...) to the raw model text.
	Responses map[string]string
	// Err, when set, is returned by every Complete call.
	Err error
	// SetupErr, when set, makes Configure fail.
	SetupErr error
	// Calls counts Complete calls per operation.
	Calls map[string]int
	// LastRequest is the most recent request seen.
	LastRequest *Request
}

// NewMockBackend returns a backend with a plausible canned answer for every operation.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Responses: map[string]string{
			OpFetchScripture: `{"verses": [{"number": 1, "text": "In the beginning was the Word."}]}`,
			OpKeyTakeaway:    "God's word is the foundation of all things.",
			OpScore:          `{"score": 80, "explanation": "The application follows the passage's context.", "feedback": "Consider naming a concrete situation this week."}`,
			OpValidate:       `{"valid": true}`,
			OpSearch:         `{"verses": ["John 1:1", "Hebrews 4:12"]}`,
			OpPing:           "OK",
		},
		Calls: make(map[string]int),
	}
}

// NewMock creates the mock provider with default canned responses.
func NewMock(id string, priority int) (*LLMProvider, *MockBackend) {
	backend := NewMockBackend()
	p := NewLLMProvider(models.ProviderDescriptor{
		ID:           id,
		Name:         "Mock " + id,
		ServiceType:  models.ServiceMock,
		DefaultModel: "mock-1",
		Priority:     priority,
	}, backend)
	return p, backend
}

// WithResponse sets the response for op and returns the backend for chaining.
func (m *MockBackend) WithResponse(op, text string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[op] = text
	return m
}

// WithError makes every call fail with err.
func (m *MockBackend) WithError(err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
	return m
}

// CallCount returns how many times op was requested.
func (m *MockBackend) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[op]
}

func (m *MockBackend) Setup(models.ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SetupErr
}

func (m *MockBackend) Complete(ctx context.Context, _ models.ProviderConfig, req Request) (string, error) {
	m.mu.Lock()
	m.Calls[req.Operation]++
	m.LastRequest = &req
	text, err := m.Responses[req.Operation], m.Err
	m.mu.Unlock()

	if err != nil {
		return "", err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return text, nil
}

func (m *MockBackend) Ping(ctx context.Context, cfg models.ProviderConfig) error {
	_, err := m.Complete(ctx, cfg, pingPrompt())
	return err
}
