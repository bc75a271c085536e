package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versekeeper/versekeeper/internal/api/handlers"
	"github.com/versekeeper/versekeeper/internal/config"
	"github.com/versekeeper/versekeeper/internal/orchestrator"
	"github.com/versekeeper/versekeeper/internal/providers"
	"github.com/versekeeper/versekeeper/internal/registry"
	"github.com/versekeeper/versekeeper/internal/store"
	"github.com/versekeeper/versekeeper/pkg/models"
)

type testEnv struct {
	handler http.Handler
	backend *providers.MockBackend
	store   *store.MemoryStore
}

func newTestEnv(t *testing.T, apiKeys ...string) *testEnv {
	t.Helper()
	reg := registry.New()
	p, backend := providers.NewMock("mock", 1)
	require.NoError(t, reg.RegisterAI(p))

	svc := orchestrator.New(reg)
	svc.Configure(models.AggregateSettings{Configs: map[string]models.ProviderConfig{
		"mock": {ID: "mock", Enabled: true},
	}})

	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{Version: "test", APIKeys: apiKeys}
	return &testEnv{
		handler: NewRouter(cfg, handlers.New(svc, s)),
		backend: backend,
		store:   s,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t, "secret")

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody[map[string]string](t, w)["status"])

	w = env.do(t, http.MethodGet, "/version", nil)
	assert.Equal(t, "test", decodeBody[map[string]string](t, w)["version"])
}

func TestAPIRequiresKeyWhenConfigured(t *testing.T) {
	env := newTestEnv(t, "secret")

	w := env.do(t, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusAndConfigure(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeBody[map[string]any](t, w)
	assert.Equal(t, true, status["initialized"])

	// An empty batch resets every provider.
	w = env.do(t, http.MethodPost, "/api/v1/configure", models.AggregateSettings{})
	require.Equal(t, http.StatusOK, w.Code)
	status = decodeBody[map[string]any](t, w)
	assert.Equal(t, false, status["initialized"])
	assert.Equal(t, "no provider configured", status["initialization_error"])

	w = env.do(t, http.MethodPost, "/api/v1/takeaway", map[string]string{"reference": "John 1:1"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "no available providers", decodeBody[map[string]string](t, w)["error"])
}

func TestConfigure_BadBody(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/configure", "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProviders(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	descs := decodeBody[[]models.ProviderDescriptor](t, w)
	require.Len(t, descs, 1)
	assert.Equal(t, "mock", descs[0].ID)
	assert.True(t, descs[0].Available)
}

func TestProviderHealthAndTest(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/providers/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeBody[[]models.ProviderHealth](t, w)
	require.Len(t, report, 1)
	assert.True(t, report[0].Healthy)

	w = env.do(t, http.MethodPost, "/api/v1/test", nil)
	assert.Equal(t, true, decodeBody[map[string]any](t, w)["ok"])
}

func TestFetchScripture(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/scripture", map[string]string{"reference": "john 1:1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody[struct {
		Reference   string                  `json:"reference"`
		Translation string                  `json:"translation"`
		Verses      []models.ScriptureVerse `json:"verses"`
	}](t, w)
	assert.Equal(t, "john 1:1", body.Reference)
	assert.Equal(t, "ESV", body.Translation)
	require.Len(t, body.Verses, 1)
	assert.Equal(t, "In the beginning was the Word.", body.Verses[0].Text)
}

func TestFetchScripture_StructuredRef(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/scripture", map[string]any{
		"ref":         models.VerseRef{Book: "Romans", Chapter: 12, StartVerse: 14, EndVerse: 12},
		"translation": "NIV",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Romans 12:12-14", decodeBody[map[string]any](t, w)["reference"])
}

func TestFetchScripture_BadReference(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/scripture", map[string]string{"reference": "somewhere"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.backend.CallCount(providers.OpFetchScripture))
}

func TestTakeawayAndValidate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/takeaway", map[string]string{"reference": "John 1:1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "God's word is the foundation of all things.", decodeBody[map[string]string](t, w)["takeaway"])

	env.backend.WithResponse(providers.OpValidate, `{"valid": false}`)
	w = env.do(t, http.MethodPost, "/api/v1/takeaway/validate", map[string]string{
		"reference": "John 3:16",
		"takeaway":  "God wants us to go fishing",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody[map[string]any](t, w)["valid"])
}

func TestBlankInputIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/takeaway", map[string]string{"reference": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.backend.CallCount(providers.OpKeyTakeaway))
}

func TestScore(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/score", map[string]string{
		"reference":    "Romans 12:12",
		"direct_quote": "Be joyful in hope",
		"application":  "Pray every morning",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 80, decodeBody[models.ScoreResult](t, w).ContextScore)
}

func TestProviderFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.backend.WithError(errors.New("connection refused"))

	w := env.do(t, http.MethodPost, "/api/v1/score", map[string]string{
		"reference":    "Romans 12:12",
		"direct_quote": "q",
		"application":  "a",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "all providers failed, last error: mock: connection refused", decodeBody[map[string]string](t, w)["error"])
}

func TestSearchVerses(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/verses/search", map[string]string{"description": "the word of God"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, []any{"John 1:1", "Hebrews 4:12"}, body["references"])
}

func TestVerseRecords(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/verses", map[string]string{"reference": "Romans 12:12-14", "translation": "ESV"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[models.VerseRecord](t, w)
	require.NotEmpty(t, created.ID)

	w = env.do(t, http.MethodGet, "/api/v1/verses/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Romans 12:12-14", decodeBody[models.VerseRecord](t, w).Reference.String())

	w = env.do(t, http.MethodGet, "/api/v1/verses?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.VerseRecord](t, w), 1)

	w = env.do(t, http.MethodDelete, "/api/v1/verses/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/verses/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateVerse_BadReference(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/verses", map[string]string{"reference": "Romans"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoreVerse_UsesCachedFeedback(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/verses", map[string]string{"reference": "Romans 12:12-14"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody[models.VerseRecord](t, w).ID

	body := map[string]string{"direct_quote": "Rejoice in hope", "application": "Pray before work"}

	w = env.do(t, http.MethodPost, "/api/v1/verses/"+id+"/score", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decodeBody[struct {
		Score  models.ScoreResult `json:"score"`
		Cached bool               `json:"cached"`
	}](t, w)
	assert.False(t, first.Cached)
	assert.Equal(t, 80, first.Score.ContextScore)

	w = env.do(t, http.MethodPost, "/api/v1/verses/"+id+"/score", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, w)["cached"])
	assert.Equal(t, 1, env.backend.CallCount(providers.OpScore))

	// A changed application invalidates the cached feedback.
	body["application"] = "Pray before work and at night"
	w = env.do(t, http.MethodPost, "/api/v1/verses/"+id+"/score", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody[map[string]any](t, w)["cached"])
	assert.Equal(t, 2, env.backend.CallCount(providers.OpScore))
}

func TestScoreVerse_UnknownVerse(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/verses/missing/score", map[string]string{"direct_quote": "q", "application": "a"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
