package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/versekeeper/versekeeper/internal/feedback"
	"github.com/versekeeper/versekeeper/internal/orchestrator"
	"github.com/versekeeper/versekeeper/internal/store"
	"github.com/versekeeper/versekeeper/internal/verseref"
	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

// DefaultTranslation is used when a request names none.
const DefaultTranslation = "ESV"

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Service *orchestrator.Service
	Store   store.Store
	Scorer  *feedback.Scorer
}

// New creates a new Handlers instance.
func New(svc *orchestrator.Service, s store.Store) *Handlers {
	return &Handlers{
		Service: svc,
		Store:   s,
		Scorer:  feedback.NewScorer(s, svc),
	}
}

// ── Providers ───────────────────────────────────────────────

// Configure applies a full settings batch. Providers missing from the batch
// are reset.
func (h *Handlers) Configure(w http.ResponseWriter, r *http.Request) {
	var settings models.AggregateSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h.Service.Configure(settings)
	respondJSON(w, http.StatusOK, h.status())
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

type statusResponse struct {
	Initialized         bool                 `json:"initialized"`
	InitializationError string               `json:"initialization_error,omitempty"`
	SelectedProvider    string               `json:"selected_provider,omitempty"`
	Stats               models.RegistryStats `json:"stats"`
	Latencies           map[string]int64     `json:"latencies_ms"`
}

func (h *Handlers) status() statusResponse {
	return statusResponse{
		Initialized:         h.Service.IsInitialized(),
		InitializationError: h.Service.InitializationError(),
		SelectedProvider:    h.Service.SelectedProvider(),
		Stats:               h.Service.Stats(),
		Latencies:           h.Service.Latencies(),
	}
}

func (h *Handlers) TestProvider(w http.ResponseWriter, r *http.Request) {
	ok := h.Service.Test(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       ok,
		"provider": h.Service.SelectedProvider(),
	})
}

func (h *Handlers) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Service.HealthCheck(r.Context()))
}

// ListProviders returns every registered provider, scripture-only first.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	all := h.Service.Registry().All()
	out := make([]models.ProviderDescriptor, 0, len(all))
	for _, p := range all {
		out = append(out, p.Descriptor())
	}
	respondJSON(w, http.StatusOK, out)
}

// ── Operations ──────────────────────────────────────────────

type scriptureRequest struct {
	Reference   string           `json:"reference"`
	Ref         *models.VerseRef `json:"ref,omitempty"`
	Translation string           `json:"translation"`
}

type scriptureResponse struct {
	Reference   string                  `json:"reference"`
	Translation string                  `json:"translation"`
	Verses      []models.ScriptureVerse `json:"verses"`
}

func (h *Handlers) FetchScripture(w http.ResponseWriter, r *http.Request) {
	var req scriptureRequest
	if !decode(w, r, &req) {
		return
	}

	var ref models.VerseRef
	if req.Ref != nil {
		ref = req.Ref.Normalize()
	} else {
		parsed, err := verseref.Parse(req.Reference)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		ref = parsed
	}
	translation := strings.TrimSpace(req.Translation)
	if translation == "" {
		translation = DefaultTranslation
	}

	res := h.Service.FetchScripture(r.Context(), ref, translation)
	if verses, ok := respondResult(w, res); ok {
		respondJSON(w, http.StatusOK, scriptureResponse{
			Reference:   ref.String(),
			Translation: translation,
			Verses:      verses,
		})
	}
}

type takeawayRequest struct {
	Reference string `json:"reference"`
	Takeaway  string `json:"takeaway,omitempty"`
}

func (h *Handlers) KeyTakeaway(w http.ResponseWriter, r *http.Request) {
	var req takeawayRequest
	if !decode(w, r, &req) {
		return
	}
	if takeaway, ok := respondResult(w, h.Service.GetKeyTakeaway(r.Context(), req.Reference)); ok {
		respondJSON(w, http.StatusOK, map[string]string{"reference": req.Reference, "takeaway": takeaway})
	}
}

func (h *Handlers) ValidateTakeaway(w http.ResponseWriter, r *http.Request) {
	var req takeawayRequest
	if !decode(w, r, &req) {
		return
	}
	if valid, ok := respondResult(w, h.Service.ValidateKeyTakeaway(r.Context(), req.Reference, req.Takeaway)); ok {
		respondJSON(w, http.StatusOK, map[string]any{"reference": req.Reference, "valid": valid})
	}
}

type scoreRequest struct {
	Reference   string `json:"reference"`
	DirectQuote string `json:"direct_quote"`
	Application string `json:"application"`
}

func (h *Handlers) Score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decode(w, r, &req) {
		return
	}
	if score, ok := respondResult(w, h.Service.GetAIScore(r.Context(), req.Reference, req.DirectQuote, req.Application)); ok {
		respondJSON(w, http.StatusOK, score)
	}
}

type searchResponse struct {
	Description string   `json:"description"`
	References  []string `json:"references"`
}

func (h *Handlers) SearchVerses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	refs, ok := respondResult(w, h.Service.FindVersesByDescription(r.Context(), req.Description))
	if !ok {
		return
	}
	out := searchResponse{Description: req.Description, References: make([]string, 0, len(refs))}
	for _, ref := range refs {
		out.References = append(out.References, ref.String())
	}
	respondJSON(w, http.StatusOK, out)
}

// ── Verse records ───────────────────────────────────────────

type createVerseRequest struct {
	Reference   string `json:"reference"`
	Translation string `json:"translation"`
}

func (h *Handlers) CreateVerse(w http.ResponseWriter, r *http.Request) {
	var req createVerseRequest
	if !decode(w, r, &req) {
		return
	}
	ref, err := verseref.Parse(req.Reference)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := &models.VerseRecord{Reference: ref, Translation: strings.TrimSpace(req.Translation)}
	if err := h.Store.CreateVerse(r.Context(), rec); err != nil {
		log.Error().Err(err).Msg("Failed to create verse")
		respondError(w, http.StatusInternalServerError, "failed to create verse")
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (h *Handlers) ListVerses(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		filter.Offset = v
	}
	verses, err := h.Store.ListVerses(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, verses)
}

func (h *Handlers) GetVerse(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetVerse(r.Context(), chi.URLParam(r, "verseId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *Handlers) DeleteVerse(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteVerse(r.Context(), chi.URLParam(r, "verseId")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScoreVerse scores a stored verse, reusing its cached feedback when the
// quote and application are unchanged.
func (h *Handlers) ScoreVerse(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decode(w, r, &req) {
		return
	}

	res := h.Scorer.Score(r.Context(), chi.URLParam(r, "verseId"), req.DirectQuote, req.Application)
	var nf *store.ErrNotFound
	if errors.As(res.Cause(), &nf) {
		respondError(w, http.StatusNotFound, nf.Error())
		return
	}
	if outcome, ok := respondResult(w, res); ok {
		respondJSON(w, http.StatusOK, outcome)
	}
}

// ── Helpers ─────────────────────────────────────────────────

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// respondResult writes the error response for a failed result and reports
// whether the caller should write the success body.
func respondResult[T any](w http.ResponseWriter, res result.Result[T]) (T, bool) {
	v, ok := res.Value()
	if ok {
		return v, true
	}
	status := http.StatusBadGateway
	switch res.Kind() {
	case result.KindInvalidInput:
		status = http.StatusBadRequest
	case result.KindCancelled:
		status = http.StatusServiceUnavailable
	case result.KindStorage:
		status = http.StatusInternalServerError
	}
	respondError(w, status, res.Message())
	return v, false
}

func respondStoreError(w http.ResponseWriter, err error) {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, nf.Error())
		return
	}
	log.Error().Err(err).Msg("Store error")
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
