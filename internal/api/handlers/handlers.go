// Package handlers implements the HTTP handlers for the PatternForge
// REST API. Every handler depends on the engine facade; pipeline errors
// are mapped onto HTTP statuses by kind, with structured bodies for
// validation and classification failures.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/patternforge/patternforge/internal/classifier"
	"github.com/patternforge/patternforge/internal/engine"
	"github.com/patternforge/patternforge/internal/provider"
	"github.com/patternforge/patternforge/internal/registry"
	"github.com/patternforge/patternforge/internal/resolver"
	"github.com/patternforge/patternforge/internal/sessions"
	"github.com/patternforge/patternforge/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine *engine.Engine
}

// New creates a Handlers instance.
func New(e *engine.Engine) *Handlers {
	return &Handlers{Engine: e}
}

// ── Pattern Handlers ─────────────────────────────────────────

// ListPatterns returns pattern summaries. Repeated or comma-separated
// "tag" query parameters filter with OR semantics.
func (h *Handlers) ListPatterns(w http.ResponseWriter, r *http.Request) {
	var filter []string
	for _, raw := range r.URL.Query()["tag"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter = append(filter, tag)
			}
		}
	}

	patterns := h.Engine.ListPatterns(filter)
	if patterns == nil {
		patterns = []models.PatternSummary{}
	}
	respondJSON(w, http.StatusOK, patterns)
}

func (h *Handlers) GetPattern(w http.ResponseWriter, r *http.Request) {
	def, err := h.Engine.GetPattern(chi.URLParam(r, "patternID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

type runRequest struct {
	Inputs        map[string]any      `json:"inputs"`
	SessionID     string              `json:"session_id,omitempty"`
	Message       string              `json:"message,omitempty"`
	ModelOverride *models.ModelConfig `json:"model_override,omitempty"`
}

// RunPattern executes one pattern invocation.
func (h *Handlers) RunPattern(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.Engine.Run(r.Context(), engine.RunRequest{
		PatternID:     chi.URLParam(r, "patternID"),
		Inputs:        req.Inputs,
		SessionID:     req.SessionID,
		Message:       req.Message,
		ModelOverride: req.ModelOverride,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type assembleRequest struct {
	Inputs    map[string]any `json:"inputs"`
	SessionID string         `json:"session_id,omitempty"`
}

// AssemblePayload resolves inputs and assembles the provider payload
// without invoking a model. Useful for inspecting the exact prompt an
// invocation would send.
func (h *Handlers) AssemblePayload(w http.ResponseWriter, r *http.Request) {
	var req assembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payload, err := h.Engine.ResolveAndAssemble(r.Context(), chi.URLParam(r, "patternID"), req.Inputs, req.SessionID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

type classifyRequest struct {
	Response string `json:"response"`
}

// ClassifyResponse checks a raw model response against a pattern's
// output contract and returns the typed output slots.
func (h *Handlers) ClassifyResponse(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Response == "" {
		respondError(w, http.StatusBadRequest, "response is required")
		return
	}

	outputs, err := h.Engine.ClassifyResponse(chi.URLParam(r, "patternID"), req.Response)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outputs)
}

// ListTags returns tag definitions grouped by category.
func (h *Handlers) ListTags(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Engine.Tags().ByCategory())
}

// ── Session Handlers ─────────────────────────────────────────

type createSessionRequest struct {
	PatternID     string              `json:"pattern_id"`
	ModelOverride *models.ModelConfig `json:"model_override,omitempty"`
}

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PatternID == "" {
		respondError(w, http.StatusBadRequest, "pattern_id is required")
		return
	}

	session, err := h.Engine.CreateSession(req.PatternID, req.ModelOverride)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	list := h.Engine.ListSessions()
	if list == nil {
		list = []*models.ChatSession{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.Engine.GetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

type messageRequest struct {
	Message       string              `json:"message"`
	Inputs        map[string]any      `json:"inputs,omitempty"`
	ModelOverride *models.ModelConfig `json:"model_override,omitempty"`
}

// PostMessage runs the session's pattern with a new user message.
func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	session, err := h.Engine.GetSession(sessionID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	result, err := h.Engine.Run(r.Context(), engine.RunRequest{
		PatternID:     session.PatternID,
		Inputs:        req.Inputs,
		SessionID:     sessionID,
		Message:       req.Message,
		ModelOverride: req.ModelOverride,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.CloseSession(chi.URLParam(r, "sessionID")); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteSession(chi.URLParam(r, "sessionID")); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Error mapping ────────────────────────────────────────────

// respondEngineError maps pipeline errors onto HTTP statuses:
//
//	unknown pattern or session        → 404
//	malformed pattern document        → 422 (the load error, verbatim)
//	input validation                  → 400 with field and group details
//	closed session                    → 409
//	session bound to another pattern  → 409
//	provider failure or bad response  → 502
//	invocation timeout                → 504
func respondEngineError(w http.ResponseWriter, err error) {
	var (
		patternNotFound *registry.NotFoundError
		sessionNotFound *sessions.NotFoundError
		loadErr         *registry.LoadError
		validationErr   *resolver.ValidationError
		closedErr       *sessions.ClosedError
		mismatchErr     *engine.PatternMismatchError
		classifyErr     *classifier.ClassificationError
		providerErr     *provider.Error
	)

	switch {
	case errors.As(err, &patternNotFound), errors.As(err, &sessionNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &loadErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "pattern failed to load",
			"pattern_id": loadErr.PatternID,
			"reason":     loadErr.Reason,
		})
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "input validation failed",
			"fields": validationErr.Fields,
			"groups": validationErr.Groups,
		})
	case errors.As(err, &closedErr), errors.As(err, &mismatchErr):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &classifyErr):
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "model response violates the output contract",
			"reason":  classifyErr.Reason,
			"missing": classifyErr.Missing,
			"schema":  classifyErr.Schema,
		})
	case errors.As(err, &providerErr):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "model invocation timed out")
	default:
		log.Error().Err(err).Msg("Unhandled engine error")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
