// Package engine composes the pattern pipeline:
//
//	registry lookup → input resolution → prompt assembly →
//	model invocation → output classification → session append.
//
// Handlers and the CLI depend on this facade instead of wiring the
// stages themselves.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/patternforge/patternforge/internal/assembler"
	"github.com/patternforge/patternforge/internal/classifier"
	"github.com/patternforge/patternforge/internal/provider"
	"github.com/patternforge/patternforge/internal/registry"
	"github.com/patternforge/patternforge/internal/resolver"
	"github.com/patternforge/patternforge/internal/sessions"
	"github.com/patternforge/patternforge/internal/tags"
	"github.com/patternforge/patternforge/pkg/models"
)

// Engine owns the full pattern pipeline.
type Engine struct {
	registry  *registry.Registry
	tags      *tags.Registry
	assembler *assembler.Assembler
	invoker   provider.Invoker
	sessions  *sessions.Manager
}

// New wires an engine from its collaborators.
func New(
	reg *registry.Registry,
	tagReg *tags.Registry,
	asm *assembler.Assembler,
	invoker provider.Invoker,
	sess *sessions.Manager,
) *Engine {
	return &Engine{
		registry:  reg,
		tags:      tagReg,
		assembler: asm,
		invoker:   invoker,
		sessions:  sess,
	}
}

// RunRequest is one pattern invocation.
type RunRequest struct {
	PatternID string         `json:"pattern_id"`
	Inputs    map[string]any `json:"inputs,omitempty"`

	// SessionID folds prior session history into the payload and appends
	// the exchange on success. Empty means a one-shot run.
	SessionID string `json:"session_id,omitempty"`

	// Message is the user's chat message for session runs.
	Message string `json:"message,omitempty"`

	// ModelOverride wins field-by-field over the session override and the
	// pattern's own model configuration.
	ModelOverride *models.ModelConfig `json:"model_override,omitempty"`
}

// RunResult is the classified outcome of one invocation.
type RunResult struct {
	Outputs   *models.ResolvedOutputs `json:"outputs"`
	Model     string                  `json:"model"`
	Usage     provider.TokenUsage     `json:"usage"`
	SessionID string                  `json:"session_id,omitempty"`
	ElapsedMs int64                   `json:"elapsed_ms"`
}

// PatternMismatchError is returned when a session-scoped run names a
// different pattern than the one the session was created for.
type PatternMismatchError struct {
	SessionID      string
	SessionPattern string
	RequestPattern string
}

func (e *PatternMismatchError) Error() string {
	return "session " + e.SessionID + " belongs to pattern " + e.SessionPattern +
		", not " + e.RequestPattern
}

// Run executes one pattern invocation end to end. Session history is
// appended only after the model responds and the response classifies
// cleanly: a timeout, provider failure, or contract violation leaves the
// session exactly as it was.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := time.Now()

	pattern, err := e.registry.Get(req.PatternID)
	if err != nil {
		return nil, err
	}

	resolved, err := resolver.Resolve(pattern, req.Inputs)
	if err != nil {
		return nil, err
	}

	override := req.ModelOverride
	var history []models.Turn
	var userTurn *models.Turn
	if req.SessionID != "" {
		history, override, err = e.sessionContext(req.PatternID, req.SessionID, req.ModelOverride)
		if err != nil {
			return nil, err
		}
		if req.Message != "" {
			userTurn = &models.Turn{
				Role:      models.RoleUser,
				Content:   req.Message,
				Timestamp: time.Now().UTC(),
			}
			history = append(history, *userTurn)
		}
	}

	payload, err := e.assembler.Assemble(ctx, pattern, resolved, history, override)
	if err != nil {
		return nil, err
	}

	resp, err := e.invoker.Invoke(ctx, payload)
	if err != nil {
		return nil, err
	}

	outputs, err := classifier.Classify(pattern, resp.Content)
	if err != nil {
		return nil, err
	}

	if req.SessionID != "" && userTurn != nil {
		assistantTurn := models.Turn{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			Timestamp: time.Now().UTC(),
		}
		if err := e.sessions.AppendExchange(req.SessionID, *userTurn, assistantTurn); err != nil {
			return nil, err
		}
	}

	elapsed := time.Since(start)
	log.Info().
		Str("pattern", pattern.ID).
		Str("model", resp.Model).
		Int64("tokens", resp.Usage.TotalTokens).
		Dur("elapsed", elapsed).
		Msg("Pattern run complete")

	return &RunResult{
		Outputs:   outputs,
		Model:     resp.Model,
		Usage:     resp.Usage,
		SessionID: req.SessionID,
		ElapsedMs: elapsed.Milliseconds(),
	}, nil
}

// ResolveAndAssemble runs the pipeline up to the provider boundary:
// registry lookup, input resolution, session history fetch, and prompt
// assembly. Callers get the exact payload an invocation would send,
// without invoking the model.
func (e *Engine) ResolveAndAssemble(ctx context.Context, patternID string, inputs map[string]any, sessionID string) (*models.Payload, error) {
	pattern, err := e.registry.Get(patternID)
	if err != nil {
		return nil, err
	}

	resolved, err := resolver.Resolve(pattern, inputs)
	if err != nil {
		return nil, err
	}

	var history []models.Turn
	var override *models.ModelConfig
	if sessionID != "" {
		history, override, err = e.sessionContext(patternID, sessionID, nil)
		if err != nil {
			return nil, err
		}
	}

	return e.assembler.Assemble(ctx, pattern, resolved, history, override)
}

// ClassifyResponse checks a raw model response against a pattern's
// output contract and returns the typed output slots.
func (e *Engine) ClassifyResponse(patternID, raw string) (*models.ResolvedOutputs, error) {
	pattern, err := e.registry.Get(patternID)
	if err != nil {
		return nil, err
	}
	return classifier.Classify(pattern, raw)
}

// sessionContext validates a session against the requested pattern and
// returns its history plus the model override merged session-then-request.
func (e *Engine) sessionContext(patternID, sessionID string, reqOverride *models.ModelConfig) ([]models.Turn, *models.ModelConfig, error) {
	session, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Closed {
		return nil, nil, &sessions.ClosedError{ID: session.ID}
	}
	if session.PatternID != patternID {
		return nil, nil, &PatternMismatchError{
			SessionID:      session.ID,
			SessionPattern: session.PatternID,
			RequestPattern: patternID,
		}
	}

	override := reqOverride
	if session.ModelOverride != nil {
		merged := session.ModelOverride.Merged(reqOverride)
		override = &merged
	}
	return session.Turns, override, nil
}

// ── Catalog passthrough ──────────────────────────────────────

// ListPatterns returns pattern summaries, optionally tag-filtered.
func (e *Engine) ListPatterns(filterTags []string) []models.PatternSummary {
	return e.registry.List(filterTags)
}

// GetPattern returns one definition, surfacing load failures.
func (e *Engine) GetPattern(id string) (*models.PatternDefinition, error) {
	return e.registry.Get(id)
}

// Tags returns the tag registry.
func (e *Engine) Tags() *tags.Registry {
	return e.tags
}

// ── Session passthrough ──────────────────────────────────────

// CreateSession opens a session bound to a pattern after verifying the
// pattern exists.
func (e *Engine) CreateSession(patternID string, override *models.ModelConfig) (*models.ChatSession, error) {
	if _, err := e.registry.Get(patternID); err != nil {
		return nil, err
	}
	return e.sessions.Create(patternID, override), nil
}

// GetSession returns a session copy.
func (e *Engine) GetSession(id string) (*models.ChatSession, error) {
	return e.sessions.Get(id)
}

// ListSessions returns every session, newest first.
func (e *Engine) ListSessions() []*models.ChatSession {
	return e.sessions.List()
}

// CloseSession marks a session closed.
func (e *Engine) CloseSession(id string) error {
	return e.sessions.Close(id)
}

// DeleteSession removes a session.
func (e *Engine) DeleteSession(id string) error {
	return e.sessions.Delete(id)
}
