// Package server provides the public entry point for initializing the
// PatternForge engine server.
//
// It lives in pkg/ (not internal/) so embedders can compose the engine
// into their own process:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/patternforge/patternforge/internal/api"
	"github.com/patternforge/patternforge/internal/assembler"
	"github.com/patternforge/patternforge/internal/attachments"
	"github.com/patternforge/patternforge/internal/config"
	"github.com/patternforge/patternforge/internal/engine"
	"github.com/patternforge/patternforge/internal/provider"
	"github.com/patternforge/patternforge/internal/registry"
	"github.com/patternforge/patternforge/internal/sessions"
	"github.com/patternforge/patternforge/internal/tags"
	"github.com/patternforge/patternforge/internal/telemetry"
)

// Server holds the initialized PatternForge engine.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Engine is the pattern pipeline, exposed for embedders and the CLI.
	Engine *engine.Engine

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown: it flushes
	// telemetry and the session snapshot.
	ShutdownFunc func(context.Context) error
}

// New initializes the engine from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the engine with an explicit configuration.
func NewWithConfig(_ context.Context, cfg *config.Config) (*Server, error) {
	telemetryShutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	eng, sess, err := BuildEngine(cfg)
	if err != nil {
		return nil, err
	}

	router := api.NewRouter(cfg, eng)

	shutdown := func(ctx context.Context) error {
		sess.Shutdown()
		return telemetryShutdown(ctx)
	}

	return &Server{
		Handler:      router,
		Engine:       eng,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// BuildEngine wires the pattern pipeline without the HTTP layer. The CLI
// uses this directly for one-shot runs.
func BuildEngine(cfg *config.Config) (*engine.Engine, *sessions.Manager, error) {
	tagReg, err := tags.LoadFile(cfg.Patterns.TagsFile)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Patterns.TagsFile).Msg("Tag registry unavailable, continuing without tags")
		tagReg = tags.Empty()
	}

	reg, err := registry.Load(registry.DirReader{}, cfg.Patterns.BuiltinDir, cfg.Patterns.PrivateDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load pattern registry: %w", err)
	}

	var store sessions.Store
	if cfg.Sessions.DataDir != "" {
		fileStore, err := sessions.NewFileStore(cfg.Sessions.DataDir)
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.Sessions.DataDir).Msg("Session store unavailable, persistence disabled")
		} else {
			store = fileStore
		}
	}
	sess := sessions.NewManager(store, cfg.Sessions.Budget)

	invoker := provider.NewOpenRouter(
		cfg.Provider.Endpoint,
		cfg.Provider.APIKey,
		time.Duration(cfg.Provider.TimeoutSeconds)*time.Second,
	)

	asm := assembler.New(attachments.New())

	eng := engine.New(reg, tagReg, asm, invoker, sess)
	log.Info().
		Int("patterns", reg.Len()).
		Int("tags", tagReg.Len()).
		Msg("Engine initialized")
	return eng, sess, nil
}
