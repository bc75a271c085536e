// Package server provides the public entry point for initializing the
// VerseKeeper server.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
//
// The versectl CLI uses NewService directly and never starts HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/versekeeper/versekeeper/internal/api"
	"github.com/versekeeper/versekeeper/internal/api/handlers"
	"github.com/versekeeper/versekeeper/internal/config"
	"github.com/versekeeper/versekeeper/internal/orchestrator"
	"github.com/versekeeper/versekeeper/internal/providers"
	"github.com/versekeeper/versekeeper/internal/registry"
	"github.com/versekeeper/versekeeper/internal/store"
	"github.com/versekeeper/versekeeper/internal/telemetry"
	"github.com/versekeeper/versekeeper/pkg/contracts"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized VerseKeeper server.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Service is the orchestrating facade behind every AI route.
	Service *orchestrator.Service

	// Store holds verse records (PostgreSQL or in-memory).
	Store store.Store

	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from the environment and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	svc, err := NewService(cfg.AI)
	if err != nil {
		dataStore.Close()
		shutdown(ctx)
		return nil, err
	}

	h := handlers.New(svc, dataStore)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Service:      svc,
		Store:        dataStore,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// Close releases the store and flushes telemetry.
func (s *Server) Close(ctx context.Context) error {
	return errors.Join(s.Store.Close(), s.ShutdownFunc(ctx))
}

// OpenStore connects to PostgreSQL when a URL is configured and falls back to
// the in-memory store otherwise.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.URL == "" {
		log.Info().Str("data_dir", cfg.DataDir).Msg("In-memory store initialized")
		return store.NewMemoryStore(cfg.DataDir), nil
	}

	pg, err := store.Connect(ctx, cfg.URL, cfg.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	log.Info().Msg("PostgreSQL store initialized")
	return pg, nil
}

// NewService registers every known provider, builds the facade and applies
// the configured settings. An unconfigured facade is not an error: settings
// can still arrive through POST /api/v1/configure.
func NewService(cfg config.AIConfig) (*orchestrator.Service, error) {
	reg := registry.New()
	if err := registerProviders(reg, cfg); err != nil {
		return nil, err
	}

	var opts []orchestrator.Option
	if cfg.AttemptTimeout > 0 {
		opts = append(opts, orchestrator.WithAttemptTimeout(cfg.AttemptTimeout))
	}
	opts = append(opts, orchestrator.WithScriptureCache(cfg.ScriptureCache))

	svc := orchestrator.New(reg, opts...)
	svc.Configure(cfg.Settings())
	return svc, nil
}

func registerProviders(reg *registry.Registry, cfg config.AIConfig) error {
	priority := func(id string, fallback int) int {
		if p, ok := cfg.Provider(id); ok {
			return p.Priority
		}
		return fallback
	}

	scripture := []contracts.ScriptureProvider{
		providers.NewESV(priority("esv", 1)),
		providers.NewBibleAPI(priority("bible-api", 2)),
		providers.NewBibleGateway(priority("biblegateway", 3)),
	}
	for _, p := range scripture {
		if err := reg.RegisterScripture(p); err != nil {
			return err
		}
	}

	mock, _ := providers.NewMock("mock", priority("mock", 99))
	ai := []contracts.AIProvider{
		providers.NewOpenAI(priority("openai", 1)),
		providers.NewAnthropic(priority("anthropic", 2)),
		providers.NewGemini(priority("gemini", 3)),
		providers.NewOllama(priority("ollama", 4)),
		mock,
	}
	for _, p := range ai {
		if err := reg.RegisterAI(p); err != nil {
			return err
		}
	}
	return nil
}
