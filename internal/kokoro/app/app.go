// Package app wires all Kokoro subsystems and runs the HTTP API: persona
// management, chat turns and conversation history.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bdobrica/Kokoro/common/retry"
	"github.com/bdobrica/Kokoro/internal/kokoro/catalog"
	"github.com/bdobrica/Kokoro/internal/kokoro/llm"
	"github.com/bdobrica/Kokoro/internal/kokoro/observability"
	"github.com/bdobrica/Kokoro/internal/kokoro/store"
	"github.com/bdobrica/Kokoro/internal/kokoro/turn"
)

// Config holds the Kokoro application configuration. All values are
// typically loaded from environment variables by cmd/kokoro/main.go.
type Config struct {
	// DatabasePath is the path to the SQLite database file.
	DatabasePath string

	// ListenAddr is the TCP address for the HTTP API. Defaults to ":8080".
	ListenAddr string

	// APIToken, when non-empty, is the bearer token clients must supply in
	// the Authorization header. When empty, authentication is disabled
	// (dev/test mode).
	APIToken string

	// CatalogDir is an optional directory of persona YAML files seeded into
	// the store at startup.
	CatalogDir string

	// LLM holds the model provider settings.
	LLM LLMConfig

	// LogLevel is "debug", "info", "warn", or "error". Defaults to "info".
	LogLevel string
	// LogFormat is "text" or "json". Defaults to "text".
	LogFormat string
}

// LLMConfig configures the language model backend.
type LLMConfig struct {
	// APIKey is the API key for the provider.
	APIKey string
	// BaseURL overrides the API base URL (e.g. DeepSeek or local Ollama).
	BaseURL string
	// Model is the default model identifier.
	Model string
	// MaxRetries is how many times a transient completion failure is retried
	// before the turn degrades to the apology reply. 0 = library default.
	MaxRetries int
}

// App is the main Kokoro application.
type App struct {
	cfg        *Config
	db         *store.Store
	controller *turn.Controller
	server     *Server
	startedAt  time.Time
}

// New creates and initialises all Kokoro subsystems. It does NOT start any
// goroutines; call Run() for that.
func New(cfg *Config) (*App, error) {
	observability.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider := llm.NewRetrying(
		llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		}),
		retry.Config{MaxAttempts: cfg.LLM.MaxRetries},
	)

	a := &App{
		cfg:        cfg,
		db:         db,
		controller: turn.NewController(db, provider),
		startedAt:  time.Now(),
	}

	if cfg.CatalogDir != "" {
		n, err := catalog.Seed(context.Background(), os.DirFS(cfg.CatalogDir), ".", db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		slog.Info("persona catalog seeded", "dir", cfg.CatalogDir, "personas", n)
	}

	a.server = NewServer(cfg.ListenAddr, cfg.APIToken, db, a.controller, a.startedAt)
	return a, nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.server.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	<-ctx.Done()
	slog.Info("shutting down")
	a.server.Stop()
	return a.db.Close()
}
