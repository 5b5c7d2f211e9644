// Kokoro is the conversational persona engine binary.
//
// All configuration is loaded from environment variables. The server opens
// its SQLite database, seeds personas from the optional catalog directory,
// and serves the HTTP chat API.
//
// Required environment variables:
//
//	LLM_API_KEY           - API key for the model provider
//
// Optional environment variables:
//
//	KOKORO_DB_PATH        - path to the SQLite database (default: /data/kokoro.db)
//	KOKORO_LISTEN_ADDR    - HTTP API listen address (default ":8080")
//	KOKORO_API_TOKEN      - bearer token required on API requests (default: none)
//	KOKORO_CATALOG_DIR    - directory of persona YAML files to seed at startup
//	LLM_BASE_URL          - override model API base URL (e.g. for DeepSeek or Ollama)
//	LLM_MODEL             - model name (default: "deepseek-v3")
//	LLM_MAX_RETRIES       - retries per completion before degrading (default: 3)
//	LOG_LEVEL             - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT            - "text" or "json" (default: "text")
package main

import (
	"log/slog"
	"os"

	"github.com/bdobrica/Kokoro/common/environment"
	"github.com/bdobrica/Kokoro/internal/kokoro/app"
)

func main() {
	apiKey, err := environment.RequiredString("LLM_API_KEY")
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	cfg := &app.Config{
		DatabasePath: environment.StringOr("KOKORO_DB_PATH", "/data/kokoro.db"),
		ListenAddr:   environment.StringOr("KOKORO_LISTEN_ADDR", ":8080"),
		APIToken:     os.Getenv("KOKORO_API_TOKEN"),
		CatalogDir:   os.Getenv("KOKORO_CATALOG_DIR"),
		LogLevel:     environment.StringOr("LOG_LEVEL", "info"),
		LogFormat:    environment.StringOr("LOG_FORMAT", "text"),
		LLM: app.LLMConfig{
			APIKey:     apiKey,
			BaseURL:    os.Getenv("LLM_BASE_URL"),
			Model:      environment.StringOr("LLM_MODEL", "deepseek-v3"),
			MaxRetries: environment.IntOr("LLM_MAX_RETRIES", 3),
		},
	}

	kokoro, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize Kokoro", "err", err)
		os.Exit(1)
	}

	if err := kokoro.Run(); err != nil {
		slog.Error("Kokoro exited with error", "err", err)
		os.Exit(1)
	}
}
