package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ADEPT-ML/Backend/internal/analysis"
	"github.com/ADEPT-ML/Backend/internal/api"
	"github.com/ADEPT-ML/Backend/internal/audit"
	"github.com/ADEPT-ML/Backend/internal/session"
	"github.com/ADEPT-ML/Backend/internal/upstream"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("backend exited")
	}
}

func run() error {
	ctx := context.Background()
	rawAddr := env("BACKEND_BIND", ":8080")
	addr := sanitizeListenAddr(rawAddr)
	if addr != rawAddr {
		log.Warn().
			Str("raw", rawAddr).
			Str("sanitized", addr).
			Msg("sanitized BACKEND_BIND; remove inline comments from address")
	}

	client := upstream.NewClient(
		env("DATA_SERVICE_URL", "http://data-management"),
		env("DETECTION_SERVICE_URL", "http://anomaly-detection"),
		env("EXPLAINABILITY_SERVICE_URL", "http://explainability"),
		durEnv("UPSTREAM_TIMEOUT", 0),
		log.With().Str("component", "upstream").Logger(),
	)

	sessions := session.NewStore(intEnv("SESSION_MAX", 1024), durEnv("SESSION_TTL", 12*time.Hour))

	var recorder analysis.Recorder
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		store, err := audit.NewStore(ctx, dsn)
		if err != nil {
			return fmt.Errorf("init audit store: %w", err)
		}
		defer store.Close()
		recorder = store
		log.Info().Msg("detection run auditing enabled")
	}

	orchestrator := analysis.New(client, sessions, recorder,
		log.With().Str("component", "orchestrator").Logger())
	server := api.NewServer(orchestrator, client,
		log.With().Str("component", "api").Logger())

	log.Info().Str("addr", addr).Msg("backend listening")
	return http.ListenAndServe(addr, server.Routes())
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func durEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return def
}

// sanitizeListenAddr trims whitespace/comments so malformed env values (e.g. ":8080 :: note") do not break net.Listen.
func sanitizeListenAddr(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return trimmed
	}
	fields := strings.Fields(trimmed)
	if len(fields) > 0 {
		trimmed = fields[0]
	}
	trimmed = strings.Trim(trimmed, "\"'")
	return trimmed
}
