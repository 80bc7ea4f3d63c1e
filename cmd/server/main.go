package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/korjavin/medcabinet/internal/cache"
	"github.com/korjavin/medcabinet/internal/drug"
	"github.com/korjavin/medcabinet/internal/rxnav"
	"github.com/korjavin/medcabinet/internal/server"
	"github.com/korjavin/medcabinet/internal/store"
)

func main() {
	// 1. Config
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		logger = logger.Level(lvl)
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "medcabinet.db"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is required. Generate one with: openssl rand -base64 32")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	rxnavCfg := rxnav.Config{
		BaseURL:    os.Getenv("RXNAV_BASE_URL"),
		Timeout:    envDurationMs("RXNAV_TIMEOUT_MS", 8000),
		Retries:    uint64(envInt("RXNAV_RETRIES", 2)),
		RetryDelay: envDurationMs("RXNAV_RETRY_DELAY_MS", 200),
	}
	cacheTTL := time.Duration(envInt("RXNAV_CACHE_TTL_SECONDS", 3600)) * time.Second

	// 2. Store
	s, err := store.New(dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer s.Close()
	logger.Info().Str("path", dbPath).Msg("database initialized")

	// 3. Lookup pipeline
	client := rxnav.New(rxnavCfg)
	drugs := drug.NewService(client, cache.New(), cacheTTL, logger)

	// 4. Server
	srv := server.New(s, drugs, []byte(jwtSecret), logger)

	addr := ":" + port
	logger.Info().Str("addr", addr).Msg("server starting")

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	if err := httpServer.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func envDurationMs(key string, defMs int) time.Duration {
	return time.Duration(envInt(key, defMs)) * time.Millisecond
}
