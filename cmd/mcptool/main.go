package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/korjavin/medcabinet/internal/cache"
	"github.com/korjavin/medcabinet/internal/drug"
	"github.com/korjavin/medcabinet/internal/mcp"
	"github.com/korjavin/medcabinet/internal/rxnav"
	"github.com/korjavin/medcabinet/internal/store"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "mcp").Logger()

	cfg, err := mcp.LoadConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer st.Close()

	ttlSeconds, _ := strconv.Atoi(os.Getenv("RXNAV_CACHE_TTL_SECONDS"))
	if ttlSeconds == 0 {
		ttlSeconds = 3600
	}

	client := rxnav.New(rxnav.Config{BaseURL: os.Getenv("RXNAV_BASE_URL")})
	drugs := drug.NewService(client, cache.New(), time.Duration(ttlSeconds)*time.Second, logger)

	server, err := mcp.NewServer(cfg, st, drugs, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	if err := server.Run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
