package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/korjavin/medcabinet/internal/drug"
	"github.com/korjavin/medcabinet/internal/store"
)

// Config holds MCP server configuration. The server is scoped to a single
// local user; tools always act on UserID's saved list.
type Config struct {
	Port         int
	DatabasePath string
	UserID       int64
}

// LoadConfigFromEnv loads configuration from environment variables
func LoadConfigFromEnv() (*Config, error) {
	port, _ := strconv.Atoi(os.Getenv("MCP_PORT"))
	if port == 0 {
		port = 8081 // default
	}

	userID, _ := strconv.ParseInt(os.Getenv("MCP_USER_ID"), 10, 64)
	if userID == 0 {
		return nil, fmt.Errorf("MCP_USER_ID is required")
	}

	cfg := &Config{
		Port:         port,
		DatabasePath: os.Getenv("MCP_DATABASE_PATH"),
		UserID:       userID,
	}

	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("MCP_DATABASE_PATH is required")
	}

	return cfg, nil
}

// Server exposes the drug pipeline and the saved list as MCP tools.
type Server struct {
	config    *Config
	store     *store.Store
	drugs     *drug.Service
	mcpServer *mcp.Server
	log       zerolog.Logger
}

func NewServer(cfg *Config, st *store.Store, drugs *drug.Service, log zerolog.Logger) (*Server, error) {
	s := &Server{
		config: cfg,
		store:  st,
		drugs:  drugs,
		log:    log,
	}

	s.mcpServer = mcp.NewServer(
		&mcp.Implementation{
			Name:    "medcabinet-mcp",
			Version: "v1.0.0",
		},
		nil,
	)

	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "search_drugs",
			Description: "Search the RxNorm catalog for drug concepts by name. Returns up to 5 concepts with RXCUI, name, ingredients and dose forms.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "Drug name to search for"}
				},
				"required": ["name"]
			}`),
		},
		s.handleSearchDrugs,
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "drug_details",
			Description: "Validate an RXCUI and return its canonical name, active ingredients and dose forms.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"rxcui": {"type": "string", "description": "RxNorm concept identifier"}
				},
				"required": ["rxcui"]
			}`),
		},
		s.handleDrugDetails,
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "list_my_drugs",
			Description: "List the saved drugs for the configured user, most recently added first.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {}
			}`),
		},
		s.handleListMyDrugs,
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "add_drug",
			Description: "Save a drug to the configured user's list by RXCUI. Adding the same RXCUI twice is a no-op.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"rxcui": {"type": "string", "description": "RxNorm concept identifier"}
				},
				"required": ["rxcui"]
			}`),
		},
		s.handleAddDrug,
	)
}

// Run starts the HTTP server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
	mux.Handle("/mcp", sseHandler)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", s.config.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		s.log.Info().Msg("mcp server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", addr).Msg("mcp server starting")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
