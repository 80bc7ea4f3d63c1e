package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/korjavin/medcabinet/internal/drug"
	"github.com/korjavin/medcabinet/internal/store"
)

type Server struct {
	store     *store.Store
	drugs     *drug.Service
	jwtSecret []byte
	log       zerolog.Logger
}

func New(s *store.Store, drugs *drug.Service, jwtSecret []byte, log zerolog.Logger) *Server {
	return &Server{
		store:     s,
		drugs:     drugs,
		jwtSecret: jwtSecret,
		log:       log,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Public routes
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/search-drugs", s.handleSearchDrugs)

	// Saved-drug routes require a bearer token
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/user-drugs", s.handleListUserDrugs)
	protected.HandleFunc("POST /api/user-drugs", s.handleAddUserDrug)
	protected.HandleFunc("DELETE /api/user-drugs/{rxcui}", s.handleDeleteUserDrug)

	authMW := AuthMiddleware(s.jwtSecret)
	mux.Handle("/api/user-drugs", authMW(protected))
	mux.Handle("/api/user-drugs/", authMW(protected))

	return mux
}

// -- Response envelope --

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeSuccess(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(envelope{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(envelope{Status: "error", Message: message})
}
