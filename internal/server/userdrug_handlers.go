package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/korjavin/medcabinet/internal/rxnav"
)

func (s *Server) handleListUserDrugs(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	drugs, err := s.store.ListUserDrugs(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("list user drugs failed")
		writeError(w, http.StatusInternalServerError, "Unable to retrieve drugs")
		return
	}

	writeSuccess(w, http.StatusOK, "User drugs retrieved successfully", drugs)
}

// handleAddUserDrug validates the identifier, enriches it, and saves the
// record. A repeat add for the same pair is idempotent and answers 200
// instead of 201.
func (s *Server) handleAddUserDrug(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		RxCUI string `json:"rxcui"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.RxCUI = strings.TrimSpace(req.RxCUI)
	if req.RxCUI == "" {
		writeError(w, http.StatusUnprocessableEntity, "Field 'rxcui' is required")
		return
	}

	name, found, err := s.drugs.ValidateRxcui(r.Context(), req.RxCUI)
	if err != nil {
		if errors.Is(err, rxnav.ErrUnavailable) {
			writeError(w, http.StatusBadGateway, "Unable to add drug right now")
			return
		}
		s.log.Error().Err(err).Str("rxcui", req.RxCUI).Msg("rxcui validation failed")
		writeError(w, http.StatusInternalServerError, "Unable to add drug")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Unknown rxcui")
		return
	}

	attrs := s.drugs.FetchAttributes(r.Context(), req.RxCUI)

	record, created, err := s.store.FindOrCreateUserDrug(r.Context(), userID, req.RxCUI, name, attrs.BaseNames, attrs.DoseForms)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Str("rxcui", req.RxCUI).Msg("save drug failed")
		writeError(w, http.StatusInternalServerError, "Unable to add drug")
		return
	}

	if created {
		writeSuccess(w, http.StatusCreated, "Drug added successfully", record)
		return
	}
	writeSuccess(w, http.StatusOK, "Drug was already added", record)
}

func (s *Server) handleDeleteUserDrug(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	rxcui := r.PathValue("rxcui")
	removed, err := s.store.DeleteUserDrug(r.Context(), userID, rxcui)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Str("rxcui", rxcui).Msg("delete drug failed")
		writeError(w, http.StatusInternalServerError, "Unable to delete drug")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Drug not found")
		return
	}

	writeSuccess(w, http.StatusOK, "Drug deleted successfully", nil)
}
