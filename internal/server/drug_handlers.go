package server

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/korjavin/medcabinet/internal/rxnav"
)

type searchItem struct {
	RxCUI     string   `json:"rxcui"`
	Name      string   `json:"name"`
	BaseNames []string `json:"base_names"`
	DoseForms []string `json:"dose_forms"`
}

// handleSearchDrugs resolves a drug name to its top concepts and augments
// each with ingredients and dose forms. Enrichment is fanned out per
// concept; it is best-effort, so a degraded concept just carries empty
// lists.
func (s *Server) handleSearchDrugs(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusUnprocessableEntity, "Query parameter 'name' is required")
		return
	}

	concepts, err := s.drugs.SearchTopConcepts(r.Context(), name)
	if err != nil {
		if errors.Is(err, rxnav.ErrUnavailable) {
			writeError(w, http.StatusBadGateway, "Unable to search drugs right now")
			return
		}
		s.log.Error().Err(err).Str("name", name).Msg("drug search failed")
		writeError(w, http.StatusInternalServerError, "Unable to search drugs")
		return
	}

	items := make([]searchItem, len(concepts))
	g, ctx := errgroup.WithContext(r.Context())
	for i, c := range concepts {
		g.Go(func() error {
			attrs := s.drugs.FetchAttributes(ctx, c.RxCUI)
			items[i] = searchItem{
				RxCUI:     c.RxCUI,
				Name:      c.Name,
				BaseNames: attrs.BaseNames,
				DoseForms: attrs.DoseForms,
			}
			return nil
		})
	}
	g.Wait()

	writeSuccess(w, http.StatusOK, "Drug search completed successfully", map[string]any{
		"count": len(items),
		"items": items,
	})
}
