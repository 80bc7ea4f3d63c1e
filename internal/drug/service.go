package drug

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/korjavin/medcabinet/internal/cache"
	"github.com/korjavin/medcabinet/internal/rxnav"
)

// Concept is one drug product returned by a name search.
type Concept struct {
	RxCUI string `json:"rxcui"`
	Name  string `json:"name"`
}

// Attributes are the secondary properties fetched per concept: active base
// ingredients and dose-form groups. Both lists are deduplicated in
// first-seen order with empty entries dropped.
type Attributes struct {
	BaseNames []string `json:"base_names"`
	DoseForms []string `json:"dose_forms"`
}

// Catalog is the upstream surface the pipeline needs. *rxnav.Client
// satisfies it; tests substitute fakes.
type Catalog interface {
	SearchDrugs(ctx context.Context, name string) (*rxnav.SearchResponse, error)
	LookupRxcui(ctx context.Context, rxcui string) (*rxnav.IDResponse, error)
	HistoryStatus(ctx context.Context, rxcui string) (*rxnav.HistoryResponse, error)
}

// DefaultPreferredTTY is the concept-class priority used to pick which
// search result group to surface: branded drug, brand pack, clinical drug.
var DefaultPreferredTTY = []string{"SBD", "BPCK", "SCD"}

// DefaultLimit caps how many concepts a search returns.
const DefaultLimit = 5

// Service is the lookup/enrichment pipeline over the drug catalog. Every
// upstream call goes through the cache.
type Service struct {
	catalog      Catalog
	cache        *cache.Cache
	ttl          time.Duration
	limit        int
	preferredTTY []string
	log          zerolog.Logger
}

func NewService(catalog Catalog, c *cache.Cache, ttl time.Duration, log zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Service{
		catalog:      catalog,
		cache:        c,
		ttl:          ttl,
		limit:        DefaultLimit,
		preferredTTY: DefaultPreferredTTY,
		log:          log,
	}
}

// SetLimit overrides the search result cap.
func (s *Service) SetLimit(limit int) {
	if limit > 0 {
		s.limit = limit
	}
}

// SetPreferredTTY overrides the concept-class priority order.
func (s *Service) SetPreferredTTY(tty []string) {
	if len(tty) > 0 {
		s.preferredTTY = tty
	}
}

// SearchTopConcepts returns the top concepts for a drug name, taken from
// the first result group whose class matches the preferred-TTY priority
// list. No matching group means an empty result, not an error; groups of
// unpreferred classes are never used as a fallback.
func (s *Service) SearchTopConcepts(ctx context.Context, name string) ([]Concept, error) {
	key := "search:" + strings.ToLower(strings.TrimSpace(name))

	v, err := s.cache.GetOrCompute(ctx, key, s.ttl, func(ctx context.Context) (any, error) {
		resp, err := s.catalog.SearchDrugs(ctx, name)
		if err != nil {
			s.log.Warn().Err(err).Str("name", name).Msg("drug search failed")
			return nil, err
		}
		return s.pickConcepts(resp), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Concept), nil
}

func (s *Service) pickConcepts(resp *rxnav.SearchResponse) []Concept {
	groups := resp.DrugGroup.ConceptGroup

	var props []rxnav.ConceptProperty
scan:
	for _, tty := range s.preferredTTY {
		for _, g := range groups {
			if g.TTY == tty {
				props = g.ConceptProperties
				break scan
			}
		}
	}

	if len(props) > s.limit {
		props = props[:s.limit]
	}

	concepts := make([]Concept, 0, len(props))
	for _, p := range props {
		concepts = append(concepts, Concept{RxCUI: p.RxCUI, Name: p.Name})
	}
	return concepts
}

// ValidateRxcui checks that an identifier exists in the catalog and returns
// its canonical name. An unknown identifier is a normal outcome
// (found=false); the negative result is cached at the same TTL so repeated
// lookups of a bad identifier stay cheap. Only upstream unavailability is
// an error.
func (s *Service) ValidateRxcui(ctx context.Context, rxcui string) (string, bool, error) {
	key := "validate:" + rxcui

	v, err := s.cache.GetOrCompute(ctx, key, s.ttl, func(ctx context.Context) (any, error) {
		resp, err := s.catalog.LookupRxcui(ctx, rxcui)
		if err != nil {
			s.log.Warn().Err(err).Str("rxcui", rxcui).Msg("rxcui validation failed")
			return nil, err
		}
		return resp.IDGroup.Name, nil
	})
	if err != nil {
		return "", false, err
	}
	name := v.(string)
	return name, name != "", nil
}

// FetchAttributes returns the ingredient and dose-form lists for a
// validated identifier. Enrichment is best-effort: missing structure in
// the payload yields empty lists and a transport failure degrades to an
// empty result without populating the cache.
func (s *Service) FetchAttributes(ctx context.Context, rxcui string) Attributes {
	key := "attrs:" + rxcui

	v, err := s.cache.GetOrCompute(ctx, key, s.ttl, func(ctx context.Context) (any, error) {
		resp, err := s.catalog.HistoryStatus(ctx, rxcui)
		if err != nil {
			return nil, err
		}
		return extractAttributes(resp), nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("rxcui", rxcui).Msg("enrichment degraded to empty")
		return Attributes{BaseNames: []string{}, DoseForms: []string{}}
	}
	return v.(Attributes)
}

// extractAttributes reads the ingredient and dose-form lists from whichever
// placement the upstream used: directly under the status history block, or
// nested under definitionalFeatures.
func extractAttributes(resp *rxnav.HistoryResponse) Attributes {
	feats := resp.StatusHistory.HistoryFeatures
	if len(feats.IngredientAndStrength) == 0 && len(feats.DoseFormGroupConcept) == 0 {
		feats = resp.StatusHistory.DefinitionalFeatures
	}

	baseNames := []string{}
	for _, ing := range feats.IngredientAndStrength {
		baseNames = appendUnique(baseNames, ing.BaseName)
	}

	doseForms := []string{}
	for _, dfg := range feats.DoseFormGroupConcept {
		doseForms = appendUnique(doseForms, dfg.DoseFormGroupName)
	}

	return Attributes{BaseNames: baseNames, DoseForms: doseForms}
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
