package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchInput is the input for the search_drugs tool
type SearchInput struct {
	Name string `json:"name"`
}

// DrugResult represents one drug concept in a tool response
type DrugResult struct {
	RxCUI     string   `json:"rxcui"`
	Name      string   `json:"name"`
	BaseNames []string `json:"base_names"`
	DoseForms []string `json:"dose_forms"`
}

// SearchResponse is the response for the search_drugs tool
type SearchResponse struct {
	Items []DrugResult `json:"items"`
	Count int          `json:"count"`
}

func (s *Server) handleSearchDrugs(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchResponse, error) {
	if input.Name == "" {
		return nil, SearchResponse{}, fmt.Errorf("name is required")
	}

	concepts, err := s.drugs.SearchTopConcepts(ctx, input.Name)
	if err != nil {
		s.log.Warn().Err(err).Str("name", input.Name).Msg("mcp drug search failed")
		return nil, SearchResponse{}, err
	}

	items := make([]DrugResult, 0, len(concepts))
	for _, c := range concepts {
		attrs := s.drugs.FetchAttributes(ctx, c.RxCUI)
		items = append(items, DrugResult{
			RxCUI:     c.RxCUI,
			Name:      c.Name,
			BaseNames: attrs.BaseNames,
			DoseForms: attrs.DoseForms,
		})
	}

	return nil, SearchResponse{Items: items, Count: len(items)}, nil
}

// RxcuiInput is the input for tools keyed by identifier
type RxcuiInput struct {
	RxCUI string `json:"rxcui"`
}

// DetailsResponse is the response for the drug_details tool
type DetailsResponse struct {
	Found bool       `json:"found"`
	Drug  DrugResult `json:"drug,omitempty"`
}

func (s *Server) handleDrugDetails(ctx context.Context, req *mcp.CallToolRequest, input RxcuiInput) (*mcp.CallToolResult, DetailsResponse, error) {
	if input.RxCUI == "" {
		return nil, DetailsResponse{}, fmt.Errorf("rxcui is required")
	}

	name, found, err := s.drugs.ValidateRxcui(ctx, input.RxCUI)
	if err != nil {
		return nil, DetailsResponse{}, err
	}
	if !found {
		return nil, DetailsResponse{Found: false}, nil
	}

	attrs := s.drugs.FetchAttributes(ctx, input.RxCUI)
	return nil, DetailsResponse{
		Found: true,
		Drug: DrugResult{
			RxCUI:     input.RxCUI,
			Name:      name,
			BaseNames: attrs.BaseNames,
			DoseForms: attrs.DoseForms,
		},
	}, nil
}

// ListResponse is the response for the list_my_drugs tool
type ListResponse struct {
	Drugs []DrugResult `json:"drugs"`
	Count int          `json:"count"`
}

func (s *Server) handleListMyDrugs(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, ListResponse, error) {
	saved, err := s.store.ListUserDrugs(ctx, s.config.UserID)
	if err != nil {
		s.log.Warn().Err(err).Msg("mcp list drugs failed")
		return nil, ListResponse{}, err
	}

	drugs := make([]DrugResult, 0, len(saved))
	for _, d := range saved {
		drugs = append(drugs, DrugResult{
			RxCUI:     d.RxCUI,
			Name:      d.Name,
			BaseNames: d.BaseNames,
			DoseForms: d.DoseForms,
		})
	}

	return nil, ListResponse{Drugs: drugs, Count: len(drugs)}, nil
}

// AddResponse is the response for the add_drug tool
type AddResponse struct {
	Added   bool       `json:"added"`
	Message string     `json:"message"`
	Drug    DrugResult `json:"drug,omitempty"`
}

func (s *Server) handleAddDrug(ctx context.Context, req *mcp.CallToolRequest, input RxcuiInput) (*mcp.CallToolResult, AddResponse, error) {
	if input.RxCUI == "" {
		return nil, AddResponse{}, fmt.Errorf("rxcui is required")
	}

	name, found, err := s.drugs.ValidateRxcui(ctx, input.RxCUI)
	if err != nil {
		return nil, AddResponse{}, err
	}
	if !found {
		return nil, AddResponse{Added: false, Message: "unknown rxcui"}, nil
	}

	attrs := s.drugs.FetchAttributes(ctx, input.RxCUI)
	record, created, err := s.store.FindOrCreateUserDrug(ctx, s.config.UserID, input.RxCUI, name, attrs.BaseNames, attrs.DoseForms)
	if err != nil {
		return nil, AddResponse{}, err
	}

	msg := "drug added"
	if !created {
		msg = "drug was already in the list"
	}
	return nil, AddResponse{
		Added:   created,
		Message: msg,
		Drug: DrugResult{
			RxCUI:     record.RxCUI,
			Name:      record.Name,
			BaseNames: record.BaseNames,
			DoseForms: record.DoseForms,
		},
	}, nil
}
