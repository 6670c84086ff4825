package port

import "context"

// SymbolMatch is one result of a metadata search.
type SymbolMatch struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Source      string `json:"source"`
}

// MetadataLookup is a request/response lookup used to build watchlists.
// It never feeds the price state.
type MetadataLookup interface {
	Name() string
	Search(ctx context.Context, query string) ([]SymbolMatch, error)
}
