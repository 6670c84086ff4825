package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"tickerhub/internal/application/port"
)

// SearchService fans a query out to every metadata lookup. A failing lookup
// is logged and contributes nothing.
type SearchService struct {
	lookups []port.MetadataLookup
}

func NewSearchService(lookups ...port.MetadataLookup) *SearchService {
	return &SearchService{lookups: lookups}
}

// Search returns matches in lookup order, first occurrence of a symbol wins.
func (s *SearchService) Search(ctx context.Context, query string) []port.SymbolMatch {
	query = strings.TrimSpace(query)
	out := []port.SymbolMatch{}
	if query == "" {
		return out
	}

	seen := make(map[string]struct{})
	for _, l := range s.lookups {
		matches, err := l.Search(ctx, query)
		if err != nil {
			log.Warn().Str("source", l.Name()).Str("query", query).Err(err).Msg("metadata search failed")
			continue
		}
		for _, m := range matches {
			if _, ok := seen[m.Symbol]; ok {
				continue
			}
			seen[m.Symbol] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}
