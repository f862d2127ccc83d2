package service

import (
	"context"
	"unicode/utf8"

	"github.com/sherlock-kb/sherlock/internal/domain"
	"github.com/sherlock-kb/sherlock/internal/logger"
	"github.com/sherlock-kb/sherlock/internal/repository"
)

const previewLength = 500

// SearchQuery is a semantic search request.
type SearchQuery struct {
	Query       string
	Limit       int
	Threshold   *float32
	Category    string
	Subcategory string
	Topic       string
}

// SearchService turns natural-language queries into ranked knowledge records.
type SearchService struct {
	records        RecordStore
	vectors        VectorStore
	embed          Embedder
	defaultLimit   int
	maxLimit       int
	scoreThreshold float32
}

// SearchServiceConfig bundles the search collaborators and limits.
type SearchServiceConfig struct {
	Records        RecordStore
	Vectors        VectorStore
	Embed          Embedder
	DefaultLimit   int
	MaxLimit       int
	ScoreThreshold float32
}

// NewSearchService creates a new SearchService.
func NewSearchService(cfg SearchServiceConfig) *SearchService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 20
	}
	if cfg.ScoreThreshold == 0 {
		cfg.ScoreThreshold = 0.5
	}
	return &SearchService{
		records:        cfg.Records,
		vectors:        cfg.Vectors,
		embed:          cfg.Embed,
		defaultLimit:   cfg.DefaultLimit,
		maxLimit:       cfg.MaxLimit,
		scoreThreshold: cfg.ScoreThreshold,
	}
}

// Search embeds the query and runs a filtered similarity search. When the
// filtered path fails, it degrades to an unfiltered search instead of
// surfacing the error. Long text fields are truncated to a preview in the
// response, not in storage.
func (s *SearchService) Search(ctx context.Context, q SearchQuery) ([]domain.KnowledgeSearchResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	threshold := s.scoreThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}

	vector, err := s.embed.Embed(ctx, q.Query)
	if err != nil {
		return nil, err
	}

	var filters *domain.SearchFilters
	if q.Category != "" || q.Subcategory != "" || q.Topic != "" {
		filters = &domain.SearchFilters{
			Category:    q.Category,
			Subcategory: q.Subcategory,
			Topic:       q.Topic,
		}
	}

	hits, err := s.vectors.Search(ctx, vector, limit, threshold, filters)
	if err != nil && filters != nil {
		logger.CtxWarn(ctx, "filtered search failed, falling back to simple search: %v", err)
		hits, err = s.vectors.Search(ctx, vector, limit, threshold, nil)
	}
	if err != nil {
		return nil, err
	}

	return s.hydrate(ctx, hits)
}

// hydrate loads the full records for the scored hits, preserving score order.
func (s *SearchService) hydrate(ctx context.Context, hits []repository.VectorSearchResult) ([]domain.KnowledgeSearchResult, error) {
	if len(hits) == 0 {
		return []domain.KnowledgeSearchResult{}, nil
	}

	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}

	records, err := s.records.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Knowledge, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	results := make([]domain.KnowledgeSearchResult, 0, len(hits))
	for _, hit := range hits {
		record, ok := byID[hit.ID]
		if !ok {
			logger.CtxWarn(ctx, "search hit %s has no backing record, skipping", hit.ID)
			continue
		}
		record.RawData = truncatePreview(record.RawData)
		record.ParaphrasedData = truncatePreview(record.ParaphrasedData)
		results = append(results, domain.KnowledgeSearchResult{
			Knowledge: record,
			Score:     hit.Score,
		})
	}
	return results, nil
}

// truncatePreview cuts on a rune boundary so a multi-byte character is never
// split at the preview limit.
func truncatePreview(text string) string {
	if len(text) <= previewLength {
		return text
	}
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
