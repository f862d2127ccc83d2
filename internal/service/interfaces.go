package service

import (
	"context"

	"github.com/sherlock-kb/sherlock/internal/domain"
	"github.com/sherlock-kb/sherlock/internal/repository"
)

// RecordStore is the persistence surface the pipeline drives records through.
type RecordStore interface {
	Create(ctx context.Context, k *domain.Knowledge) error
	GetByID(ctx context.Context, id string) (*domain.Knowledge, error)
	GetByImage(ctx context.Context, image string) (*domain.Knowledge, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Knowledge, error)
	List(ctx context.Context, filters domain.ListFilters) ([]domain.Knowledge, error)
	ListByStatus(ctx context.Context, status domain.KnowledgeStatus, limit, offset int) ([]domain.Knowledge, error)
	UpdateStatus(ctx context.Context, id string, status domain.KnowledgeStatus, upd domain.StatusUpdate) error
	UpdateWithExtraction(ctx context.Context, id string, result *domain.ExtractionResult, embedding domain.Vector) error
	ResetForReprocessing(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// VectorStore mirrors the embedding index operations the pipeline and search
// need.
type VectorStore interface {
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.KnowledgePayload) error
	Search(ctx context.Context, vector []float32, topK int, threshold float32, filters *domain.SearchFilters) ([]repository.VectorSearchResult, error)
	Delete(ctx context.Context, pointID string) error
}

// TaxonomyStore exposes the shared category hierarchy.
type TaxonomyStore interface {
	Get(ctx context.Context) (*domain.TaxonomyConfig, error)
	Merge(ctx context.Context, category, subcategory, topic string) (domain.MergeOutcome, *domain.TaxonomyConfig, error)
}

// Extractor turns image bytes into structured knowledge.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte, mimeType string, taxonomy *domain.TaxonomyConfig) (*domain.ExtractionResult, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ImageFetcher resolves an image source to raw bytes and a MIME type.
type ImageFetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, string, error)
}

// JobStore tracks batch ingestion jobs.
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
	MarkRunning(ctx context.Context, id string, total int) error
	RecordProgress(ctx context.Context, id string, failed bool) error
	MarkFinished(ctx context.Context, id string, errLog string) error
}
