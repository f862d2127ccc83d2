package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/sherlock-kb/sherlock/internal/domain"
	"github.com/sherlock-kb/sherlock/internal/imageutil"
	"github.com/sherlock-kb/sherlock/internal/logger"
	"github.com/sherlock-kb/sherlock/internal/repository"
	"github.com/sherlock-kb/sherlock/internal/retry"
)

// Pipeline step labels recorded in the comments column of failed records.
const (
	stepInitializing   = "initializing"
	stepMarkProcessing = "updating status to processing"
	stepFetchRecord    = "fetching record"
	stepFetchImage     = "downloading/loading image"
	stepValidateImage  = "validating image"
	stepFetchTaxonomy  = "fetching tags config"
	stepExtract        = "extracting content with LLM"
	stepMergeTaxonomy  = "updating category hierarchy config"
	stepEmbed          = "generating embedding"
	stepIndexEmbedding = "indexing embedding"
	stepSaveResults    = "saving extraction results"
)

// IngestService drives knowledge records through the ingestion pipeline:
// status transition, image fetch, validation, extraction, taxonomy merge,
// embedding, and persistence.
type IngestService struct {
	records  RecordStore
	vectors  VectorStore
	taxonomy TaxonomyStore
	jobs     JobStore
	extract  Extractor
	embed    Embedder
	fetcher  ImageFetcher
	policy   retry.Policy

	// inflight guards against two concurrent pipeline runs on the same
	// record id.
	mu       sync.Mutex
	inflight map[string]*inflightEntry
}

type inflightEntry struct {
	mu   sync.Mutex
	refs int
}

// IngestServiceConfig bundles the collaborators and retry policy.
type IngestServiceConfig struct {
	Records  RecordStore
	Vectors  VectorStore
	Taxonomy TaxonomyStore
	Jobs     JobStore
	Extract  Extractor
	Embed    Embedder
	Fetcher  ImageFetcher
	Policy   retry.Policy
}

// NewIngestService creates a new IngestService.
func NewIngestService(cfg IngestServiceConfig) *IngestService {
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy(apperr.IsRetryable)
	}
	return &IngestService{
		records:  cfg.Records,
		vectors:  cfg.Vectors,
		taxonomy: cfg.Taxonomy,
		jobs:     cfg.Jobs,
		extract:  cfg.Extract,
		embed:    cfg.Embed,
		fetcher:  cfg.Fetcher,
		policy:   cfg.Policy,
		inflight: make(map[string]*inflightEntry),
	}
}

// IngestFromURL ingests a single image from a URL. A source that already
// completed short-circuits and returns the existing id; a source stuck in any
// other status is reset and reprocessed in place. Processing failure is
// reflected in the record's status, not in the returned error.
func (s *IngestService) IngestFromURL(ctx context.Context, url string) (string, error) {
	recordID, completed, err := s.prepareRecord(ctx, url, url, "")
	if err != nil {
		return "", err
	}
	if completed {
		return recordID, nil
	}

	s.processRecord(ctx, recordID, nil)
	return recordID, nil
}

// IngestFromBytes ingests an image whose bytes are already in hand, keyed by
// its source URL. Used for uploads and bucket objects.
func (s *IngestService) IngestFromBytes(ctx context.Context, imageBytes []byte, sourceURL, filename string) (string, error) {
	if _, err := imageutil.Validate(imageBytes); err != nil {
		return "", err
	}

	recordID, completed, err := s.prepareRecord(ctx, sourceURL, sourceURL, filename)
	if err != nil {
		return "", err
	}
	if completed {
		return recordID, nil
	}

	s.processRecord(ctx, recordID, imageBytes)
	return recordID, nil
}

// IngestFromFolder ingests every supported image directly under a local
// folder, sequentially. Already-completed paths are skipped; each remaining
// record runs the full pipeline with per-record error isolation. The returned
// ids cover the records that were (re)processed.
func (s *IngestService) IngestFromFolder(ctx context.Context, folderPath string) ([]string, error) {
	paths, err := imageutil.ListFolder(folderPath)
	if err != nil {
		return nil, err
	}

	var recordIDs []string
	for _, path := range paths {
		recordID, completed, err := s.prepareRecord(ctx, path, "", "")
		if err != nil {
			logger.CtxError(ctx, "failed to prepare record for %s: %v", path, err)
			continue
		}
		if completed {
			continue
		}
		recordIDs = append(recordIDs, recordID)
	}

	logger.With(logger.Fields{logger.FieldCount: len(recordIDs)}).
		Info(ctx, "folder ingestion prepared, starting processing")

	succeeded := 0
	for _, recordID := range recordIDs {
		if err := ctx.Err(); err != nil {
			return recordIDs, goerr.Wrap(err, "folder ingestion canceled")
		}
		if s.processRecord(ctx, recordID, nil) {
			succeeded++
		}
	}

	logger.With(logger.Fields{
		logger.FieldCount:  len(recordIDs),
		logger.FieldStatus: fmt.Sprintf("%d succeeded", succeeded),
	}).Info(ctx, "folder ingestion complete")
	return recordIDs, nil
}

// RetryRecord reprocesses a failed record. Only FAILED records are legal to
// retry; the accumulated retry count is preserved.
func (s *IngestService) RetryRecord(ctx context.Context, recordID string) error {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return err
	}

	if record.Status != domain.KnowledgeStatusFailed {
		return goerr.New("record is not in failed status",
			goerr.T(apperr.TagValidation),
			goerr.V("id", recordID), goerr.V("status", record.Status))
	}

	if err := s.records.UpdateStatus(ctx, recordID, domain.KnowledgeStatusPending, domain.StatusUpdate{}); err != nil {
		return err
	}

	s.processRecord(ctx, recordID, nil)
	return nil
}

// RetryAllFailed reprocesses failed records, optionally filtered by category,
// and returns how many succeeded.
func (s *IngestService) RetryAllFailed(ctx context.Context, category string, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	failed, err := s.records.ListByStatus(ctx, domain.KnowledgeStatusFailed, limit, 0)
	if err != nil {
		return 0, err
	}

	succeeded := 0
	for _, record := range failed {
		if category != "" && record.Category != category {
			continue
		}
		if err := ctx.Err(); err != nil {
			return succeeded, goerr.Wrap(err, "retry run canceled")
		}
		if err := s.records.UpdateStatus(ctx, record.ID, domain.KnowledgeStatusPending, domain.StatusUpdate{}); err != nil {
			logger.CtxError(ctx, "failed to reset record %s for retry: %v", record.ID, err)
			continue
		}
		if s.processRecord(ctx, record.ID, nil) {
			succeeded++
		}
	}
	return succeeded, nil
}

// DeleteRecord removes a record and its vector point.
func (s *IngestService) DeleteRecord(ctx context.Context, recordID string) error {
	if s.vectors != nil {
		if err := s.vectors.Delete(ctx, recordID); err != nil {
			logger.CtxWarn(ctx, "failed to delete vector point for %s: %v", recordID, err)
		}
	}
	return s.records.Delete(ctx, recordID)
}

// prepareRecord resolves the dedupe decision for an image source. It returns
// the record id and whether the source already completed (in which case there
// is nothing to process).
func (s *IngestService) prepareRecord(ctx context.Context, image, url, title string) (string, bool, error) {
	existing, err := s.records.GetByImage(ctx, image)
	if err != nil {
		return "", false, err
	}

	if existing != nil {
		if existing.Status == domain.KnowledgeStatusCompleted {
			logger.CtxInfo(ctx, "source already ingested as %s, skipping", existing.ID)
			return existing.ID, true, nil
		}
		logger.CtxInfo(ctx, "source already exists as %s, resetting for reprocessing", existing.ID)
		if err := s.records.ResetForReprocessing(ctx, existing.ID); err != nil {
			return "", false, err
		}
		return existing.ID, false, nil
	}

	record := &domain.Knowledge{
		ID:     uuid.NewString(),
		Image:  image,
		URL:    url,
		Title:  title,
		Topic:  domain.DefaultTopic,
		Status: domain.KnowledgeStatusPending,
	}
	if err := s.records.Create(ctx, record); err != nil {
		return "", false, err
	}
	return record.ID, false, nil
}

// processRecord runs the full pipeline for one record. Every failure is
// caught here, attributed to the step it happened in, and turned into a
// FAILED status with an incremented retry count. Returns true on success.
func (s *IngestService) processRecord(ctx context.Context, recordID string, imageBytes []byte) bool {
	unlock := s.lockRecord(recordID)
	defer unlock()

	ctx = logger.WithField(ctx, logger.FieldJobID, recordID)

	step := stepInitializing
	fail := func(err error) bool {
		errText := err.Error()
		comments := fmt.Sprintf("Failed at step: %s", step)
		logger.CtxError(ctx, "pipeline failed at step %q: %v", step, err)
		// The pipeline context may already be canceled; the failure still has
		// to land in the record or it stays PROCESSING forever.
		bookkeepCtx := context.WithoutCancel(ctx)
		if updErr := s.records.UpdateStatus(bookkeepCtx, recordID, domain.KnowledgeStatusFailed, domain.StatusUpdate{
			Error:          &errText,
			Comments:       &comments,
			IncrementRetry: true,
		}); updErr != nil {
			logger.CtxWarn(ctx, "failed to record failure status: %v", updErr)
		}
		return false
	}

	step = stepMarkProcessing
	if err := s.records.UpdateStatus(ctx, recordID, domain.KnowledgeStatusProcessing, domain.StatusUpdate{}); err != nil {
		return fail(err)
	}

	step = stepFetchRecord
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return fail(err)
	}

	var mimeType string
	if imageBytes == nil {
		step = stepFetchImage
		imageBytes, mimeType, err = retryFetch(ctx, s.policy, s.fetcher, record.Image)
		if err != nil {
			return fail(err)
		}
	}

	step = stepValidateImage
	if mimeType == "" {
		mimeType, err = imageutil.Validate(imageBytes)
		if err != nil {
			return fail(err)
		}
	}

	step = stepFetchTaxonomy
	taxonomy, err := s.taxonomy.Get(ctx)
	if err != nil {
		return fail(err)
	}

	step = stepExtract
	result, err := retry.Do(ctx, s.policy, func(ctx context.Context) (*domain.ExtractionResult, error) {
		return s.extract.Extract(ctx, imageBytes, mimeType, taxonomy)
	})
	if err != nil {
		return fail(err)
	}
	if result.ParsePath == domain.ParsePathDegraded {
		logger.CtxWarn(ctx, "extraction response was unparseable, stored degraded result")
	}

	if result.NeedsTaxonomyMerge() {
		step = stepMergeTaxonomy
		if _, _, err := s.taxonomy.Merge(ctx, result.Category, result.Subcategory, result.Topic); err != nil {
			return fail(err)
		}
	}

	step = stepEmbed
	embedding, err := retry.Do(ctx, s.policy, func(ctx context.Context) ([]float32, error) {
		return s.embed.Embed(ctx, result.RawData)
	})
	if err != nil {
		return fail(err)
	}

	if s.vectors != nil {
		step = stepIndexEmbedding
		payload := &repository.KnowledgePayload{
			KnowledgeID: recordID,
			Category:    result.Category,
			Subcategory: result.Subcategory,
			Topic:       result.Topic,
			Title:       result.Title,
		}
		if err := s.vectors.Upsert(ctx, recordID, embedding, payload); err != nil {
			return fail(err)
		}
	}

	step = stepSaveResults
	if err := s.records.UpdateWithExtraction(ctx, recordID, result, embedding); err != nil {
		// The vector point was written but the record was not; drop the
		// point so the embedding-presence invariant holds.
		if s.vectors != nil {
			if delErr := s.vectors.Delete(ctx, recordID); delErr != nil {
				logger.CtxWarn(ctx, "failed to roll back vector point: %v", delErr)
			}
		}
		return fail(err)
	}

	logger.CtxInfo(ctx, "record processed successfully")
	return true
}

// retryFetch wraps the two-value fetch call for the generic retry helper.
func retryFetch(ctx context.Context, policy retry.Policy, fetcher ImageFetcher, source string) ([]byte, string, error) {
	type fetched struct {
		data []byte
		mime string
	}
	out, err := retry.Do(ctx, policy, func(ctx context.Context) (fetched, error) {
		data, mime, err := fetcher.Fetch(ctx, source)
		return fetched{data: data, mime: mime}, err
	})
	if err != nil {
		return nil, "", err
	}
	return out.data, out.mime, nil
}

// lockRecord serializes pipeline runs on one record id. The returned func
// unlocks and drops the map entry once the last holder is done, so the map
// does not grow with every id ever processed.
func (s *IngestService) lockRecord(recordID string) func() {
	s.mu.Lock()
	entry, ok := s.inflight[recordID]
	if !ok {
		entry = &inflightEntry{}
		s.inflight[recordID] = entry
	}
	entry.refs++
	s.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		s.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(s.inflight, recordID)
		}
		s.mu.Unlock()
	}
}
