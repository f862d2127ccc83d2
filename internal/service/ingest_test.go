package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/sherlock-kb/sherlock/internal/domain"
	"github.com/sherlock-kb/sherlock/internal/retry"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

type ingestFixture struct {
	records  *fakeRecordStore
	vectors  *fakeVectorStore
	taxonomy *fakeTaxonomyStore
	jobs     *fakeJobStore
	extract  *fakeExtractor
	embed    *fakeEmbedder
	fetcher  *fakeFetcher
	svc      *IngestService
}

func newIngestFixture() *ingestFixture {
	f := &ingestFixture{
		records:  newFakeRecordStore(),
		vectors:  newFakeVectorStore(),
		taxonomy: &fakeTaxonomyStore{},
		jobs:     newFakeJobStore(),
		extract:  &fakeExtractor{fn: func(ctx context.Context) (*domain.ExtractionResult, error) { return okExtraction(), nil }},
		embed:    &fakeEmbedder{},
		fetcher:  &fakeFetcher{data: pngBytes, mime: "image/png"},
	}
	f.svc = NewIngestService(IngestServiceConfig{
		Records:  f.records,
		Vectors:  f.vectors,
		Taxonomy: f.taxonomy,
		Jobs:     f.jobs,
		Extract:  f.extract,
		Embed:    f.embed,
		Fetcher:  f.fetcher,
		Policy:   retry.Policy{MaxAttempts: 1},
	})
	return f
}

func okExtraction() *domain.ExtractionResult {
	return &domain.ExtractionResult{
		Category:        "Technology",
		Subcategory:     "programming",
		Topic:           "golang",
		Title:           "Go Notes",
		RawData:         "some raw extracted text",
		ParaphrasedData: `{"summary":"notes"}`,
		ParsePath:       domain.ParsePathStructured,
	}
}

func TestIngestFromURL_Success(t *testing.T) {
	f := newIngestFixture()

	id, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	record := f.records.get(id)
	assert.Equal(t, domain.KnowledgeStatusCompleted, record.Status)
	assert.Equal(t, "Technology", record.Category)
	assert.Equal(t, "some raw extracted text", record.RawData)
	assert.NotNil(t, record.Embedding)
	assert.Nil(t, record.LastError)

	// Vector point carries the taxonomy payload
	require.Contains(t, f.vectors.payloads, id)
	assert.Equal(t, id, f.vectors.payloads[id].KnowledgeID)
	assert.Equal(t, "Technology", f.vectors.payloads[id].Category)
}

func TestIngestFromURL_CompletedShortCircuit(t *testing.T) {
	f := newIngestFixture()
	f.records.seed(domain.Knowledge{
		ID:     "existing-id",
		Image:  "https://example.com/a.png",
		Status: domain.KnowledgeStatusCompleted,
	})

	id, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "existing-id", id)

	// Nothing was reprocessed
	assert.Zero(t, f.fetcher.calls)
	assert.Empty(t, f.records.resetCalls)
}

func TestIngestFromURL_ResetsExistingNonCompleted(t *testing.T) {
	f := newIngestFixture()
	f.records.seed(domain.Knowledge{
		ID:         "stuck-id",
		Image:      "https://example.com/a.png",
		Status:     domain.KnowledgeStatusFailed,
		RetryCount: 4,
	})

	id, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "stuck-id", id)
	assert.Equal(t, []string{"stuck-id"}, f.records.resetCalls)

	record := f.records.get(id)
	assert.Equal(t, domain.KnowledgeStatusCompleted, record.Status)
}

func TestIngestFromURL_FetchFailureAttributed(t *testing.T) {
	f := newIngestFixture()
	f.fetcher.err = goerr.New("connection refused", goerr.T(apperr.TagTransient))

	id, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)

	record := f.records.get(id)
	assert.Equal(t, domain.KnowledgeStatusFailed, record.Status)
	require.NotNil(t, record.Comments)
	assert.Equal(t, "Failed at step: downloading/loading image", *record.Comments)
	require.NotNil(t, record.LastError)
	assert.Contains(t, *record.LastError, "connection refused")
	assert.Equal(t, 1, record.RetryCount)
}

func TestIngestFromURL_ExtractionFailureAttributed(t *testing.T) {
	f := newIngestFixture()
	f.extract.fn = func(ctx context.Context) (*domain.ExtractionResult, error) {
		return nil, errors.New("model unavailable")
	}

	id, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)

	record := f.records.get(id)
	assert.Equal(t, domain.KnowledgeStatusFailed, record.Status)
	require.NotNil(t, record.Comments)
	assert.Equal(t, "Failed at step: extracting content with LLM", *record.Comments)
}

func TestIngestFromURL_SaveFailureRollsBackVector(t *testing.T) {
	f := newIngestFixture()
	f.records.extractionErr = errors.New("disk full")

	id, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)

	record := f.records.get(id)
	assert.Equal(t, domain.KnowledgeStatusFailed, record.Status)
	require.NotNil(t, record.Comments)
	assert.Equal(t, "Failed at step: saving extraction results", *record.Comments)

	// The already-written vector point was removed again
	assert.Contains(t, f.vectors.deleted, id)
	assert.NotContains(t, f.vectors.points, id)
}

func TestIngestFromURL_MergeOnlyWhenFlagged(t *testing.T) {
	t.Run("no new taxonomy entries", func(t *testing.T) {
		f := newIngestFixture()

		_, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
		require.NoError(t, err)
		assert.Empty(t, f.taxonomy.merges)
	})

	t.Run("new topic triggers merge", func(t *testing.T) {
		f := newIngestFixture()
		f.extract.fn = func(ctx context.Context) (*domain.ExtractionResult, error) {
			result := okExtraction()
			result.IsNewTopic = true
			return result, nil
		}

		_, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
		require.NoError(t, err)
		require.Len(t, f.taxonomy.merges, 1)
		assert.Equal(t, [3]string{"Technology", "programming", "golang"}, f.taxonomy.merges[0])
	})
}

func TestIngestFromURL_EmbedsRawData(t *testing.T) {
	f := newIngestFixture()

	_, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)

	require.Len(t, f.embed.inputs, 1)
	assert.Equal(t, "some raw extracted text", f.embed.inputs[0])
}

func TestIngestFromURL_RetriesTransientFetch(t *testing.T) {
	f := newIngestFixture()
	f.svc.policy = retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		RetryIf:     apperr.IsRetryable,
	}
	f.fetcher.err = goerr.New("upstream 503", goerr.T(apperr.TagTransient))

	id, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)

	assert.Equal(t, 3, f.fetcher.calls)
	assert.Equal(t, domain.KnowledgeStatusFailed, f.records.get(id).Status)
}

func TestIngestFromURL_ValidationErrorNotRetried(t *testing.T) {
	f := newIngestFixture()
	f.svc.policy = retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		RetryIf:     apperr.IsRetryable,
	}
	f.fetcher.err = goerr.New("unsupported extension", goerr.T(apperr.TagValidation))

	_, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)

	assert.Equal(t, 1, f.fetcher.calls)
}

func TestIngestFromBytes_RejectsInvalidImage(t *testing.T) {
	f := newIngestFixture()

	_, err := f.svc.IngestFromBytes(context.Background(), []byte("not an image"), "upload://a.txt", "a.txt")
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, apperr.TagValidation))

	// No record was created for the rejected payload
	existing, getErr := f.records.GetByImage(context.Background(), "upload://a.txt")
	require.NoError(t, getErr)
	assert.Nil(t, existing)
}

func TestIngestFromBytes_Success(t *testing.T) {
	f := newIngestFixture()

	id, err := f.svc.IngestFromBytes(context.Background(), pngBytes, "upload://a.png", "a.png")
	require.NoError(t, err)

	record := f.records.get(id)
	assert.Equal(t, domain.KnowledgeStatusCompleted, record.Status)
	// The fetcher is never consulted when bytes are in hand
	assert.Zero(t, f.fetcher.calls)
}

func TestRetryRecord_OnlyFailedIsLegal(t *testing.T) {
	f := newIngestFixture()
	f.records.seed(domain.Knowledge{
		ID:     "pending-id",
		Image:  "https://example.com/p.png",
		Status: domain.KnowledgeStatusPending,
	})

	err := f.svc.RetryRecord(context.Background(), "pending-id")
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, apperr.TagValidation))
}

func TestRetryRecord_PreservesRetryCount(t *testing.T) {
	f := newIngestFixture()
	f.records.seed(domain.Knowledge{
		ID:         "failed-id",
		Image:      "https://example.com/f.png",
		Status:     domain.KnowledgeStatusFailed,
		RetryCount: 2,
	})

	err := f.svc.RetryRecord(context.Background(), "failed-id")
	require.NoError(t, err)

	record := f.records.get("failed-id")
	assert.Equal(t, domain.KnowledgeStatusCompleted, record.Status)
	assert.Equal(t, 2, record.RetryCount)
}

func TestRetryAllFailed_CategoryFilter(t *testing.T) {
	f := newIngestFixture()
	f.records.seed(domain.Knowledge{
		ID: "a", Image: "img-a", Status: domain.KnowledgeStatusFailed, Category: "Technology",
	})
	f.records.seed(domain.Knowledge{
		ID: "b", Image: "img-b", Status: domain.KnowledgeStatusFailed, Category: "Science",
	})
	f.fetcher.data = pngBytes

	count, err := f.svc.RetryAllFailed(context.Background(), "Science", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, domain.KnowledgeStatusCompleted, f.records.get("b").Status)
	assert.Equal(t, domain.KnowledgeStatusFailed, f.records.get("a").Status)
}

func TestDeleteRecord_RemovesVectorPoint(t *testing.T) {
	f := newIngestFixture()
	f.records.seed(domain.Knowledge{ID: "x", Image: "img-x", Status: domain.KnowledgeStatusCompleted})
	f.vectors.points["x"] = []float32{0.1}

	err := f.svc.DeleteRecord(context.Background(), "x")
	require.NoError(t, err)

	assert.Contains(t, f.vectors.deleted, "x")
	_, getErr := f.records.GetByID(context.Background(), "x")
	assert.Error(t, getErr)
}

func TestConcurrentIngest_SingleTaxonomyEntry(t *testing.T) {
	f := newIngestFixture()
	f.extract.fn = func(ctx context.Context) (*domain.ExtractionResult, error) {
		result := okExtraction()
		result.Category = "Design"
		result.IsNewCategory = true
		return result, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = f.svc.IngestFromBytes(context.Background(), pngBytes,
				"upload://design-"+string(rune('a'+n))+".png", "design.png")
		}(i)
	}
	wg.Wait()

	count := 0
	for _, cat := range f.taxonomy.config.Categories {
		if cat.Name == "Design" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestIngestFromBucket_JobLifecycle(t *testing.T) {
	f := newIngestFixture()
	source := &fakeObjectSource{objects: map[string][]byte{
		"photos/a.png": pngBytes,
		"photos/b.txt": []byte("not an image"),
	}}

	jobID, err := f.svc.IngestFromBucket(context.Background(), source, "photos/")
	require.NoError(t, err)

	job, err := f.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, 2, job.TotalItems)
	assert.Equal(t, 2, job.ProcessedItems)
	assert.Equal(t, 1, job.FailedItems)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorLog, "photos/b.txt")

	// The valid object became a completed record keyed by its bucket URI
	record, err := f.records.GetByImage(context.Background(), "s3://test-bucket/photos/a.png")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.KnowledgeStatusCompleted, record.Status)
	assert.Equal(t, "Go Notes", record.Title)
}

func TestIngestFromURL_FailureRecordedAfterCancel(t *testing.T) {
	f := newIngestFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The extraction step cancels the pipeline context before failing, as a
	// deadline expiry mid-call would.
	f.extract.fn = func(context.Context) (*domain.ExtractionResult, error) {
		cancel()
		return nil, errors.New("upstream timed out")
	}

	id, err := f.svc.IngestFromURL(ctx, "https://example.com/a.png")
	require.NoError(t, err)

	record := f.records.get(id)
	assert.Equal(t, domain.KnowledgeStatusFailed, record.Status)
	require.NotNil(t, record.Comments)
	assert.Equal(t, "Failed at step: extracting content with LLM", *record.Comments)
	assert.Equal(t, 1, record.RetryCount)
}

func TestProcessRecord_ReleasesInflightLock(t *testing.T) {
	f := newIngestFixture()

	_, err := f.svc.IngestFromURL(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)

	f.fetcher.err = goerr.New("boom", goerr.T(apperr.TagTransient))
	_, err = f.svc.IngestFromURL(context.Background(), "https://example.com/b.png")
	require.NoError(t, err)

	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()
	assert.Empty(t, f.svc.inflight)
}

func TestIngestFromBucket_ListFailureFinishesJob(t *testing.T) {
	f := newIngestFixture()
	source := &fakeObjectSource{listErr: errors.New("bucket unreachable")}

	jobID, err := f.svc.IngestFromBucket(context.Background(), source, "photos/")
	require.Error(t, err)

	job, getErr := f.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorLog, "bucket unreachable")
}
