package service

import (
	"context"
	"errors"
	"sync"

	"github.com/sherlock-kb/sherlock/internal/domain"
	"github.com/sherlock-kb/sherlock/internal/repository"
)

// fakeRecordStore is an in-memory RecordStore that mimics the repository's
// update semantics closely enough for pipeline tests.
type fakeRecordStore struct {
	mu      sync.Mutex
	records map[string]*domain.Knowledge

	createErr     error
	updateErr     map[domain.KnowledgeStatus]error
	extractionErr error
	resetCalls    []string
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		records:   make(map[string]*domain.Knowledge),
		updateErr: make(map[domain.KnowledgeStatus]error),
	}
}

func (f *fakeRecordStore) Create(ctx context.Context, k *domain.Knowledge) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *k
	f.records[k.ID] = &cp
	return nil
}

func (f *fakeRecordStore) GetByID(ctx context.Context, id string) (*domain.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.records[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *k
	return &cp, nil
}

func (f *fakeRecordStore) GetByImage(ctx context.Context, image string) (*domain.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.records {
		if k.Image == image {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordStore) GetByIDs(ctx context.Context, ids []string) ([]domain.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Knowledge
	for _, id := range ids {
		if k, ok := f.records[id]; ok {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) List(ctx context.Context, filters domain.ListFilters) ([]domain.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Knowledge
	for _, k := range f.records {
		out = append(out, *k)
	}
	return out, nil
}

func (f *fakeRecordStore) ListByStatus(ctx context.Context, status domain.KnowledgeStatus, limit, offset int) ([]domain.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Knowledge
	for _, k := range f.records {
		if k.Status == status && len(out) < limit {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) UpdateStatus(ctx context.Context, id string, status domain.KnowledgeStatus, upd domain.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.updateErr[status]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.records[id]
	if !ok {
		return errors.New("record not found")
	}
	k.Status = status
	k.LastError = upd.Error
	k.Comments = upd.Comments
	if upd.IncrementRetry {
		k.RetryCount++
	}
	return nil
}

func (f *fakeRecordStore) UpdateWithExtraction(ctx context.Context, id string, result *domain.ExtractionResult, embedding domain.Vector) error {
	if f.extractionErr != nil {
		return f.extractionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.records[id]
	if !ok {
		return errors.New("record not found")
	}
	k.Category = result.Category
	k.Subcategory = result.Subcategory
	k.Topic = result.Topic
	k.Title = result.Title
	k.RawData = result.RawData
	k.ParaphrasedData = result.ParaphrasedData
	k.Embedding = embedding
	k.Status = domain.KnowledgeStatusCompleted
	k.LastError = nil
	return nil
}

func (f *fakeRecordStore) ResetForReprocessing(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.records[id]
	if !ok {
		return errors.New("record not found")
	}
	f.resetCalls = append(f.resetCalls, id)
	comment := domain.ReprocessComment
	k.Category = ""
	k.Subcategory = ""
	k.Topic = domain.DefaultTopic
	k.RawData = ""
	k.ParaphrasedData = ""
	k.Status = domain.KnowledgeStatusPending
	k.LastError = nil
	k.Comments = &comment
	k.RetryCount = 0
	k.Embedding = nil
	return nil
}

func (f *fakeRecordStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return errors.New("record not found")
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRecordStore) seed(k domain.Knowledge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := k
	f.records[k.ID] = &cp
}

func (f *fakeRecordStore) get(id string) domain.Knowledge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

type fakeVectorStore struct {
	mu        sync.Mutex
	points    map[string][]float32
	payloads  map[string]*repository.KnowledgePayload
	upsertErr error
	searchFn  func(filters *domain.SearchFilters) ([]repository.VectorSearchResult, error)
	deleted   []string

	lastTopK      int
	lastThreshold float32
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		points:   make(map[string][]float32),
		payloads: make(map[string]*repository.KnowledgePayload),
	}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.KnowledgePayload) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[pointID] = vector
	f.payloads[pointID] = payload
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, topK int, threshold float32, filters *domain.SearchFilters) ([]repository.VectorSearchResult, error) {
	f.lastTopK = topK
	f.lastThreshold = threshold
	if f.searchFn != nil {
		return f.searchFn(filters)
	}
	return nil, nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, pointID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, pointID)
	delete(f.points, pointID)
	return nil
}

type fakeTaxonomyStore struct {
	mu     sync.Mutex
	config domain.TaxonomyConfig
	getErr error
	merges [][3]string
}

func (f *fakeTaxonomyStore) Get(ctx context.Context) (*domain.TaxonomyConfig, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := f.config
	return &cp, nil
}

func (f *fakeTaxonomyStore) Merge(ctx context.Context, category, subcategory, topic string) (domain.MergeOutcome, *domain.TaxonomyConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merges = append(f.merges, [3]string{category, subcategory, topic})
	out := f.config.Merge(category, subcategory, topic)
	cp := f.config
	return out, &cp, nil
}

type fakeExtractor struct {
	fn func(ctx context.Context) (*domain.ExtractionResult, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, imageData []byte, mimeType string, taxonomy *domain.TaxonomyConfig) (*domain.ExtractionResult, error) {
	return f.fn(ctx)
}

type fakeEmbedder struct {
	inputs []string
	err    error
	vector []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return nil, f.err
	}
	if f.vector != nil {
		return f.vector, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeFetcher struct {
	data  []byte
	mime  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, source string) ([]byte, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.mime, nil
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.IngestJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*domain.IngestJob)}
}

func (f *fakeJobStore) Create(ctx context.Context, job *domain.IngestJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobStore) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	cp := *job
	return &cp, nil
}

func (f *fakeJobStore) MarkRunning(ctx context.Context, id string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = domain.JobStatusRunning
	f.jobs[id].TotalItems = total
	return nil
}

func (f *fakeJobStore) RecordProgress(ctx context.Context, id string, failed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].ProcessedItems++
	if failed {
		f.jobs[id].FailedItems++
	}
	return nil
}

func (f *fakeJobStore) MarkFinished(ctx context.Context, id string, errLog string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[id]
	job.ErrorLog = errLog
	if errLog != "" {
		job.Status = domain.JobStatusFailed
	} else {
		job.Status = domain.JobStatusCompleted
	}
	return nil
}

type fakeObjectSource struct {
	objects map[string][]byte
	listErr error
}

func (f *fakeObjectSource) List(ctx context.Context, prefix string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeObjectSource) Download(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeObjectSource) URI(key string) string {
	return "s3://test-bucket/" + key
}
