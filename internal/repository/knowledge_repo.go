package repository

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/gorm"

	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/sherlock-kb/sherlock/internal/domain"
)

// KnowledgeRepository handles knowledge record persistence.
type KnowledgeRepository struct {
	db *gorm.DB
}

// NewKnowledgeRepository creates a new KnowledgeRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *KnowledgeRepository: repository instance bound to db.
func NewKnowledgeRepository(db *gorm.DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// Create inserts a new knowledge record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - k: knowledge record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *KnowledgeRepository) Create(ctx context.Context, k *domain.Knowledge) error {
	if err := r.db.WithContext(ctx).Create(k).Error; err != nil {
		return goerr.Wrap(err, "failed to create knowledge record",
			goerr.T(apperr.TagDatabase), goerr.V("id", k.ID))
	}
	return nil
}

// GetByID retrieves a knowledge record by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
// Returns:
//   - *domain.Knowledge: record if found.
//   - error: non-nil if lookup fails.
func (r *KnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.Knowledge, error) {
	var k domain.Knowledge
	if err := r.db.WithContext(ctx).First(&k, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goerr.Wrap(err, "knowledge record not found",
				goerr.T(apperr.TagNotFound), goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get knowledge record",
			goerr.T(apperr.TagDatabase), goerr.V("id", id))
	}
	return &k, nil
}

// GetByImage retrieves the record whose image source matches, if any. A nil
// record with nil error means no match. Deduplication relies on this lookup;
// there is no unique constraint on the image column.
func (r *KnowledgeRepository) GetByImage(ctx context.Context, image string) (*domain.Knowledge, error) {
	var k domain.Knowledge
	err := r.db.WithContext(ctx).
		Where("image = ?", image).
		Order("created_at DESC").
		First(&k).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to look up knowledge by image",
			goerr.T(apperr.TagDatabase), goerr.V("image", image))
	}
	return &k, nil
}

// UpdateStatus transitions a record's status and writes the accompanying
// fields. The last_error and comments columns are always written from the
// update, so nil pointers clear them.
func (r *KnowledgeRepository) UpdateStatus(ctx context.Context, id string, status domain.KnowledgeStatus, upd domain.StatusUpdate) error {
	values := map[string]interface{}{
		"status":     status,
		"last_error": upd.Error,
		"comments":   upd.Comments,
	}
	if upd.IncrementRetry {
		values["retry_count"] = gorm.Expr("retry_count + 1")
	}

	res := r.db.WithContext(ctx).
		Model(&domain.Knowledge{}).
		Where("id = ?", id).
		Updates(values)
	if res.Error != nil {
		return goerr.Wrap(res.Error, "failed to update knowledge status",
			goerr.T(apperr.TagDatabase), goerr.V("id", id), goerr.V("status", status))
	}
	if res.RowsAffected == 0 {
		return goerr.New("knowledge record not found",
			goerr.T(apperr.TagNotFound), goerr.V("id", id))
	}
	return nil
}

// UpdateWithExtraction stores the extraction fields and embedding and marks
// the record completed in one write.
func (r *KnowledgeRepository) UpdateWithExtraction(ctx context.Context, id string, result *domain.ExtractionResult, embedding domain.Vector) error {
	values := map[string]interface{}{
		"category":         result.Category,
		"subcategory":      result.Subcategory,
		"topic":            result.Topic,
		"title":            result.Title,
		"raw_data":         result.RawData,
		"paraphrased_data": result.ParaphrasedData,
		"embedding":        embedding,
		"status":           domain.KnowledgeStatusCompleted,
		"last_error":       nil,
	}

	res := r.db.WithContext(ctx).
		Model(&domain.Knowledge{}).
		Where("id = ?", id).
		Updates(values)
	if res.Error != nil {
		return goerr.Wrap(res.Error, "failed to store extraction result",
			goerr.T(apperr.TagDatabase), goerr.V("id", id))
	}
	if res.RowsAffected == 0 {
		return goerr.New("knowledge record not found",
			goerr.T(apperr.TagNotFound), goerr.V("id", id))
	}
	return nil
}

// ResetForReprocessing returns a record to pending with extraction fields,
// embedding, errors, and retry count cleared, and records the reprocess
// comment.
func (r *KnowledgeRepository) ResetForReprocessing(ctx context.Context, id string) error {
	comment := domain.ReprocessComment
	values := map[string]interface{}{
		"category":         "",
		"subcategory":      "",
		"topic":            domain.DefaultTopic,
		"title":            "",
		"raw_data":         "",
		"paraphrased_data": "",
		"embedding":        nil,
		"status":           domain.KnowledgeStatusPending,
		"last_error":       nil,
		"comments":         comment,
		"retry_count":      0,
	}

	res := r.db.WithContext(ctx).
		Model(&domain.Knowledge{}).
		Where("id = ?", id).
		Updates(values)
	if res.Error != nil {
		return goerr.Wrap(res.Error, "failed to reset knowledge record",
			goerr.T(apperr.TagDatabase), goerr.V("id", id))
	}
	if res.RowsAffected == 0 {
		return goerr.New("knowledge record not found",
			goerr.T(apperr.TagNotFound), goerr.V("id", id))
	}
	return nil
}

// List retrieves records matching the given filters, newest first.
func (r *KnowledgeRepository) List(ctx context.Context, filters domain.ListFilters) ([]domain.Knowledge, error) {
	query := r.db.WithContext(ctx).Model(&domain.Knowledge{})
	if filters.Category != "" {
		query = query.Where("category = ?", filters.Category)
	}
	if filters.Subcategory != "" {
		query = query.Where("subcategory = ?", filters.Subcategory)
	}
	if filters.Topic != "" {
		query = query.Where("topic = ?", filters.Topic)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var records []domain.Knowledge
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to list knowledge records", goerr.T(apperr.TagDatabase))
	}
	return records, nil
}

// ListByStatus retrieves records by status with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: record status to filter by.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Knowledge: matching records.
//   - error: non-nil if the query fails.
func (r *KnowledgeRepository) ListByStatus(ctx context.Context, status domain.KnowledgeStatus, limit, offset int) ([]domain.Knowledge, error) {
	var records []domain.Knowledge
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to list knowledge by status",
			goerr.T(apperr.TagDatabase), goerr.V("status", status))
	}
	return records, nil
}

// CountByStatus counts records by status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: record status to count.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *KnowledgeRepository) CountByStatus(ctx context.Context, status domain.KnowledgeStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.Knowledge{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, goerr.Wrap(err, "failed to count knowledge by status",
			goerr.T(apperr.TagDatabase), goerr.V("status", status))
	}
	return count, nil
}

// GetByIDs retrieves records by a list of IDs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: list of record IDs.
// Returns:
//   - []domain.Knowledge: matching records.
//   - error: non-nil if the query fails.
func (r *KnowledgeRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Knowledge, error) {
	if len(ids) == 0 {
		return []domain.Knowledge{}, nil
	}
	var records []domain.Knowledge
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to get knowledge by IDs", goerr.T(apperr.TagDatabase))
	}
	return records, nil
}

// Delete removes a record by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *KnowledgeRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&domain.Knowledge{}, "id = ?", id)
	if res.Error != nil {
		return goerr.Wrap(res.Error, "failed to delete knowledge record",
			goerr.T(apperr.TagDatabase), goerr.V("id", id))
	}
	if res.RowsAffected == 0 {
		return goerr.New("knowledge record not found",
			goerr.T(apperr.TagNotFound), goerr.V("id", id))
	}
	return nil
}
