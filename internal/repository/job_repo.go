package repository

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/gorm"

	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/sherlock-kb/sherlock/internal/domain"
)

// JobRepository tracks batch ingestion jobs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return goerr.Wrap(err, "failed to create ingest job",
			goerr.T(apperr.TagDatabase), goerr.V("job_id", job.ID))
	}
	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goerr.Wrap(err, "ingest job not found",
				goerr.T(apperr.TagNotFound), goerr.V("job_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get ingest job",
			goerr.T(apperr.TagDatabase), goerr.V("job_id", id))
	}
	return &job, nil
}

// MarkRunning transitions a job to running and stamps its start time.
func (r *JobRepository) MarkRunning(ctx context.Context, id string, total int) error {
	now := time.Now()
	return r.update(ctx, id, map[string]interface{}{
		"status":      domain.JobStatusRunning,
		"total_items": total,
		"started_at":  &now,
	})
}

// RecordProgress increments the processed and failed counters.
func (r *JobRepository) RecordProgress(ctx context.Context, id string, failed bool) error {
	values := map[string]interface{}{
		"processed_items": gorm.Expr("processed_items + 1"),
	}
	if failed {
		values["failed_items"] = gorm.Expr("failed_items + 1")
	}
	return r.update(ctx, id, values)
}

// MarkFinished completes a job, recording failure when errLog is non-empty.
func (r *JobRepository) MarkFinished(ctx context.Context, id string, errLog string) error {
	now := time.Now()
	status := domain.JobStatusCompleted
	if errLog != "" {
		status = domain.JobStatusFailed
	}
	return r.update(ctx, id, map[string]interface{}{
		"status":       status,
		"error_log":    errLog,
		"completed_at": &now,
	})
}

func (r *JobRepository) update(ctx context.Context, id string, values map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(values)
	if res.Error != nil {
		return goerr.Wrap(res.Error, "failed to update ingest job",
			goerr.T(apperr.TagDatabase), goerr.V("job_id", id))
	}
	if res.RowsAffected == 0 {
		return goerr.New("ingest job not found",
			goerr.T(apperr.TagNotFound), goerr.V("job_id", id))
	}
	return nil
}
