package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sherlock-kb/sherlock/internal/domain"
	"github.com/sherlock-kb/sherlock/internal/imageutil"
	"github.com/sherlock-kb/sherlock/internal/logger"
)

// ObjectSource is the slice of object storage the bucket ingestion path
// needs.
type ObjectSource interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	URI(key string) string
}

// IngestFromBucket ingests every object under prefix, tracked as one job.
// Objects run sequentially with per-object error isolation; the job record
// accumulates progress and the first download errors.
func (s *IngestService) IngestFromBucket(ctx context.Context, source ObjectSource, prefix string) (string, error) {
	job := &domain.IngestJob{
		ID:     uuid.NewString(),
		Source: prefix,
		Status: domain.JobStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", err
	}

	ctx = logger.WithField(ctx, logger.FieldJobID, job.ID)

	keys, err := source.List(ctx, prefix)
	if err != nil {
		_ = s.jobs.MarkFinished(ctx, job.ID, err.Error())
		return job.ID, err
	}

	if err := s.jobs.MarkRunning(ctx, job.ID, len(keys)); err != nil {
		return job.ID, err
	}

	var errLog []string
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			_ = s.jobs.MarkFinished(ctx, job.ID, "canceled")
			return job.ID, err
		}

		failed := !s.ingestObject(ctx, source, key, &errLog)
		if err := s.jobs.RecordProgress(ctx, job.ID, failed); err != nil {
			logger.CtxWarn(ctx, "failed to record job progress: %v", err)
		}
	}

	if err := s.jobs.MarkFinished(ctx, job.ID, strings.Join(errLog, "; ")); err != nil {
		return job.ID, err
	}
	return job.ID, nil
}

func (s *IngestService) ingestObject(ctx context.Context, source ObjectSource, key string, errLog *[]string) bool {
	data, err := source.Download(ctx, key)
	if err != nil {
		logger.CtxError(ctx, "failed to download object %s: %v", key, err)
		*errLog = append(*errLog, fmt.Sprintf("%s: %v", key, err))
		return false
	}

	if _, err := imageutil.Validate(data); err != nil {
		logger.CtxWarn(ctx, "skipping object %s: %v", key, err)
		*errLog = append(*errLog, fmt.Sprintf("%s: %v", key, err))
		return false
	}

	recordID, completed, err := s.prepareRecord(ctx, source.URI(key), source.URI(key), key)
	if err != nil {
		logger.CtxError(ctx, "failed to prepare record for object %s: %v", key, err)
		*errLog = append(*errLog, fmt.Sprintf("%s: %v", key, err))
		return false
	}
	if completed {
		return true
	}

	return s.processRecord(ctx, recordID, data)
}
