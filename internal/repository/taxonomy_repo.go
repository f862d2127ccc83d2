package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/sherlock-kb/sherlock/internal/domain"
)

// TaxonomyRepository persists the category hierarchy as a single JSON blob in
// the config table. All mutations run under one mutex so concurrent
// ingestions cannot lose each other's additions.
type TaxonomyRepository struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewTaxonomyRepository creates a new TaxonomyRepository.
func NewTaxonomyRepository(db *gorm.DB) *TaxonomyRepository {
	return &TaxonomyRepository{db: db}
}

// Get loads the current taxonomy. A missing row yields an empty taxonomy.
func (r *TaxonomyRepository) Get(ctx context.Context) (*domain.TaxonomyConfig, error) {
	return r.load(ctx)
}

// Merge atomically folds a category/subcategory/topic triple into the stored
// taxonomy and persists the result when anything changed.
func (r *TaxonomyRepository) Merge(ctx context.Context, category, subcategory, topic string) (domain.MergeOutcome, *domain.TaxonomyConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	taxonomy, err := r.load(ctx)
	if err != nil {
		return domain.MergeOutcome{}, nil, err
	}

	outcome := taxonomy.Merge(category, subcategory, topic)
	if !outcome.Changed() {
		return outcome, taxonomy, nil
	}

	if err := r.persist(ctx, taxonomy); err != nil {
		return domain.MergeOutcome{}, nil, err
	}
	return outcome, taxonomy, nil
}

func (r *TaxonomyRepository) load(ctx context.Context) (*domain.TaxonomyConfig, error) {
	var entry domain.ConfigEntry
	err := r.db.WithContext(ctx).First(&entry, "key = ?", domain.TaxonomyKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.TaxonomyConfig{}, nil
		}
		return nil, goerr.Wrap(err, "failed to load taxonomy", goerr.T(apperr.TagDatabase))
	}

	var taxonomy domain.TaxonomyConfig
	if err := json.Unmarshal([]byte(entry.Value), &taxonomy); err != nil {
		return nil, goerr.Wrap(err, "failed to decode taxonomy blob", goerr.T(apperr.TagDatabase))
	}
	return &taxonomy, nil
}

func (r *TaxonomyRepository) persist(ctx context.Context, taxonomy *domain.TaxonomyConfig) error {
	blob, err := json.Marshal(taxonomy)
	if err != nil {
		return goerr.Wrap(err, "failed to encode taxonomy blob", goerr.T(apperr.TagDatabase))
	}

	entry := domain.ConfigEntry{
		Key:   domain.TaxonomyKey,
		Value: string(blob),
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error; err != nil {
		return goerr.Wrap(err, "failed to persist taxonomy", goerr.T(apperr.TagDatabase))
	}
	return nil
}
