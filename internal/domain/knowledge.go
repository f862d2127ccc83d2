package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// KnowledgeStatus represents the processing status of a knowledge record.
// Values include KnowledgeStatusPending, KnowledgeStatusProcessing,
// KnowledgeStatusCompleted, and KnowledgeStatusFailed.
type KnowledgeStatus string

const (
	KnowledgeStatusPending    KnowledgeStatus = "pending"
	KnowledgeStatusProcessing KnowledgeStatus = "processing"
	KnowledgeStatusCompleted  KnowledgeStatus = "completed"
	KnowledgeStatusFailed     KnowledgeStatus = "failed"
)

// EmbeddingDimensions is the vector size produced by the embedding model
// (text-embedding-3-small).
const EmbeddingDimensions = 1536

// DefaultTopic is used when an extraction carries no topic.
const DefaultTopic = "general"

// ReprocessComment marks records whose image source was re-submitted while a
// previous non-completed record existed.
const ReprocessComment = "Reprocessing - URL/image already existed"

// Vector is a custom type for storing embedding vectors as JSON in the database.
type Vector []float32

// Value implements the driver.Valuer interface for database serialization.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Vector")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, v)
}

// Knowledge represents one extracted knowledge unit tracked through the
// ingestion pipeline. The Image field is the source identifier (URL or local
// path) and is unique per record by application-level lookup, not by a
// database constraint. Embedding is non-nil if and only if the record is
// completed.
type Knowledge struct {
	ID              string          `gorm:"type:text;primaryKey" json:"id"`
	Category        string          `gorm:"type:text;index:idx_knowledge_category" json:"category"`
	Subcategory     string          `gorm:"type:text" json:"subcategory"`
	Topic           string          `gorm:"type:text;default:general" json:"topic"`
	Title           string          `gorm:"type:text" json:"title"`
	RawData         string          `gorm:"type:text" json:"raw_data"`
	ParaphrasedData string          `gorm:"type:text" json:"paraphrased_data"`
	Image           string          `gorm:"type:text;not null;index:idx_knowledge_image" json:"image"`
	URL             string          `gorm:"type:text" json:"url"`
	Status          KnowledgeStatus `gorm:"type:text;index:idx_knowledge_status;default:pending" json:"status"`
	LastError       *string         `gorm:"type:text" json:"last_error,omitempty"`
	Comments        *string         `gorm:"type:text" json:"comments,omitempty"`
	RetryCount      int             `gorm:"default:0" json:"retry_count"`
	Embedding       Vector          `gorm:"type:text" json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Knowledge.
func (Knowledge) TableName() string {
	return "knowledge"
}

// KnowledgeSearchResult pairs a knowledge record with its similarity score.
type KnowledgeSearchResult struct {
	Knowledge
	Score float32 `json:"score"`
}

// StatusUpdate carries the optional fields of a status transition. Error is
// always written as given: a nil Error clears last_error.
type StatusUpdate struct {
	Error          *string
	Comments       *string
	IncrementRetry bool
}

// SearchFilters defines optional equality filters for similarity search.
type SearchFilters struct {
	Category    string
	Subcategory string
	Topic       string
}

// ListFilters defines filters and pagination for record listing.
type ListFilters struct {
	Category    string
	Subcategory string
	Topic       string
	Status      KnowledgeStatus
	Limit       int
	Offset      int
}
