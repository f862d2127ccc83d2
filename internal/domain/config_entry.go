package domain

import "time"

// ConfigEntry is a key/value row holding JSON-encoded application state, such
// as the taxonomy blob under TaxonomyKey.
type ConfigEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"type:text;not null;uniqueIndex:idx_config_key" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ConfigEntry.
func (ConfigEntry) TableName() string {
	return "config"
}
