package models

import (
	"time"

	"gorm.io/datatypes"
)

// TempUpload records a file uploaded to remote storage that is not yet
// attached to a saved activity.
type TempUpload struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	PublicID     string            `gorm:"size:255;not null;uniqueIndex" json:"public_id"`
	ResourceType string            `gorm:"size:16;not null" json:"resource_type"`
	URL          string            `gorm:"size:1024" json:"url"`
	SessionID    string            `gorm:"size:64;index" json:"session_id"`
	Attempts     int               `gorm:"not null;default:0" json:"attempts"`
	LastError    string            `gorm:"size:512" json:"last_error"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
