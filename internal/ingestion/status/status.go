// Package status records the outcome of every upload message.
package status

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcome values for FileIngestion.Status.
const (
	StatusInvalidBody  = "invalid_body"
	StatusFetchFailed  = "fetch_failed"
	StatusUnsupported  = "unsupported"
	StatusExtracted    = "extracted"
	StatusChunked      = "chunked"
	StatusUpserted     = "upserted"
	StatusUpsertFailed = "upsert_failed"
)

// FileIngestion is one row per processed upload message.
type FileIngestion struct {
	ID           string            `gorm:"column:id;size:36;primaryKey" json:"id"`
	DataSourceID string            `gorm:"column:datasource_id;not null;index" json:"datasource_id"`
	Bucket       string            `gorm:"column:bucket" json:"bucket,omitempty"`
	Filename     string            `gorm:"column:filename;index" json:"filename,omitempty"`
	FileType     string            `gorm:"column:file_type" json:"file_type,omitempty"`
	Status       string            `gorm:"column:status;not null;index" json:"status"`
	Chunks       int               `gorm:"column:chunks;not null;default:0" json:"chunks"`
	Points       int               `gorm:"column:points;not null;default:0" json:"points"`
	Skipped      int               `gorm:"column:skipped;not null;default:0" json:"skipped"`
	Error        string            `gorm:"column:error" json:"error,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	StartedAt    time.Time         `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt   time.Time         `gorm:"column:finished_at;not null;index" json:"finished_at"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (FileIngestion) TableName() string { return "file_ingestion" }

func (f *FileIngestion) BeforeCreate(*gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// Recorder persists ingestion outcomes. Callers log Record errors and carry on.
type Recorder interface {
	Record(ctx context.Context, row *FileIngestion) error
}

// Nop discards every record.
type Nop struct{}

func (Nop) Record(context.Context, *FileIngestion) error { return nil }

// MetadataJSON converts document metadata for the JSON column.
func MetadataJSON(md map[string]string) datatypes.JSONMap {
	if len(md) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
