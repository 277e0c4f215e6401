// Package metadata records which files the server publishes. The streaming
// path never needs it; it backs subtitle lookup and the admin API.
package metadata

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrRecordNotFound  = errors.New("file record not found")
	ErrDuplicateRecord = errors.New("file record already exists")
	ErrInvalidRecord   = errors.New("invalid file record")
)

// FileRecord maps a display name to the file's location upstream.
type FileRecord struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	FileName    string    `gorm:"not null;size:512;index" json:"file_name"`
	ContainerID int64     `gorm:"not null;uniqueIndex:idx_file_location" json:"container_id"`
	ItemID      int64     `gorm:"not null;uniqueIndex:idx_file_location" json:"item_id"`
	MimeType    string    `gorm:"size:128" json:"mime_type,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

func (FileRecord) TableName() string {
	return "file_records"
}

// Validate checks the fields a caller must supply.
func (r *FileRecord) Validate() error {
	if strings.TrimSpace(r.FileName) == "" {
		return errors.Join(ErrInvalidRecord, errors.New("file_name is required"))
	}
	if r.ItemID <= 0 {
		return errors.Join(ErrInvalidRecord, errors.New("item_id must be positive"))
	}
	if r.Size < 0 {
		return errors.Join(ErrInvalidRecord, errors.New("size must not be negative"))
	}
	return nil
}

// Store persists file records.
type Store interface {
	// FindByFileName returns the oldest record with exactly this name.
	FindByFileName(ctx context.Context, name string) (*FileRecord, error)

	GetRecord(ctx context.Context, id string) (*FileRecord, error)
	ListRecords(ctx context.Context) ([]*FileRecord, error)

	// CreateRecord assigns an ID when empty and returns it. A second record
	// for the same container and item is ErrDuplicateRecord.
	CreateRecord(ctx context.Context, r *FileRecord) (string, error)

	DeleteRecord(ctx context.Context, id string) error

	Healthcheck(ctx context.Context) error
	Close() error
}
