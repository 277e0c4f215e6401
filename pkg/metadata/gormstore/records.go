package gormstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marmos91/relaystream/pkg/metadata"
)

func (s *Store) FindByFileName(ctx context.Context, name string) (*metadata.FileRecord, error) {
	var rec metadata.FileRecord
	err := s.db.WithContext(ctx).
		Where("file_name = ?", name).
		Order("created_at ASC").
		First(&rec).Error
	if err != nil {
		return nil, convertNotFoundError(err, metadata.ErrRecordNotFound)
	}
	return &rec, nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*metadata.FileRecord, error) {
	var rec metadata.FileRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, convertNotFoundError(err, metadata.ErrRecordNotFound)
	}
	return &rec, nil
}

func (s *Store) ListRecords(ctx context.Context) ([]*metadata.FileRecord, error) {
	recs := []*metadata.FileRecord{}
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	return recs, nil
}

func (s *Store) CreateRecord(ctx context.Context, r *metadata.FileRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", metadata.ErrDuplicateRecord
		}
		return "", fmt.Errorf("create file record: %w", err)
	}
	return r.ID, nil
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&metadata.FileRecord{})
	if result.Error != nil {
		return fmt.Errorf("delete file record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return metadata.ErrRecordNotFound
	}
	return nil
}

func (s *Store) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

var _ metadata.Store = (*Store)(nil)
