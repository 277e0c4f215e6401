// Package memory is a process-local metadata.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/relaystream/pkg/metadata"
)

type location struct {
	containerID int64
	itemID      int64
}

// Store keeps records in maps.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*metadata.FileRecord
	byPlace map[location]string
	now     func() time.Time
}

func New() *Store {
	return &Store{
		byID:    make(map[string]*metadata.FileRecord),
		byPlace: make(map[location]string),
		now:     time.Now,
	}
}

func (s *Store) FindByFileName(ctx context.Context, name string) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *metadata.FileRecord
	for _, r := range s.byID {
		if r.FileName != name {
			continue
		}
		if found == nil || r.CreatedAt.Before(found.CreatedAt) {
			found = r
		}
	}
	if found == nil {
		return nil, metadata.ErrRecordNotFound
	}
	out := *found
	return &out, nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, metadata.ErrRecordNotFound
	}
	out := *r
	return &out, nil
}

func (s *Store) ListRecords(ctx context.Context) ([]*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*metadata.FileRecord, 0, len(s.byID))
	for _, r := range s.byID {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateRecord(ctx context.Context, r *metadata.FileRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := r.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loc := location{r.ContainerID, r.ItemID}
	if _, exists := s.byPlace[loc]; exists {
		return "", metadata.ErrDuplicateRecord
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if _, exists := s.byID[r.ID]; exists {
		return "", metadata.ErrDuplicateRecord
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	cp := *r
	s.byID[r.ID] = &cp
	s.byPlace[loc] = r.ID
	return r.ID, nil
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return metadata.ErrRecordNotFound
	}
	delete(s.byID, id)
	delete(s.byPlace, location{r.ContainerID, r.ItemID})
	return nil
}

func (s *Store) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

var _ metadata.Store = (*Store)(nil)
