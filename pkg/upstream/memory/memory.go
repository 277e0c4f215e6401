// Package memory is an in-process upstream backend. It serves files held in
// memory, optionally seeded from a directory laid out as
// <dir>/<container_id>/<item_id>/<file name>.
package memory

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/marmos91/relaystream/pkg/chunk"
	"github.com/marmos91/relaystream/pkg/mediatype"
	"github.com/marmos91/relaystream/pkg/upstream"
)

type fileKey struct {
	containerID int64
	itemID      int64
}

type file struct {
	info upstream.FileInfo
	data []byte
}

// Store holds the files shared by every memory Client.
type Store struct {
	mu    sync.RWMutex
	files map[fileKey]*file
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{files: make(map[fileKey]*file)}
}

// Add stores data as item itemID of container containerID. An empty
// mimeType is derived from the file extension.
func (s *Store) Add(containerID, itemID int64, name string, data []byte, mimeType string) {
	if mimeType == "" {
		mimeType = mediatype.Guess(name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileKey{containerID, itemID}] = &file{
		info: upstream.FileInfo{Name: name, Size: int64(len(data)), MimeType: mimeType},
		data: data,
	}
}

// LoadDir reads every <dir>/<cid>/<iid>/<name> file into the store and
// returns how many were loaded. Entries that do not match the layout are
// skipped.
func (s *Store) LoadDir(dir string) (int, error) {
	loaded := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 {
			return nil
		}
		cid, err1 := strconv.ParseInt(parts[0], 10, 64)
		iid, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		s.Add(cid, iid, parts[2], data, "")
		loaded++
		return nil
	})
	return loaded, err
}

func (s *Store) get(containerID, itemID int64) (*file, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileKey{containerID, itemID}]
	return f, ok
}

// Client serves a Store. It counts calls so tests can assert on upstream
// traffic.
type Client struct {
	store     *Store
	metadata  atomic.Int64
	opens     atomic.Int64
	chunksOut atomic.Int64
}

// NewClient returns a client reading from store.
func NewClient(store *Store) *Client {
	return &Client{store: store}
}

func (c *Client) FetchMetadata(ctx context.Context, containerID, itemID int64) (upstream.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return upstream.FileInfo{}, err
	}
	c.metadata.Add(1)
	f, ok := c.store.get(containerID, itemID)
	if !ok {
		return upstream.FileInfo{}, upstream.ErrNotFound
	}
	return f.info, nil
}

func (c *Client) OpenChunkStream(ctx context.Context, containerID, itemID, chunkIndex int64) (upstream.ChunkStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.opens.Add(1)
	f, ok := c.store.get(containerID, itemID)
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return &chunkStream{client: c, data: f.data, next: chunkIndex}, nil
}

// HealthCheck always succeeds.
func (c *Client) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// MetadataCalls returns how many FetchMetadata calls were made.
func (c *Client) MetadataCalls() int64 { return c.metadata.Load() }

// Opens returns how many streams were opened.
func (c *Client) Opens() int64 { return c.opens.Load() }

// ChunksServed returns how many chunks were handed out.
func (c *Client) ChunksServed() int64 { return c.chunksOut.Load() }

type chunkStream struct {
	client *Client
	data   []byte
	next   int64
	closed bool
}

func (s *chunkStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, io.EOF
	}
	start, end := chunk.Bounds(s.next, int64(len(s.data)))
	if start >= end {
		return nil, io.EOF
	}
	s.next++
	s.client.chunksOut.Add(1)
	return s.data[start:end], nil
}

func (s *chunkStream) Close() error {
	s.closed = true
	return nil
}

var (
	_ upstream.Client        = (*Client)(nil)
	_ upstream.HealthChecker = (*Client)(nil)
)
