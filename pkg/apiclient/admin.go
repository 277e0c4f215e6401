package apiclient

import (
	"context"
	"net/url"
	"time"

	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/pool"
)

// WorkersResponse is the body of GET /api/v1/workers.
type WorkersResponse struct {
	Policy  string             `json:"policy"`
	Workers []pool.WorkerStats `json:"workers"`
}

// PurgeResponse is the body of DELETE /api/v1/cache.
type PurgeResponse struct {
	Status string `json:"status"`
	Data   struct {
		PurgedEntries int   `json:"purged_entries"`
		PurgedBytes   int64 `json:"purged_bytes"`
	} `json:"data"`
}

// File is a registered file record with its links.
type File struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContainerID int64     `json:"container_id"`
	ItemID      int64     `json:"item_id"`
	MimeType    string    `json:"mime_type,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	Link        string    `json:"link"`
	StreamURL   string    `json:"stream_url"`
}

// CreateFileRequest registers a file. Name, size and MIME type are
// looked up upstream when omitted.
type CreateFileRequest struct {
	FileName    string `json:"file_name,omitempty"`
	ContainerID int64  `json:"container_id"`
	ItemID      int64  `json:"item_id"`
	MimeType    string `json:"mime_type,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// Details is the body of GET /details/{link}.
type Details struct {
	FileName    string  `json:"file_name"`
	FileSize    string  `json:"file_size"` // human-readable, e.g. "9.5 MiB"
	MimeType    string  `json:"mime_type"`
	SubtitleURL *string `json:"subtitle_url"`
}

func (c *Client) Workers(ctx context.Context) (*WorkersResponse, error) {
	var resp WorkersResponse
	if err := c.get(ctx, "/api/v1/workers", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CacheStats(ctx context.Context) (*cache.Stats, error) {
	var stats cache.Stats
	if err := c.get(ctx, "/api/v1/cache", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) PurgeCache(ctx context.Context) (*PurgeResponse, error) {
	var resp PurgeResponse
	if err := c.delete(ctx, "/api/v1/cache", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListFiles(ctx context.Context) ([]File, error) {
	var files []File
	if err := c.get(ctx, "/api/v1/files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) GetFile(ctx context.Context, id string) (*File, error) {
	var f File
	if err := c.get(ctx, "/api/v1/files/"+url.PathEscape(id), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) CreateFile(ctx context.Context, req *CreateFileRequest) (*File, error) {
	var f File
	if err := c.post(ctx, "/api/v1/files", req, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/files/"+url.PathEscape(id), nil)
}

// Details fetches public metadata for a link token. No token is needed.
func (c *Client) Details(ctx context.Context, token string) (*Details, error) {
	var d Details
	if err := c.get(ctx, "/details/"+url.PathEscape(token), &d); err != nil {
		return nil, err
	}
	return &d, nil
}
