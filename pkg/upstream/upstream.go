// Package upstream defines the contract with the remote backend that holds
// the media files. Each worker credential owns one Client.
package upstream

import (
	"context"
)

// FileInfo is the metadata of a stored file.
type FileInfo struct {
	Name     string
	Size     int64
	MimeType string // may be empty; callers guess from Name
}

// Client talks to the backend on behalf of one credential.
//
//go:generate mockgen -destination=./mocks/client.go -package=mocks . Client,ChunkStream
type Client interface {
	// FetchMetadata returns the file's name and size, or ErrNotFound.
	FetchMetadata(ctx context.Context, containerID, itemID int64) (FileInfo, error)

	// OpenChunkStream starts a sequential read at chunkIndex. Every chunk
	// except the file's last is exactly chunk.Size bytes.
	OpenChunkStream(ctx context.Context, containerID, itemID, chunkIndex int64) (ChunkStream, error)
}

// ChunkStream is a pull-based sequence of chunks. Next returns io.EOF after
// the last chunk. Close must be called once the caller stops reading,
// whether or not the stream was exhausted.
type ChunkStream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// HealthChecker is implemented by clients that can probe the backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
