package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange means the requested range does not satisfy
	// 0 <= start <= end < size.
	ErrInvalidRange = errors.New("stream: invalid range")

	// ErrWorkerUnavailable means every worker is cooling down. The engine
	// waits it out a bounded number of times before failing.
	ErrWorkerUnavailable = errors.New("stream: no upstream worker available")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("stream: closed")

	// ErrShortChunk means the upstream returned less data than the file
	// size implies, so the requested range cannot be completed.
	ErrShortChunk = errors.New("stream: upstream returned a short chunk")
)

// FatalError ends a stream after the retry budget was spent. Bytes may
// already have reached the client, so callers abort the connection.
type FatalError struct {
	Op       string
	Chunk    int64
	Attempts int
	Err      error
}

func (e *FatalError) Error() string {
	if e.Chunk < 0 {
		return fmt.Sprintf("stream %s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("stream %s chunk %d: giving up after %d attempts: %v", e.Op, e.Chunk, e.Attempts, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err ended a stream for good.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
