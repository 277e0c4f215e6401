// Package chunk defines the fixed-size segmentation used for caching and
// upstream fetches.
//
// A file is split into chunks of Size bytes. Chunk i covers file bytes
// [i*Size, (i+1)*Size). The last chunk of a file is shorter unless the
// file size is a multiple of Size. Chunks are the unit the cache stores
// and the unit upstream streams yield.
package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Size is the chunk size in bytes (1 MiB).
const Size = 1024 * 1024

// Key addresses one chunk of one file.
type Key struct {
	ContainerID int64
	ItemID      int64
	Index       int64
}

// NewKey returns the key for chunk index of the given file.
func NewKey(containerID, itemID, index int64) Key {
	return Key{ContainerID: containerID, ItemID: itemID, Index: index}
}

// String renders the key as "cid:iid:index".
func (k Key) String() string {
	return strconv.FormatInt(k.ContainerID, 10) + ":" +
		strconv.FormatInt(k.ItemID, 10) + ":" +
		strconv.FormatInt(k.Index, 10)
}

// ParseKey parses the output of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("invalid chunk key %q", s)
	}
	var vals [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Key{}, fmt.Errorf("invalid chunk key %q: %w", s, err)
		}
		vals[i] = v
	}
	return Key{ContainerID: vals[0], ItemID: vals[1], Index: vals[2]}, nil
}

// binaryKeyLen is the encoded length of a Key in MarshalBinary form.
const binaryKeyLen = 24

// MarshalBinary encodes the key as three big-endian int64s, so that keys of
// one file sort by chunk index.
func (k Key) MarshalBinary() ([]byte, error) {
	buf := make([]byte, binaryKeyLen)
	binary.BigEndian.PutUint64(buf[0:8], uint64(k.ContainerID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(k.ItemID))
	binary.BigEndian.PutUint64(buf[16:24], uint64(k.Index))
	return buf, nil
}

// UnmarshalBinary decodes a key produced by MarshalBinary.
func (k *Key) UnmarshalBinary(data []byte) error {
	if len(data) != binaryKeyLen {
		return errors.New("chunk key: bad length")
	}
	k.ContainerID = int64(binary.BigEndian.Uint64(data[0:8]))
	k.ItemID = int64(binary.BigEndian.Uint64(data[8:16]))
	k.Index = int64(binary.BigEndian.Uint64(data[16:24]))
	return nil
}

// IndexForOffset returns the chunk index containing a file offset.
//
//	IndexForOffset(0)       → 0
//	IndexForOffset(1500000) → 1
func IndexForOffset(offset int64) int64 {
	return offset / Size
}

// OffsetInChunk returns the position of a file offset inside its chunk.
//
//	OffsetInChunk(1500000) → 451424
func OffsetInChunk(offset int64) int64 {
	return offset % Size
}

// Count returns the number of chunks in a file of the given size.
func Count(fileSize int64) int64 {
	if fileSize <= 0 {
		return 0
	}
	return (fileSize + Size - 1) / Size
}

// Bounds returns the file-level range [start, end) covered by chunk idx in
// a file of fileSize bytes. end is clipped to fileSize.
func Bounds(idx, fileSize int64) (start, end int64) {
	start = idx * Size
	end = min(start+Size, fileSize)
	if end < start {
		end = start
	}
	return start, end
}

// Plan is the chunk-level view of an inclusive byte range.
type Plan struct {
	Start      int64 // first requested byte
	End        int64 // last requested byte, inclusive
	FirstChunk int64 // Start / Size
	LastChunk  int64 // End / Size
	Skip       int64 // bytes to drop from the first chunk
	Total      int64 // End - Start + 1
}

// PlanRange maps [start, end] onto chunks. It does not validate the range
// against a file size.
//
//	PlanRange(1500000, 2500000) → FirstChunk 1, LastChunk 2, Skip 451424, Total 1000001
func PlanRange(start, end int64) Plan {
	return Plan{
		Start:      start,
		End:        end,
		FirstChunk: IndexForOffset(start),
		LastChunk:  IndexForOffset(end),
		Skip:       OffsetInChunk(start),
		Total:      end - start + 1,
	}
}

// Chunks returns how many chunks the plan touches.
func (p Plan) Chunks() int64 {
	return p.LastChunk - p.FirstChunk + 1
}
