// Package link converts file handles to and from the compact token used in
// public URLs.
//
// A token is the URL-safe base64 encoding, without padding, of
// "<container_id>_<item_id>". Decoding accepts tokens with or without
// trailing padding.
package link

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// FileHandle identifies a remotely stored file.
type FileHandle struct {
	ContainerID int64
	ItemID      int64
}

func (h FileHandle) String() string {
	return fmt.Sprintf("%d/%d", h.ContainerID, h.ItemID)
}

// DecodeError reports a malformed link token.
type DecodeError struct {
	Link   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid link %q: %s", e.Link, e.Reason)
}

// Encode returns the token for (containerID, itemID).
func Encode(containerID, itemID int64) string {
	raw := strconv.FormatInt(containerID, 10) + "_" + strconv.FormatInt(itemID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// EncodeHandle is Encode for a FileHandle.
func EncodeHandle(h FileHandle) string {
	return Encode(h.ContainerID, h.ItemID)
}

// Decode parses a token back into a FileHandle. Any malformed input yields
// a *DecodeError.
func Decode(token string) (FileHandle, error) {
	if token == "" {
		return FileHandle{}, &DecodeError{Link: token, Reason: "empty"}
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return FileHandle{}, &DecodeError{Link: token, Reason: "not base64"}
	}

	parts := strings.Split(string(raw), "_")
	if len(parts) != 2 {
		return FileHandle{}, &DecodeError{Link: token, Reason: "expected two segments"}
	}

	cid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return FileHandle{}, &DecodeError{Link: token, Reason: "container id is not an integer"}
	}
	iid, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return FileHandle{}, &DecodeError{Link: token, Reason: "item id is not an integer"}
	}

	return FileHandle{ContainerID: cid, ItemID: iid}, nil
}
