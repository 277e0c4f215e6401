package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errMalformedRange     = errors.New("malformed Range header")
	errUnsatisfiableRange = errors.New("range not satisfiable")
)

// byteRange is a parsed "bytes=" range before the file size is known.
// Exactly one of the forms applies:
//
//	start-end  → hasEnd
//	start-     → open ended
//	-suffix    → last suffix bytes
type byteRange struct {
	start  int64
	end    int64
	hasEnd bool
	suffix int64
	isSuf  bool
}

// parseRange parses a Range header value. Only the first range of a
// multi-range request is kept. It needs no file size, so malformed headers
// are rejected before any upstream work.
func parseRange(header string) (byteRange, error) {
	set, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return byteRange{}, fmt.Errorf("%w: unit must be bytes", errMalformedRange)
	}
	first, _, _ := strings.Cut(set, ",")
	first = strings.TrimSpace(first)

	startStr, endStr, ok := strings.Cut(first, "-")
	if !ok {
		return byteRange{}, fmt.Errorf("%w: missing '-'", errMalformedRange)
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		n, err := parseOffset(endStr)
		if err != nil {
			return byteRange{}, err
		}
		return byteRange{suffix: n, isSuf: true}, nil
	}

	start, err := parseOffset(startStr)
	if err != nil {
		return byteRange{}, err
	}
	if endStr == "" {
		return byteRange{start: start}, nil
	}
	end, err := parseOffset(endStr)
	if err != nil {
		return byteRange{}, err
	}
	if end < start {
		return byteRange{}, fmt.Errorf("%w: end before start", errMalformedRange)
	}
	return byteRange{start: start, end: end, hasEnd: true}, nil
}

func parseOffset(s string) (int64, error) {
	if s == "" || strings.ContainsAny(s, "+-") {
		return 0, fmt.Errorf("%w: bad offset %q", errMalformedRange, s)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad offset %q", errMalformedRange, s)
	}
	return n, nil
}

// resolve clamps the range to a file of size bytes and returns the
// inclusive [start, end].
func (r byteRange) resolve(size int64) (int64, int64, error) {
	if size <= 0 {
		return 0, 0, errUnsatisfiableRange
	}
	if r.isSuf {
		if r.suffix == 0 {
			return 0, 0, errUnsatisfiableRange
		}
		return max(size-r.suffix, 0), size - 1, nil
	}
	if r.start >= size {
		return 0, 0, errUnsatisfiableRange
	}
	end := size - 1
	if r.hasEnd && r.end < end {
		end = r.end
	}
	return r.start, end, nil
}
