package delivery

import (
	"strconv"
	"strings"
)

const rangeUnit = "bytes="

// ParseRange parses a Range header against a resource of size bytes.
//
// It returns (nil, nil) when there is nothing to honour (empty header or a
// unit other than bytes) and the full content should be served. Otherwise it
// returns a span with 0 <= Start <= End <= size-1, or ErrInvalidRange. Only a
// single range is supported; an end beyond the last byte is rejected rather
// than clamped.
func ParseRange(header string, size int64) (*RangeSpec, error) {
	header = strings.TrimSpace(header)
	if header == "" || !strings.HasPrefix(header, rangeUnit) {
		return nil, nil
	}
	spec := strings.TrimSpace(header[len(rangeUnit):])
	if spec == "" || strings.Contains(spec, ",") {
		return nil, ErrInvalidRange
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	var r RangeSpec
	switch {
	case first == "":
		suffix, err := parseOffset(last)
		if err != nil || suffix == 0 {
			return nil, ErrInvalidRange
		}
		r.Start = max(0, size-suffix)
		r.End = size - 1
	case last == "":
		start, err := parseOffset(first)
		if err != nil {
			return nil, ErrInvalidRange
		}
		r.Start = start
		r.End = size - 1
	default:
		start, err := parseOffset(first)
		if err != nil {
			return nil, ErrInvalidRange
		}
		end, err := parseOffset(last)
		if err != nil {
			return nil, ErrInvalidRange
		}
		r.Start, r.End = start, end
	}

	if r.Start < 0 || r.Start > r.End || r.End > size-1 {
		return nil, ErrInvalidRange
	}
	return &r, nil
}

// parseOffset accepts only ASCII digits, so signs and inner spaces are errors,
// and fails on values that do not fit in an int64.
func parseOffset(s string) (int64, error) {
	if s == "" {
		return 0, ErrInvalidRange
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrInvalidRange
		}
	}
	return strconv.ParseInt(s, 10, 64)
}
