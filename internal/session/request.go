package session

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/victornm/typerace/internal/domain"
)

// StartTestRequest is the payload of a startTest event as decoded from the wire.
// Fields keep their dynamic JSON types so that validation can coerce them.
type StartTestRequest struct {
	Paragraph any
	Duration  any
}

// Announcement validates the request and returns the announcement to broadcast.
// The paragraph must be a non-empty string and the duration must coerce to a
// positive integer: integral part of a number, or leading integer of a string.
func (r StartTestRequest) Announcement() (domain.Announcement, error) {
	p, ok := r.Paragraph.(string)
	if !ok || p == "" {
		return domain.Announcement{}, fmt.Errorf("paragraph must be a non-empty string, got %#v", r.Paragraph)
	}

	d, err := coerceDuration(r.Duration)
	if err != nil {
		return domain.Announcement{}, fmt.Errorf("duration: %w", err)
	}

	return domain.Announcement{Paragraph: p, Duration: d}, nil
}

func coerceDuration(v any) (int, error) {
	var n int64

	switch d := v.(type) {
	case string:
		i, err := leadingInt(d)
		if err != nil {
			return 0, err
		}
		n = i
	case json.Number:
		if i, err := d.Int64(); err == nil {
			n = i
			break
		}
		f, err := d.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", d)
		}
		i, err := truncate(f)
		if err != nil {
			return 0, err
		}
		n = i
	case float64:
		i, err := truncate(d)
		if err != nil {
			return 0, err
		}
		n = i
	case int:
		n = int64(d)
	case int64:
		n = d
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}

	if n <= 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("must be a positive integer, got %d", n)
	}

	return int(n), nil
}

func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %v", f)
	}

	return int64(f), nil
}

// leadingInt parses the optional sign and the digits at the start of s, after
// leading whitespace, and ignores the rest.
func leadingInt(s string) (int64, error) {
	s = strings.TrimSpace(s)

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, fmt.Errorf("not an integer: %q", s)
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q: %w", s, err)
	}

	return n, nil
}
