package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Spec is a parsed rate limit of the form "<N>/<unit>", e.g. "60/minute".
// The zero Spec means no limit.
type Spec struct {
	Limit  int
	Window time.Duration
}

// Unlimited reports whether the spec imposes no limit.
func (s Spec) Unlimited() bool { return s.Limit <= 0 }

func (s Spec) String() string {
	if s.Unlimited() {
		return "unlimited"
	}
	var unit string
	switch s.Window {
	case time.Second:
		unit = "second"
	case time.Hour:
		unit = "hour"
	default:
		unit = "minute"
	}
	return fmt.Sprintf("%d/%s", s.Limit, unit)
}

// ParseSpec parses a rate limit spec string. Unit must be one of second,
// minute, or hour.
func ParseSpec(raw string) (Spec, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 2)
	if len(parts) != 2 {
		return Spec{}, fmt.Errorf("ratelimit: malformed spec %q", raw)
	}

	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return Spec{}, fmt.Errorf("ratelimit: malformed spec %q", raw)
	}

	var window time.Duration
	switch strings.TrimSpace(parts[1]) {
	case "second":
		window = time.Second
	case "minute":
		window = time.Minute
	case "hour":
		window = time.Hour
	default:
		return Spec{}, fmt.Errorf("ratelimit: unknown window unit in %q", raw)
	}

	return Spec{Limit: n, Window: window}, nil
}

// MustParseSpec is ParseSpec that panics on malformed input. For use with
// trusted plan catalogue values.
func MustParseSpec(raw string) Spec {
	s, err := ParseSpec(raw)
	if err != nil {
		panic(err)
	}
	return s
}
