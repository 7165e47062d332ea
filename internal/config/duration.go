package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseThreshold parses the auto_update / artifact age threshold
// string (§4.4, §6): "never" disables the age check entirely (a nil
// result), a bare Go duration like "1h" or "90m" is passed through to
// time.ParseDuration, and a "<number> <unit>" pair such as "3.5 days"
// or "2 weeks" is accepted for the coarser units time.ParseDuration
// doesn't know about.
func ParseThreshold(raw string) (*time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "never") {
		return nil, nil
	}

	if d, err := time.ParseDuration(strings.ReplaceAll(s, " ", "")); err == nil {
		return &d, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, fmt.Errorf("invalid duration %q", raw)
	}
	amount, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	unit, ok := longUnits[strings.ToLower(strings.TrimSuffix(fields[1], "s"))]
	if !ok {
		return nil, fmt.Errorf("invalid duration %q: unknown unit %q", raw, fields[1])
	}
	d := time.Duration(amount * float64(unit))
	return &d, nil
}

var longUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}
