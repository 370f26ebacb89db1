package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"lastro/internal/broker"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseClockField parses "HH:MM" into a time of day. An empty value returns
// the default.
func ParseClockField(path, raw string, def broker.TimeOfDay) (broker.TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%s: invalid clock %q, want HH:MM", path, raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%s: invalid hour in %q", path, raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%s: invalid minute in %q", path, raw)
	}
	return broker.TimeOfDay(h*60 + m), nil
}
