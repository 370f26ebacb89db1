package event

import (
	"strings"
	"testing"
)

func TestScoreTolerantOfNumericWidening(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		meta map[string]any
		want int
	}{
		{"int", map[string]any{"score": 8}, 8},
		{"int64", map[string]any{"score": int64(7)}, 7},
		{"float64 from json", map[string]any{"score": 9.0}, 9},
		{"absent", map[string]any{}, 0},
		{"nil metadata", nil, 0},
		{"wrong type", map[string]any{"score": "high"}, 0},
	}
	for _, tc := range cases {
		e := Event{Metadata: tc.meta}
		if got := e.Score(); got != tc.want {
			t.Errorf("%s: Score() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestMinutesUntilFallback(t *testing.T) {
	t.Parallel()

	e := Event{Metadata: map[string]any{"minutes_until": 25.0}}
	if got := e.MinutesUntil(999); got != 25 {
		t.Errorf("MinutesUntil = %d, want 25", got)
	}
	if got := (Event{}).MinutesUntil(999); got != 999 {
		t.Errorf("fallback = %d, want 999", got)
	}
}

func TestNewIDShape(t *testing.T) {
	t.Parallel()
	a, b := NewID(), NewID()
	if !strings.HasPrefix(a, "evt_") {
		t.Errorf("id %q missing prefix", a)
	}
	if a == b {
		t.Error("consecutive ids collide")
	}
}
