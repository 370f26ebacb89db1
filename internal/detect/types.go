// Package detect contains the probes that watch a broker's data sources and
// turn raw occurrences into events. Probes detect, they never decide: every
// judgement call (send now, defer, batch) belongs to the orchestrator.
package detect

import (
	"context"
	"time"

	"lastro/internal/event"
)

// Detector is one independent probe. A failing probe is logged and skipped;
// it must never abort the others.
type Detector interface {
	Name() string
	Detect(ctx context.Context, brokerID string) ([]event.Event, error)
}

// Config holds the detection thresholds shared by the probes.
type Config struct {
	// StaleAfter is how long a lead may wait for a reply before it becomes
	// an unanswered_lead event.
	StaleAfter time.Duration

	// CalendarLookahead is how far ahead the calendar probe looks for
	// appointments.
	CalendarLookahead time.Duration

	// FollowupAfter is how long after a visit a lead may sit without an
	// outbound touch before a pending_followup event fires.
	FollowupAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 24 * time.Hour
	}
	if c.CalendarLookahead <= 0 {
		c.CalendarLookahead = 2 * time.Hour
	}
	if c.FollowupAfter <= 0 {
		c.FollowupAfter = 5 * 24 * time.Hour
	}
	return c
}
