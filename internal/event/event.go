package event

import (
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of occurrences the detectors can report.
//
// Keep this enum in sync with the weight table in internal/orchestrate and
// the per-type formatting in internal/compose: a new Type must be classified
// in both before it can flow through a cycle.
type Type string

const (
	TypeNewLead            Type = "new_lead"
	TypeUnansweredLead     Type = "unanswered_lead"
	TypeUrgentClient       Type = "urgent_client"
	TypePatternDetected    Type = "pattern_detected"
	TypeUpcomingVisit      Type = "upcoming_visit"
	TypeListingPriceChange Type = "listing_price_change"
	TypePendingFollowup    Type = "pending_followup"
)

// Urgency is a coarse 3-level priority signal.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Event is a detected occurrence that may warrant a broker notification.
//
// An Event is immutable after detection except for the single Processed
// transition (false -> true), performed only by the dispatch loop once
// delivery is confirmed. Deferred and batched events stay unprocessed
// until they come back around.
type Event struct {
	ID       string
	Type     Type
	Urgency  Urgency
	BrokerID string

	// LeadID is a weak reference: lookup only, the event does not own the lead.
	LeadID string

	Title             string
	Description       string
	RecommendedAction string

	DetectedAt time.Time
	Processed  bool

	// Metadata carries auxiliary detector output (lead score,
	// minutes-until-appointment, ...) used by formatting and the priority key.
	Metadata map[string]any
}

// NewID returns an opaque unique event identifier.
func NewID() string { return "evt_" + uuid.NewString() }

// Score returns metadata["score"] as an int, or 0 when absent/untyped.
// Detectors write scores as int; JSON round-trips may widen to float64.
func (e Event) Score() int {
	switch v := e.Metadata["score"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// MinutesUntil returns metadata["minutes_until"], or fallback when absent.
func (e Event) MinutesUntil(fallback int) int {
	switch v := e.Metadata["minutes_until"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
