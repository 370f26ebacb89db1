// Package broker holds the data model shared by detectors, analytics and the
// dispatch loop: brokers and their preferences, leads, appointments, listings.
package broker

import "time"

// SendWindow is a preferred local time-of-day range [Start, End) for
// non-urgent notifications. A window may wrap midnight (Start > End).
type SendWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// TimeOfDay is minutes since local midnight, 0..1439.
type TimeOfDay int

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Contains reports whether tod falls inside the window, handling wrap-around.
func (w SendWindow) Contains(tod TimeOfDay) bool {
	if w.Start == w.End {
		// Degenerate window: treat as always closed.
		return false
	}
	if w.Start < w.End {
		return tod >= w.Start && tod < w.End
	}
	// Wraps midnight, e.g. 22:00-06:00.
	return tod >= w.Start || tod < w.End
}

// Preferences is a broker's notification preference set.
// Loaded once per cycle and read-only during that cycle.
type Preferences struct {
	DailyCap      int // max notifications per calendar day, >= 0
	Window        SendWindow
	DailySummary  bool
	WeeklySummary bool
}

// Broker is the recipient of prioritized notifications.
type Broker struct {
	ID     string
	Name   string
	Phone  string // WhatsApp destination, E.164
	Email  string
	Agency string

	Prefs  *Preferences
	Active bool

	RegisteredAt time.Time
}

// LeadStatus tracks a lead through the sales funnel.
type LeadStatus string

const (
	LeadNew          LeadStatus = "new"
	LeadContacted    LeadStatus = "contacted"
	LeadNegotiating  LeadStatus = "negotiating"
	LeadVisitBooked  LeadStatus = "visit_booked"
	LeadProposalSent LeadStatus = "proposal_sent"
	LeadClosed       LeadStatus = "closed"
	LeadLost         LeadStatus = "lost"
)

// InteractionKind classifies a single lead touchpoint.
type InteractionKind string

const (
	InteractionInbound  InteractionKind = "message_received"
	InteractionOutbound InteractionKind = "message_sent"
	InteractionCall     InteractionKind = "call"
	InteractionVisit    InteractionKind = "visit"
	InteractionProposal InteractionKind = "proposal"
)

type Interaction struct {
	At      time.Time
	Kind    InteractionKind
	Content string
}

// SearchProfile captures what a lead is looking for.
type SearchProfile struct {
	Neighborhoods []string
	PropertyType  string
	PriceMax      float64
	Features      []string // balcony, parking, pet-friendly, ...
	Financing     bool
}

type Lead struct {
	ID       string
	Name     string
	Phone    string
	Source   string // portal name or "referral"
	BrokerID string

	FirstContactAt    time.Time
	LastInteractionAt time.Time

	Search       SearchProfile
	Interactions []Interaction

	Score    int // 0-10
	Status   LeadStatus
	NextStep string
}

// Appointment is a scheduled visit or meeting.
type Appointment struct {
	ID       string
	BrokerID string
	LeadID   string
	LeadName string
	Listing  string
	At       time.Time
}

// Listing is a property in the broker's portfolio.
type Listing struct {
	ID       string
	BrokerID string
	Address  string
	Price    float64

	// PrevPrice is non-zero when the price changed since the last cycle.
	PrevPrice float64
	ChangedAt time.Time
}

// InboxMessage is a raw unread WhatsApp message addressed to the broker.
type InboxMessage struct {
	From    string // sender phone
	Name    string
	Content string
	At      time.Time

	// LeadID is set when the sender matches a known lead.
	LeadID string

	// UrgentHint is set when the message mentions an explicit deadline
	// or urgency marker (detected upstream; no NLU here).
	UrgentHint bool
}
