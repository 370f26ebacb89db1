// Package orchestrate is the decision core: it ranks detected events, applies
// the per-broker message budget and send window, and drives delivery. Probes
// and transports stay policy-free; everything judgemental lives here.
package orchestrate

import (
	"sort"

	"lastro/internal/event"
)

// urgencyWeight orders the three urgency levels.
func urgencyWeight(u event.Urgency) int {
	switch u {
	case event.UrgencyHigh:
		return 3
	case event.UrgencyMedium:
		return 2
	case event.UrgencyLow:
		return 1
	default:
		return 0
	}
}

// typeWeight breaks urgency ties. A fresh lead beats everything at equal
// urgency because response time is the one lever that moves conversion.
func typeWeight(t event.Type) int {
	switch t {
	case event.TypeNewLead:
		return 10
	case event.TypeUrgentClient:
		return 9
	case event.TypeUnansweredLead:
		return 8
	case event.TypeUpcomingVisit:
		return 7
	case event.TypePatternDetected:
		return 5
	case event.TypeListingPriceChange:
		return 4
	case event.TypePendingFollowup:
		return 3
	default:
		return 0
	}
}

// Rank sorts events most-important-first: urgency, then type weight, then the
// detector's own score. The sort is stable so same-key events keep detection
// order.
func Rank(evs []event.Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if ua, ub := urgencyWeight(a.Urgency), urgencyWeight(b.Urgency); ua != ub {
			return ua > ub
		}
		if ta, tb := typeWeight(a.Type), typeWeight(b.Type); ta != tb {
			return ta > tb
		}
		return a.Score() > b.Score()
	})
}
