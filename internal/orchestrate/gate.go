package orchestrate

import (
	"time"

	"lastro/internal/broker"
	"lastro/internal/event"
)

// Reason explains a gate decision; it ends up in logs and cycle stats.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonBudgetExhausted Reason = "budget_exhausted"
	ReasonOutsideWindow   Reason = "outside_window"
	ReasonUrgentOverride  Reason = "urgent_override"
)

// Decision is the gate's verdict for a single event.
type Decision struct {
	SendNow bool
	// At is the recommended delivery time when SendNow is false.
	At     time.Time
	Reason Reason
}

// immediate reports whether the event belongs to the send-right-now class:
// anything high urgency, fresh or explicitly urgent leads, a visit inside the
// threshold, or a hot lead gone quiet.
func (o *Orchestrator) immediate(ev event.Event) bool {
	if ev.Urgency == event.UrgencyHigh {
		return true
	}
	switch ev.Type {
	case event.TypeNewLead, event.TypeUrgentClient:
		return true
	case event.TypeUpcomingVisit:
		return ev.MinutesUntil(o.cfg.VisitImmediateMin+1) < o.cfg.VisitImmediateMin
	case event.TypeUnansweredLead:
		return ev.Score() >= o.cfg.HotLeadScore
	}
	return false
}

// evaluate applies budget, urgency and window, in that order. The budget is
// absolute: once the daily cap is spent even an urgent event waits for
// tomorrow. Urgent events do override the window, never the cap.
func (o *Orchestrator) evaluate(ev event.Event, prefs broker.Preferences, sentToday int, now time.Time) Decision {
	if sentToday >= prefs.DailyCap {
		return Decision{
			At:     nextDayStart(now, prefs.Window),
			Reason: ReasonBudgetExhausted,
		}
	}

	inWindow := prefs.Window.Contains(timeOfDay(now))
	if o.immediate(ev) {
		if inWindow {
			return Decision{SendNow: true, Reason: ReasonOK}
		}
		return Decision{SendNow: true, Reason: ReasonUrgentOverride}
	}
	if inWindow {
		return Decision{SendNow: true, Reason: ReasonOK}
	}
	return Decision{
		At:     nextWindowStart(now, prefs.Window),
		Reason: ReasonOutsideWindow,
	}
}

// nextDayStart is the first open window moment after the coming local
// midnight, when the daily budget resets.
func nextDayStart(now time.Time, w broker.SendWindow) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return nextWindowStart(midnight, w)
}

func timeOfDay(t time.Time) broker.TimeOfDay {
	return broker.TimeOfDay(t.Hour()*60 + t.Minute())
}

// nextWindowStart returns the next moment at or after now when the window
// opens. Inside the window it returns now itself.
func nextWindowStart(now time.Time, w broker.SendWindow) time.Time {
	if w.Contains(timeOfDay(now)) {
		return now
	}
	start := time.Date(now.Year(), now.Month(), now.Day(),
		w.Start.Hour(), w.Start.Minute(), 0, 0, now.Location())
	if !start.After(now) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}
