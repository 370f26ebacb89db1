package detect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lastro/internal/broker"
	"lastro/internal/event"
	"lastro/internal/storage"
)

// staleLeadDetector finds active leads that have gone quiet. A lead past the
// silence threshold becomes an unanswered_lead event whose urgency follows
// the lead score; a lead whose last visit was long ago with no outbound touch
// since becomes a pending_followup.
type staleLeadDetector struct {
	store storage.Store
	cfg   Config
	now   func() time.Time
}

func NewStaleLead(store storage.Store, cfg Config) Detector {
	return &staleLeadDetector{store: store, cfg: cfg.withDefaults(), now: time.Now}
}

func (d *staleLeadDetector) Name() string { return "stale_lead" }

func (d *staleLeadDetector) Detect(ctx context.Context, brokerID string) ([]event.Event, error) {
	leads, err := d.store.LeadsByBroker(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	now := d.now()

	var out []event.Event
	for _, l := range leads {
		if l.Status == broker.LeadClosed || l.Status == broker.LeadLost {
			continue
		}
		if ev, ok := d.staleEvent(l, now); ok {
			out = append(out, ev)
			continue
		}
		if ev, ok := d.followupEvent(l, now); ok {
			out = append(out, ev)
		}
	}

	// Hottest leads first so a capped day spends its budget on them.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	return out, nil
}

func (d *staleLeadDetector) staleEvent(l broker.Lead, now time.Time) (event.Event, bool) {
	if l.LastInteractionAt.IsZero() {
		return event.Event{}, false
	}
	silent := now.Sub(l.LastInteractionAt)
	if silent < d.cfg.StaleAfter {
		return event.Event{}, false
	}

	urgency := event.UrgencyLow
	switch {
	case l.Score >= 7:
		urgency = event.UrgencyHigh
	case l.Score >= 5:
		urgency = event.UrgencyMedium
	}
	hours := int(silent.Hours())
	return event.Event{
		ID:                event.NewID(),
		Type:              event.TypeUnansweredLead,
		Urgency:           urgency,
		BrokerID:          l.BrokerID,
		LeadID:            l.ID,
		Title:             fmt.Sprintf("%s has waited %dh for a reply", l.Name, hours),
		Description:       fmt.Sprintf("Score %d/10, status %s", l.Score, l.Status),
		RecommendedAction: "Send a follow-up message today",
		DetectedAt:        now,
		Metadata: map[string]any{
			"score":        l.Score,
			"hours_silent": hours,
			"lead_name":    l.Name,
		},
	}, true
}

func (d *staleLeadDetector) followupEvent(l broker.Lead, now time.Time) (event.Event, bool) {
	var lastVisit, lastOutbound time.Time
	for _, it := range l.Interactions {
		switch it.Kind {
		case broker.InteractionVisit:
			if it.At.After(lastVisit) {
				lastVisit = it.At
			}
		case broker.InteractionOutbound, broker.InteractionCall, broker.InteractionProposal:
			if it.At.After(lastOutbound) {
				lastOutbound = it.At
			}
		}
	}
	if lastVisit.IsZero() || now.Sub(lastVisit) < d.cfg.FollowupAfter {
		return event.Event{}, false
	}
	if lastOutbound.After(lastVisit) {
		return event.Event{}, false
	}
	days := int(now.Sub(lastVisit).Hours() / 24)
	return event.Event{
		ID:                event.NewID(),
		Type:              event.TypePendingFollowup,
		Urgency:           event.UrgencyLow,
		BrokerID:          l.BrokerID,
		LeadID:            l.ID,
		Title:             fmt.Sprintf("No follow-up since %s's visit %d days ago", l.Name, days),
		Description:       fmt.Sprintf("Score %d/10", l.Score),
		RecommendedAction: "Ask how the visit landed",
		DetectedAt:        now,
		Metadata: map[string]any{
			"score":            l.Score,
			"days_since_visit": days,
			"lead_name":        l.Name,
		},
	}, true
}
