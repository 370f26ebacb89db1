package detect

import (
	"context"
	"fmt"
	"time"

	"lastro/internal/event"
	"lastro/internal/storage"
)

// inboxDetector turns unread WhatsApp messages into events.
//
// A message from an unknown sender is a fresh lead; a message from a known
// lead that carries an urgency marker is an urgent_client event. Routine
// messages from known leads are left to the stale-lead probe.
type inboxDetector struct {
	store storage.Store
}

func NewInbox(store storage.Store) Detector { return &inboxDetector{store: store} }

func (d *inboxDetector) Name() string { return "inbox" }

func (d *inboxDetector) Detect(ctx context.Context, brokerID string) ([]event.Event, error) {
	msgs, err := d.store.ConsumeInbox(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	var out []event.Event
	for _, m := range msgs {
		switch {
		case m.LeadID == "":
			out = append(out, event.Event{
				ID:                event.NewID(),
				Type:              event.TypeNewLead,
				Urgency:           event.UrgencyHigh,
				BrokerID:          brokerID,
				Title:             fmt.Sprintf("New message from %s", displayName(m.Name, m.From)),
				Description:       "First message: " + clip(m.Content, 100),
				RecommendedAction: "Reply within 5 minutes",
				DetectedAt:        time.Now(),
				Metadata: map[string]any{
					"from":    m.From,
					"name":    m.Name,
					"content": m.Content,
				},
			})
		case m.UrgentHint:
			out = append(out, event.Event{
				ID:                event.NewID(),
				Type:              event.TypeUrgentClient,
				Urgency:           event.UrgencyHigh,
				BrokerID:          brokerID,
				LeadID:            m.LeadID,
				Title:             fmt.Sprintf("%s mentioned urgency", displayName(m.Name, m.From)),
				Description:       clip(m.Content, 140),
				RecommendedAction: "Reply now",
				DetectedAt:        time.Now(),
				Metadata: map[string]any{
					"from":    m.From,
					"name":    m.Name,
					"content": m.Content,
				},
			})
		}
	}
	return out, nil
}

func displayName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
