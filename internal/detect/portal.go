package detect

import (
	"context"
	"fmt"
	"time"

	"lastro/internal/event"
	"lastro/internal/storage"
)

// portalDetector turns listing-portal lead arrivals into new_lead events.
// The first minutes after a portal lead are the ones that convert.
type portalDetector struct {
	store storage.Store
}

func NewPortal(store storage.Store) Detector { return &portalDetector{store: store} }

func (d *portalDetector) Name() string { return "portal" }

func (d *portalDetector) Detect(ctx context.Context, brokerID string) ([]event.Event, error) {
	leads, err := d.store.ConsumePortalLeads(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	var out []event.Event
	for _, l := range leads {
		interest := l.Search.PropertyType
		if interest == "" {
			interest = "not specified"
		}
		out = append(out, event.Event{
			ID:                event.NewID(),
			Type:              event.TypeNewLead,
			Urgency:           event.UrgencyHigh,
			BrokerID:          brokerID,
			LeadID:            l.ID,
			Title:             fmt.Sprintf("New lead: %s (%s)", l.Name, l.Source),
			Description:       "Interest: " + interest,
			RecommendedAction: "Make first contact immediately",
			DetectedAt:        time.Now(),
			Metadata: map[string]any{
				"name":   l.Name,
				"source": l.Source,
				"score":  l.Score,
			},
		})
	}
	return out, nil
}
