package detect

import (
	"context"
	"fmt"
	"time"

	"lastro/internal/event"
	"lastro/internal/storage"
)

// calendarDetector reports appointments coming up within the lookahead.
// Urgency tightens as the visit approaches: 30 minutes out is high, an hour
// out is medium, anything beyond is low.
type calendarDetector struct {
	store storage.Store
	cfg   Config
	now   func() time.Time
}

func NewCalendar(store storage.Store, cfg Config) Detector {
	return &calendarDetector{store: store, cfg: cfg.withDefaults(), now: time.Now}
}

func (d *calendarDetector) Name() string { return "calendar" }

func (d *calendarDetector) Detect(ctx context.Context, brokerID string) ([]event.Event, error) {
	now := d.now()
	appts, err := d.store.Appointments(ctx, brokerID, now, now.Add(d.cfg.CalendarLookahead))
	if err != nil {
		return nil, err
	}

	var out []event.Event
	for _, a := range appts {
		mins := int(a.At.Sub(now).Minutes())
		if mins < 0 {
			continue
		}
		urgency := event.UrgencyLow
		switch {
		case mins <= 30:
			urgency = event.UrgencyHigh
		case mins <= 60:
			urgency = event.UrgencyMedium
		}
		out = append(out, event.Event{
			ID:                event.NewID(),
			Type:              event.TypeUpcomingVisit,
			Urgency:           urgency,
			BrokerID:          brokerID,
			LeadID:            a.LeadID,
			Title:             fmt.Sprintf("Visit in %d min: %s", mins, a.LeadName),
			Description:       a.Listing,
			RecommendedAction: "Confirm with the client and check the route",
			DetectedAt:        now,
			Metadata: map[string]any{
				"minutes_until": mins,
				"lead_name":     a.LeadName,
				"listing":       a.Listing,
				"at":            a.At.Format("15:04"),
			},
		})
	}
	return out, nil
}
