package detect

import (
	"context"
	"fmt"
	"time"

	"lastro/internal/event"
	"lastro/internal/storage"
)

// inventoryDetector reports price changes in the broker's own portfolio.
// Price drops are a selling argument worth relaying the same day.
type inventoryDetector struct {
	store storage.Store
}

func NewInventory(store storage.Store) Detector { return &inventoryDetector{store: store} }

func (d *inventoryDetector) Name() string { return "inventory" }

func (d *inventoryDetector) Detect(ctx context.Context, brokerID string) ([]event.Event, error) {
	changes, err := d.store.ConsumeListingChanges(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	var out []event.Event
	for _, l := range changes {
		if l.PrevPrice == 0 || l.PrevPrice == l.Price {
			continue
		}
		direction := "rose"
		action := "Review the asking strategy"
		if l.Price < l.PrevPrice {
			direction = "dropped"
			action = "Notify matching leads about the new price"
		}
		out = append(out, event.Event{
			ID:                event.NewID(),
			Type:              event.TypeListingPriceChange,
			Urgency:           event.UrgencyMedium,
			BrokerID:          brokerID,
			Title:             fmt.Sprintf("Price %s: %s", direction, l.Address),
			Description:       fmt.Sprintf("%s -> %s", formatPrice(l.PrevPrice), formatPrice(l.Price)),
			RecommendedAction: action,
			DetectedAt:        time.Now(),
			Metadata: map[string]any{
				"listing_id": l.ID,
				"address":    l.Address,
				"prev_price": l.PrevPrice,
				"new_price":  l.Price,
			},
		})
	}
	return out, nil
}

func formatPrice(p float64) string {
	return fmt.Sprintf("R$ %.0f", p)
}
