package transport

import (
	"context"
	"time"
)

// Receipt confirms a delivered message.
type Receipt struct {
	ProviderID  string
	DeliveredAt time.Time
}

// Sender delivers one text message to one phone number (E.164).
//
// Implementations are thin wrappers around an external messaging provider;
// retry, rate limiting and dedup live in internal/delivery, not here.
type Sender interface {
	SendText(ctx context.Context, to string, text string) (Receipt, error)
}
