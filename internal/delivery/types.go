package delivery

import "time"

// Config controls the outbound WhatsApp pipeline.
type Config struct {
	Enabled         bool
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	SendTimeout     time.Duration
	HistorySize     int
}

type HistoryItem struct {
	At   time.Time
	To   string
	Text string
}

// DeliveryEvent is emitted on the event bus for delivery lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type DeliveryEvent struct {
	To    string    `json:"to"`
	Key   string    `json:"key"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
