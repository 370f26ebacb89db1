package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"lastro/internal/broker"
	logx "lastro/pkg/logx"
)

// Store is the persistence API consumed by detectors, analytics and the
// dispatch loop.
//
// AppendLedger is the only mutation shared across cycles; it must be an
// atomic increment-and-read so concurrent senders cannot overshoot a cap.
type Store interface {
	// Brokers
	GetBroker(ctx context.Context, id string) (*broker.Broker, error)
	SaveBroker(ctx context.Context, b broker.Broker) error
	ListActiveBrokers(ctx context.Context) ([]broker.Broker, error)

	// Leads
	GetLead(ctx context.Context, id string) (*broker.Lead, error)
	SaveLead(ctx context.Context, l broker.Lead) error
	LeadsByBroker(ctx context.Context, brokerID string) ([]broker.Lead, error)

	// Detection feeds. Consume* reads and clears, so a quiet follow-up cycle
	// detects nothing new.
	AddInboxMessage(ctx context.Context, brokerID string, m broker.InboxMessage) error
	ConsumeInbox(ctx context.Context, brokerID string) ([]broker.InboxMessage, error)
	AddPortalLead(ctx context.Context, l broker.Lead) error
	ConsumePortalLeads(ctx context.Context, brokerID string) ([]broker.Lead, error)

	// Calendar & portfolio
	SaveAppointment(ctx context.Context, a broker.Appointment) error
	Appointments(ctx context.Context, brokerID string, from, to time.Time) ([]broker.Appointment, error)
	SaveListing(ctx context.Context, l broker.Listing) error
	ConsumeListingChanges(ctx context.Context, brokerID string) ([]broker.Listing, error)

	// Daily send ledger, keyed (brokerID, date). Date uses LedgerDate format.
	AppendLedger(ctx context.Context, brokerID, date string) (int, error)
	ReadLedger(ctx context.Context, brokerID, date string) (int, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		return NewMemory(cfg), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
