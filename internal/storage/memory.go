package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"lastro/internal/broker"
)

// memoryStore is the in-process backend. It is the default driver and the
// one the tests run against.
type memoryStore struct {
	mu sync.Mutex

	brokers      map[string]broker.Broker
	leads        map[string]broker.Lead
	inbox        map[string][]broker.InboxMessage // brokerID -> unread
	portal       map[string][]broker.Lead         // brokerID -> unseen arrivals
	appointments map[string][]broker.Appointment  // brokerID -> upcoming
	listings     map[string]map[string]broker.Listing

	ledger        map[string]int // brokerID + "|" + date -> count
	retentionDays int
}

// NewMemory returns an empty in-memory store.
func NewMemory(cfg Config) Store {
	retention := cfg.LedgerRetentionDays
	if retention <= 0 {
		retention = 2
	}
	return &memoryStore{
		brokers:       map[string]broker.Broker{},
		leads:         map[string]broker.Lead{},
		inbox:         map[string][]broker.InboxMessage{},
		portal:        map[string][]broker.Lead{},
		appointments:  map[string][]broker.Appointment{},
		listings:      map[string]map[string]broker.Listing{},
		ledger:        map[string]int{},
		retentionDays: retention,
	}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) GetBroker(_ context.Context, id string) (*broker.Broker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.brokers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := b
	return &cp, nil
}

func (s *memoryStore) SaveBroker(_ context.Context, b broker.Broker) error {
	s.mu.Lock()
	s.brokers[b.ID] = b
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) ListActiveBrokers(_ context.Context) ([]broker.Broker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]broker.Broker, 0, len(s.brokers))
	for _, b := range s.brokers {
		if b.Active {
			out = append(out, b)
		}
	}
	// Deterministic iteration for callers and tests.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) GetLead(_ context.Context, id string) (*broker.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := l
	return &cp, nil
}

func (s *memoryStore) SaveLead(_ context.Context, l broker.Lead) error {
	s.mu.Lock()
	s.leads[l.ID] = l
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) LeadsByBroker(_ context.Context, brokerID string) ([]broker.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []broker.Lead
	for _, l := range s.leads {
		if l.BrokerID == brokerID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) AddInboxMessage(_ context.Context, brokerID string, m broker.InboxMessage) error {
	s.mu.Lock()
	s.inbox[brokerID] = append(s.inbox[brokerID], m)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) ConsumeInbox(_ context.Context, brokerID string) ([]broker.InboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.inbox[brokerID]
	delete(s.inbox, brokerID)
	return out, nil
}

func (s *memoryStore) AddPortalLead(_ context.Context, l broker.Lead) error {
	s.mu.Lock()
	s.leads[l.ID] = l
	s.portal[l.BrokerID] = append(s.portal[l.BrokerID], l)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) ConsumePortalLeads(_ context.Context, brokerID string) ([]broker.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.portal[brokerID]
	delete(s.portal, brokerID)
	return out, nil
}

func (s *memoryStore) SaveAppointment(_ context.Context, a broker.Appointment) error {
	s.mu.Lock()
	s.appointments[a.BrokerID] = append(s.appointments[a.BrokerID], a)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Appointments(_ context.Context, brokerID string, from, to time.Time) ([]broker.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []broker.Appointment
	for _, a := range s.appointments[brokerID] {
		if a.At.Before(from) || !a.At.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (s *memoryStore) SaveListing(_ context.Context, l broker.Listing) error {
	s.mu.Lock()
	m := s.listings[l.BrokerID]
	if m == nil {
		m = map[string]broker.Listing{}
		s.listings[l.BrokerID] = m
	}
	if prev, ok := m[l.ID]; ok && prev.Price != l.Price {
		l.PrevPrice = prev.Price
		if l.ChangedAt.IsZero() {
			l.ChangedAt = time.Now()
		}
	}
	m[l.ID] = l
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) ConsumeListingChanges(_ context.Context, brokerID string) ([]broker.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []broker.Listing
	for id, l := range s.listings[brokerID] {
		if l.PrevPrice != 0 {
			out = append(out, l)
			l.PrevPrice = 0
			s.listings[brokerID][id] = l
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) AppendLedger(_ context.Context, brokerID, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := brokerID + "|" + date
	s.ledger[key]++
	s.pruneLedgerLocked(date)
	return s.ledger[key], nil
}

func (s *memoryStore) ReadLedger(_ context.Context, brokerID, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger[brokerID+"|"+date], nil
}

// pruneLedgerLocked drops entries older than the retention window so the
// ledger does not grow with every calendar day the process survives.
func (s *memoryStore) pruneLedgerLocked(today string) {
	t, err := time.Parse(LedgerDate, today)
	if err != nil {
		return
	}
	floor := DateKey(t.AddDate(0, 0, -(s.retentionDays - 1)))
	for key := range s.ledger {
		if i := len(key) - len(LedgerDate); i > 0 && key[i:] < floor {
			delete(s.ledger, key)
		}
	}
}
