package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"lastro/internal/broker"
	logx "lastro/pkg/logx"
)

func TestBrokerRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewMemory(Config{})
	ctx := context.Background()

	if _, err := s.GetBroker(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing broker err = %v, want ErrNotFound", err)
	}

	b := broker.Broker{ID: "b1", Name: "Rafael", Phone: "+55", Active: true}
	if err := s.SaveBroker(ctx, b); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetBroker(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Rafael" || !got.Active {
		t.Errorf("round trip: %+v", got)
	}

	// Mutating the returned copy must not leak into the store.
	got.Name = "changed"
	again, _ := s.GetBroker(ctx, "b1")
	if again.Name != "Rafael" {
		t.Error("GetBroker returned shared state")
	}
}

func TestListActiveBrokers(t *testing.T) {
	t.Parallel()
	s := NewMemory(Config{})
	ctx := context.Background()

	_ = s.SaveBroker(ctx, broker.Broker{ID: "b2", Active: true})
	_ = s.SaveBroker(ctx, broker.Broker{ID: "b1", Active: true})
	_ = s.SaveBroker(ctx, broker.Broker{ID: "b3", Active: false})

	got, err := s.ListActiveBrokers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b1" || got[1].ID != "b2" {
		t.Errorf("active brokers = %+v, want sorted b1,b2", got)
	}
}

func TestConsumeInboxDrains(t *testing.T) {
	t.Parallel()
	s := NewMemory(Config{})
	ctx := context.Background()

	_ = s.AddInboxMessage(ctx, "b1", broker.InboxMessage{From: "+1", Content: "hi"})
	_ = s.AddInboxMessage(ctx, "b1", broker.InboxMessage{From: "+2", Content: "hey"})

	got, err := s.ConsumeInbox(ctx, "b1")
	if err != nil || len(got) != 2 {
		t.Fatalf("first consume = %d msgs, err %v", len(got), err)
	}
	got, err = s.ConsumeInbox(ctx, "b1")
	if err != nil || len(got) != 0 {
		t.Fatalf("second consume = %d msgs, err %v; want drained", len(got), err)
	}
}

func TestConsumePortalLeadsAlsoSavesLead(t *testing.T) {
	t.Parallel()
	s := NewMemory(Config{})
	ctx := context.Background()

	_ = s.AddPortalLead(ctx, broker.Lead{ID: "l1", BrokerID: "b1", Name: "Ana", Source: "zap"})

	got, err := s.ConsumePortalLeads(ctx, "b1")
	if err != nil || len(got) != 1 {
		t.Fatalf("consume = %d, err %v", len(got), err)
	}
	if got, _ := s.ConsumePortalLeads(ctx, "b1"); len(got) != 0 {
		t.Fatal("portal arrivals not drained")
	}
	// The lead itself stays queryable after consumption.
	l, err := s.GetLead(ctx, "l1")
	if err != nil || l.Name != "Ana" {
		t.Fatalf("lead after consume: %+v, err %v", l, err)
	}
}

func TestAppointmentsRange(t *testing.T) {
	t.Parallel()
	s := NewMemory(Config{})
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	_ = s.SaveAppointment(ctx, broker.Appointment{ID: "a_past", BrokerID: "b1", At: base.Add(-time.Hour)})
	_ = s.SaveAppointment(ctx, broker.Appointment{ID: "a_late", BrokerID: "b1", At: base.Add(90 * time.Minute)})
	_ = s.SaveAppointment(ctx, broker.Appointment{ID: "a_soon", BrokerID: "b1", At: base.Add(30 * time.Minute)})
	_ = s.SaveAppointment(ctx, broker.Appointment{ID: "a_edge", BrokerID: "b1", At: base.Add(2 * time.Hour)})

	got, err := s.Appointments(ctx, "b1", base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("appointments: %v", err)
	}
	// Past excluded, end exclusive, sorted ascending.
	if len(got) != 2 || got[0].ID != "a_soon" || got[1].ID != "a_late" {
		ids := make([]string, len(got))
		for i, a := range got {
			ids[i] = a.ID
		}
		t.Errorf("range = %v, want [a_soon a_late]", ids)
	}
}

func TestListingPriceChangeConsumedOnce(t *testing.T) {
	t.Parallel()
	s := NewMemory(Config{})
	ctx := context.Background()

	_ = s.SaveListing(ctx, broker.Listing{ID: "ap1", BrokerID: "b1", Address: "Rua X", Price: 500000})
	if got, _ := s.ConsumeListingChanges(ctx, "b1"); len(got) != 0 {
		t.Fatal("initial save reported as a change")
	}

	_ = s.SaveListing(ctx, broker.Listing{ID: "ap1", BrokerID: "b1", Address: "Rua X", Price: 480000})
	got, err := s.ConsumeListingChanges(ctx, "b1")
	if err != nil || len(got) != 1 {
		t.Fatalf("change consume = %d, err %v", len(got), err)
	}
	if got[0].PrevPrice != 500000 || got[0].Price != 480000 {
		t.Errorf("change = prev %.0f new %.0f", got[0].PrevPrice, got[0].Price)
	}
	if got, _ := s.ConsumeListingChanges(ctx, "b1"); len(got) != 0 {
		t.Fatal("change not cleared after consume")
	}

	// Re-saving at the same price is not a change.
	_ = s.SaveListing(ctx, broker.Listing{ID: "ap1", BrokerID: "b1", Address: "Rua X", Price: 480000})
	if got, _ := s.ConsumeListingChanges(ctx, "b1"); len(got) != 0 {
		t.Fatal("same-price save reported as a change")
	}
}

func TestLedgerAppendAndRead(t *testing.T) {
	t.Parallel()
	s := NewMemory(Config{})
	ctx := context.Background()
	day := "2025-03-10"

	if n, _ := s.ReadLedger(ctx, "b1", day); n != 0 {
		t.Fatalf("empty ledger = %d", n)
	}
	for want := 1; want <= 3; want++ {
		n, err := s.AppendLedger(ctx, "b1", day)
		if err != nil || n != want {
			t.Fatalf("append #%d = %d, err %v", want, n, err)
		}
	}
	if n, _ := s.ReadLedger(ctx, "b1", day); n != 3 {
		t.Errorf("read = %d, want 3", n)
	}
	// Other brokers and days are independent counters.
	if n, _ := s.ReadLedger(ctx, "b2", day); n != 0 {
		t.Errorf("b2 ledger = %d", n)
	}
	if n, _ := s.ReadLedger(ctx, "b1", "2025-03-11"); n != 0 {
		t.Errorf("next-day ledger = %d", n)
	}
}

func TestLedgerPrunesOldDays(t *testing.T) {
	t.Parallel()
	s := NewMemory(Config{LedgerRetentionDays: 2})
	ctx := context.Background()

	_, _ = s.AppendLedger(ctx, "b1", "2025-03-10")
	_, _ = s.AppendLedger(ctx, "b1", "2025-03-11")
	_, _ = s.AppendLedger(ctx, "b1", "2025-03-12")

	if n, _ := s.ReadLedger(ctx, "b1", "2025-03-10"); n != 0 {
		t.Errorf("day outside retention survived: %d", n)
	}
	if n, _ := s.ReadLedger(ctx, "b1", "2025-03-11"); n != 1 {
		t.Errorf("yesterday = %d, want 1", n)
	}
	if n, _ := s.ReadLedger(ctx, "b1", "2025-03-12"); n != 1 {
		t.Errorf("today = %d, want 1", n)
	}
}

func TestOpenDefaultsToMemory(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.SaveBroker(context.Background(), broker.Broker{ID: "b1"}); err != nil {
		t.Fatalf("save on default driver: %v", err)
	}
}
