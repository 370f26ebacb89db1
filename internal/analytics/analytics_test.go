package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"lastro/internal/broker"
	"lastro/internal/storage"
	logx "lastro/pkg/logx"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	s := New(st, logx.Nop())
	s.now = func() time.Time { return base }
	return s, st
}

func TestDemandAggregation(t *testing.T) {
	t.Parallel()

	leads := []broker.Lead{
		{Search: broker.SearchProfile{Features: []string{"balcony", "parking"}, Neighborhoods: []string{"Moema"}, PriceMax: 600000, Financing: true}},
		{Search: broker.SearchProfile{Features: []string{"balcony"}, Neighborhoods: []string{"Moema"}, PriceMax: 500000}},
		{Search: broker.SearchProfile{Features: []string{"balcony"}, Neighborhoods: []string{"Pinheiros"}, PriceMax: 700000, Financing: true}},
		{Search: broker.SearchProfile{Neighborhoods: []string{"Moema"}}},
	}
	p := Demand(leads)

	if p.Leads != 4 {
		t.Fatalf("leads = %d", p.Leads)
	}
	if got := p.FeatureShare["balcony"]; got != 0.75 {
		t.Errorf("balcony share = %v, want 0.75", got)
	}
	if got := p.FeatureShare["parking"]; got != 0.25 {
		t.Errorf("parking share = %v, want 0.25", got)
	}
	if p.NeighborhoodCounts["Moema"] != 3 {
		t.Errorf("Moema count = %d, want 3", p.NeighborhoodCounts["Moema"])
	}
	if p.MedianPriceMax != 600000 {
		t.Errorf("median = %v, want 600000", p.MedianPriceMax)
	}
	if p.FinancingShare != 0.5 {
		t.Errorf("financing share = %v, want 0.5", p.FinancingShare)
	}

	tops := p.TopNeighborhoods(2)
	if len(tops) != 2 || !strings.HasPrefix(tops[0], "Moema") {
		t.Errorf("top neighborhoods = %v", tops)
	}
}

func TestDemandEmptyLeads(t *testing.T) {
	t.Parallel()
	p := Demand(nil)
	if p.Leads != 0 || p.MedianPriceMax != 0 || len(p.FeatureShare) != 0 {
		t.Fatalf("empty demand not zero: %+v", p)
	}
}

func TestDetectPatternsThresholds(t *testing.T) {
	t.Parallel()
	s, st := newService(t)
	ctx := context.Background()

	// 3 of 6 want a balcony: exactly at the 50% bar. 5 want Moema: at the
	// neighborhood bar. 4 want Pinheiros: below it.
	profiles := []broker.SearchProfile{
		{Features: []string{"balcony"}, Neighborhoods: []string{"Moema"}},
		{Features: []string{"balcony"}, Neighborhoods: []string{"Moema"}},
		{Features: []string{"balcony"}, Neighborhoods: []string{"Moema", "Pinheiros"}},
		{Neighborhoods: []string{"Moema", "Pinheiros"}},
		{Neighborhoods: []string{"Moema", "Pinheiros"}},
		{Neighborhoods: []string{"Pinheiros"}},
	}
	for i, sp := range profiles {
		l := broker.Lead{
			ID: string(rune('a' + i)), BrokerID: "b1",
			Status: broker.LeadContacted, Search: sp,
		}
		if err := st.SaveLead(ctx, l); err != nil {
			t.Fatalf("save lead: %v", err)
		}
	}
	// Closed leads must not count toward demand.
	_ = st.SaveLead(ctx, broker.Lead{ID: "z", BrokerID: "b1", Status: broker.LeadClosed,
		Search: broker.SearchProfile{Features: []string{"pool"}}})

	patterns, err := s.DetectPatterns(ctx, "b1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("got %d patterns, want 2: %+v", len(patterns), patterns)
	}
	if patterns[0].Relevance != RelevanceHigh || patterns[0].Kind != "feature_demand" {
		t.Errorf("first pattern: %+v", patterns[0])
	}
	if patterns[1].Relevance != RelevanceMedium || patterns[1].Kind != "neighborhood_demand" {
		t.Errorf("second pattern: %+v", patterns[1])
	}
	if !strings.Contains(patterns[1].Description, "Moema") {
		t.Errorf("neighborhood pattern names the wrong place: %q", patterns[1].Description)
	}
}

func TestBuildPerformance(t *testing.T) {
	t.Parallel()
	from := base.AddDate(0, 0, -7)

	leads := []broker.Lead{
		{
			ID: "l1", FirstContactAt: base.AddDate(0, 0, -3), Status: broker.LeadVisitBooked,
			Interactions: []broker.Interaction{
				{At: base.AddDate(0, 0, -3).Add(30 * time.Minute), Kind: broker.InteractionOutbound},
				{At: base.AddDate(0, 0, -2), Kind: broker.InteractionVisit},
				{At: base.AddDate(0, 0, -1), Kind: broker.InteractionInbound},
			},
		},
		{
			ID: "l2", FirstContactAt: base.AddDate(0, 0, -5), Status: broker.LeadClosed,
			LastInteractionAt: base.AddDate(0, 0, -1),
			Interactions: []broker.Interaction{
				{At: base.AddDate(0, 0, -5).Add(90 * time.Minute), Kind: broker.InteractionOutbound},
				{At: base.AddDate(0, 0, -2), Kind: broker.InteractionProposal},
			},
		},
		{
			// Outside the period entirely.
			ID: "l3", FirstContactAt: base.AddDate(0, 0, -30), Status: broker.LeadContacted,
			Interactions: []broker.Interaction{
				{At: base.AddDate(0, 0, -20), Kind: broker.InteractionOutbound},
			},
		},
	}

	p := BuildPerformance(leads, from, base)
	if p.NewLeads != 2 {
		t.Errorf("new leads = %d, want 2", p.NewLeads)
	}
	if p.VisitsHeld != 1 || p.ProposalsSent != 1 || p.Closed != 1 {
		t.Errorf("visits=%d proposals=%d closed=%d", p.VisitsHeld, p.ProposalsSent, p.Closed)
	}
	if p.AvgFirstReply != time.Hour {
		t.Errorf("avg first reply = %v, want 1h", p.AvgFirstReply)
	}
}

func TestBestContactHours(t *testing.T) {
	t.Parallel()
	day := func(d, h int) time.Time { return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC) }
	leads := []broker.Lead{{
		ID: "l1", FirstContactAt: day(3, 9),
		Interactions: []broker.Interaction{
			{At: day(4, 19), Kind: broker.InteractionInbound},
			{At: day(5, 19), Kind: broker.InteractionInbound},
			{At: day(6, 19), Kind: broker.InteractionInbound},
			{At: day(4, 12), Kind: broker.InteractionInbound},
			{At: day(5, 12), Kind: broker.InteractionInbound},
			{At: day(6, 8), Kind: broker.InteractionInbound},
		},
	}}

	p := BuildPerformance(leads, day(1, 0), day(9, 0))
	want := []string{"19h-20h", "12h-13h"}
	if len(p.BestContactHours) != 2 || p.BestContactHours[0] != want[0] || p.BestContactHours[1] != want[1] {
		t.Fatalf("best hours = %v, want %v", p.BestContactHours, want)
	}
}

func TestBuildDailyBriefing(t *testing.T) {
	t.Parallel()
	s, st := newService(t)
	ctx := context.Background()

	dayStart := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	// One lead from yesterday, one hot lead waiting on a reply.
	_ = st.SaveLead(ctx, broker.Lead{
		ID: "l1", BrokerID: "b1", Name: "Carla Souza", Score: 8, Status: broker.LeadContacted,
		FirstContactAt: dayStart.Add(-10 * time.Hour),
		Interactions: []broker.Interaction{
			{At: base.Add(-2 * time.Hour), Kind: broker.InteractionInbound},
		},
	})
	_ = st.SaveAppointment(ctx, broker.Appointment{
		ID: "a1", BrokerID: "b1", LeadName: "Pedro", Listing: "Rua A 100", At: dayStart.Add(15 * time.Hour),
	})

	db, err := s.BuildDailyBriefing(ctx, "b1")
	if err != nil {
		t.Fatalf("briefing: %v", err)
	}
	if db.NewLeadsYesterday != 1 {
		t.Errorf("new leads yesterday = %d, want 1", db.NewLeadsYesterday)
	}
	if db.AwaitingReply != 1 {
		t.Errorf("awaiting reply = %d, want 1", db.AwaitingReply)
	}
	if len(db.VisitsToday) != 1 {
		t.Errorf("visits today = %d, want 1", len(db.VisitsToday))
	}
	if len(db.Insights) == 0 || len(db.Insights) > 3 {
		t.Fatalf("insights = %v, want 1..3", db.Insights)
	}
	if !strings.Contains(db.Insights[0], "Carla Souza") {
		t.Errorf("hot waiting lead not the first insight: %v", db.Insights)
	}
}

func TestWeeklyPointsCaps(t *testing.T) {
	t.Parallel()
	p := Performance{
		NewLeads: 4, VisitsHeld: 2, Closed: 1, Lost: 2,
		AvgFirstReply:    3 * time.Hour,
		BestContactHours: []string{"19h-20h"},
	}
	f := Funnel{New: 5, Contacted: 2, Negotiating: 1}

	highlights, attention := weeklyPoints(p, f)
	if len(highlights) != 2 {
		t.Fatalf("highlights = %v, want exactly 2", highlights)
	}
	if len(attention) != 2 {
		t.Fatalf("attention = %v, want exactly 2", attention)
	}
}
