package orchestrate

import (
	"context"
	"strings"
	"testing"
	"time"

	"lastro/internal/broker"
	"lastro/internal/storage"
)

func seedLeads(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	// Six open leads: half want a balcony (high-relevance pattern), five want
	// the same neighborhood (medium relevance, report-only).
	for i, l := range []broker.Lead{
		{ID: "l1", Search: broker.SearchProfile{Features: []string{"balcony"}, Neighborhoods: []string{"Moema"}}},
		{ID: "l2", Search: broker.SearchProfile{Features: []string{"balcony"}, Neighborhoods: []string{"Moema"}}},
		{ID: "l3", Search: broker.SearchProfile{Features: []string{"balcony"}, Neighborhoods: []string{"Moema"}}},
		{ID: "l4", Search: broker.SearchProfile{Neighborhoods: []string{"Moema"}}},
		{ID: "l5", Search: broker.SearchProfile{Neighborhoods: []string{"Moema"}}},
		{ID: "l6", Search: broker.SearchProfile{Neighborhoods: []string{"Pinheiros"}}},
	} {
		l.BrokerID = "b1"
		l.Status = broker.LeadContacted
		l.FirstContactAt = testNow.AddDate(0, 0, -10)
		if err := f.store.SaveLead(ctx, l); err != nil {
			t.Fatalf("lead %d: %v", i, err)
		}
	}
}

func TestPatternScanSendsOnlyHighRelevance(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultPrefs())
	seedLeads(t, f)

	f.orch.RunPatternScan(context.Background())

	texts := f.sender.texts()
	if len(texts) != 1 {
		t.Fatalf("got %d messages, want 1 (only the high-relevance pattern)", len(texts))
	}
	if !strings.Contains(texts[0], "Insight") || !strings.Contains(texts[0], "balcony") {
		t.Fatalf("wrong pattern sent: %q", texts[0])
	}
	if strings.Contains(texts[0], "Moema") {
		t.Fatalf("medium-relevance pattern leaked into a message: %q", texts[0])
	}

	// Insights are proactive notifications; they cost a cap charge.
	count, _ := f.store.ReadLedger(context.Background(), "b1", storage.DateKey(testNow))
	if count != 1 {
		t.Fatalf("insight did not charge the ledger: %d", count)
	}
}

func TestPatternScanRespectsWindow(t *testing.T) {
	t.Parallel()
	prefs := defaultPrefs()
	prefs.Window = broker.SendWindow{Start: 9 * 60, End: 18 * 60}
	f := newFixture(t, prefs)
	seedLeads(t, f)
	// The 06:00 scan slot is before the window opens; the insight rides
	// along with the next summary instead.
	f.orch.now = func() time.Time { return time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC) }

	f.orch.RunPatternScan(context.Background())
	if n := f.sender.count(); n != 0 {
		t.Fatalf("pattern sent outside window, %d messages", n)
	}
	if _, batched := f.orch.Pending("b1"); batched != 1 {
		t.Fatalf("insight not queued for the next summary, batch=%d", batched)
	}
}

func TestPatternScanRespectsCap(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultPrefs())
	seedLeads(t, f)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := f.store.AppendLedger(ctx, "b1", storage.DateKey(testNow)); err != nil {
			t.Fatalf("ledger: %v", err)
		}
	}

	f.orch.RunPatternScan(ctx)
	if n := f.sender.count(); n != 0 {
		t.Fatalf("insight sent past the daily cap, %d messages", n)
	}
	if _, batched := f.orch.Pending("b1"); batched != 1 {
		t.Fatalf("insight not queued for the next summary, batch=%d", batched)
	}
}

func TestWeeklyReportOnlyForSubscribed(t *testing.T) {
	t.Parallel()
	prefs := defaultPrefs()
	prefs.WeeklySummary = false
	f := newFixture(t, prefs)
	seedLeads(t, f)

	f.orch.RunWeeklyReports(context.Background())
	if n := f.sender.count(); n != 0 {
		t.Fatalf("unsubscribed broker got a weekly report, %d messages", n)
	}

	b, _ := f.store.GetBroker(context.Background(), "b1")
	b.Prefs.WeeklySummary = true
	_ = f.store.SaveBroker(context.Background(), *b)

	f.orch.RunWeeklyReports(context.Background())
	if n := f.sender.count(); n != 1 {
		t.Fatalf("subscribed broker got %d weekly reports, want 1", n)
	}
	if !strings.Contains(f.sender.texts()[0], "Your week") {
		t.Fatalf("unexpected weekly text: %q", f.sender.texts()[0])
	}
}

func TestEveningRecapDrainsLeftoverBatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultPrefs())
	f.orch.queue.Batch("b1", ev("pending_followup", "low", nil))

	f.orch.RunEveningRecaps(context.Background())
	if f.sender.count() != 1 {
		t.Fatalf("recap not sent")
	}
	text := f.sender.texts()[0]
	if !strings.Contains(text, "End of day") || !strings.Contains(text, "pending_followup") {
		t.Fatalf("recap missing batch: %q", text)
	}
	if _, batched := f.orch.Pending("b1"); batched != 0 {
		t.Fatalf("batch not drained")
	}
}
