package compose

import (
	"strings"
	"testing"
	"time"

	"lastro/internal/analytics"
	"lastro/internal/broker"
	"lastro/internal/event"
)

func TestNotificationHeaders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		typ  event.Type
		meta map[string]any
		want string
	}{
		{event.TypeNewLead, nil, "🔔 *New lead!*"},
		{event.TypeUrgentClient, nil, "🔔 *Urgent client*"},
		{event.TypeUnansweredLead, nil, "⏳ *Lead waiting*"},
		{event.TypeUpcomingVisit, nil, "⏰ *Visit coming up*"},
		{event.TypePatternDetected, nil, "💡 *Insight*"},
		{event.TypePendingFollowup, nil, "📋 *Follow-up*"},
		{event.TypeListingPriceChange, map[string]any{"prev_price": 500000.0, "new_price": 470000.0}, "📉 *Price drop*"},
		{event.TypeListingPriceChange, map[string]any{"prev_price": 500000.0, "new_price": 520000.0}, "📈 *Price change*"},
	}
	for _, tc := range cases {
		msg := Notification(event.Event{Type: tc.typ, Title: "t", Metadata: tc.meta})
		if !strings.HasPrefix(msg, tc.want) {
			t.Errorf("%s: got %q, want prefix %q", tc.typ, msg, tc.want)
		}
	}
}

func TestNotificationBody(t *testing.T) {
	t.Parallel()

	msg := Notification(event.Event{
		Type:              event.TypeNewLead,
		Title:             "New message from Carla",
		Description:       "First message: Oi!",
		RecommendedAction: "Reply within 5 minutes",
	})
	for _, want := range []string{"New message from Carla", "First message: Oi!", "👉 Reply within 5 minutes"} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing %q in %q", want, msg)
		}
	}
}

func TestDailyBriefingLayout(t *testing.T) {
	t.Parallel()

	db := analytics.DailyBriefing{
		Date:              time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC),
		NewLeadsYesterday: 2,
		AwaitingReply:     1,
		VisitsToday: []broker.Appointment{
			{At: time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), LeadName: "Pedro", Listing: "Rua A 100"},
		},
		Insights: []string{"answer Carla first"},
	}
	batched := []event.Event{{Title: "No follow-up since Julia's visit 7 days ago"}}

	msg := DailyBriefing("Rafael Lima", db, batched)
	for _, want := range []string{
		"Good morning, Rafael",
		"2 new lead(s) yesterday",
		"15:00", // visit time
		"Pedro at Rua A 100",
		"Today's focus",
		"answer Carla first",
		"Also on your radar",
		"Julia",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("briefing missing %q:\n%s", want, msg)
		}
	}
}

func TestDailyBriefingNoVisits(t *testing.T) {
	t.Parallel()
	msg := DailyBriefing("Ana", analytics.DailyBriefing{}, nil)
	if !strings.Contains(msg, "no visits scheduled") {
		t.Fatalf("missing empty-agenda line:\n%s", msg)
	}
	if strings.Contains(msg, "Also on your radar") {
		t.Fatalf("empty batch rendered a section:\n%s", msg)
	}
}

func TestWeeklyReportLayout(t *testing.T) {
	t.Parallel()

	wr := analytics.WeeklyReport{
		Performance: analytics.Performance{NewLeads: 3, VisitsHeld: 2, ProposalsSent: 1, Closed: 1},
		Highlights:  []string{"1 deal(s) closed this week"},
		Attention:   []string{"2 lead(s) lost this week; check for a shared cause"},
	}
	msg := WeeklyReport("Rafael Lima", wr)
	for _, want := range []string{"Your week, Rafael", "3 new lead(s)", "🏆", "⚠️", "1 deal(s) closed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}
}

func TestPatternMessage(t *testing.T) {
	t.Parallel()
	msg := Pattern(analytics.Pattern{
		Description: "50% of your leads ask for balcony",
		Suggestion:  "Prioritize listings with balcony in your pitches",
	})
	if !strings.Contains(msg, "💡") || !strings.Contains(msg, "👉 Prioritize") {
		t.Fatalf("pattern message malformed:\n%s", msg)
	}
}
