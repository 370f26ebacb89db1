// Package compose renders events and reports into WhatsApp-ready text.
// Messages are short by contract: a broker reads them between showings.
package compose

import (
	"fmt"
	"strings"

	"lastro/internal/analytics"
	"lastro/internal/broker"
	"lastro/internal/event"
)

// Notification renders one event as a standalone message.
func Notification(ev event.Event) string {
	var b strings.Builder

	switch ev.Type {
	case event.TypeNewLead:
		b.WriteString("🔔 *New lead!*\n")
	case event.TypeUrgentClient:
		b.WriteString("🔔 *Urgent client*\n")
	case event.TypeUnansweredLead:
		b.WriteString("⏳ *Lead waiting*\n")
	case event.TypeUpcomingVisit:
		b.WriteString("⏰ *Visit coming up*\n")
	case event.TypePatternDetected:
		b.WriteString("💡 *Insight*\n")
	case event.TypeListingPriceChange:
		b.WriteString(priceChangeHeader(ev))
	case event.TypePendingFollowup:
		b.WriteString("📋 *Follow-up*\n")
	default:
		b.WriteString("🔔 ")
	}

	b.WriteString(ev.Title)
	if ev.Description != "" {
		b.WriteString("\n")
		b.WriteString(ev.Description)
	}
	if ev.RecommendedAction != "" {
		b.WriteString("\n👉 ")
		b.WriteString(ev.RecommendedAction)
	}
	return b.String()
}

func priceChangeHeader(ev event.Event) string {
	prev, _ := ev.Metadata["prev_price"].(float64)
	next, _ := ev.Metadata["new_price"].(float64)
	if next < prev {
		return "📉 *Price drop*\n"
	}
	return "📈 *Price change*\n"
}

// DailyBriefing renders the morning summary. Batched routine events are
// appended as one compact list so they cost a single message.
func DailyBriefing(name string, db analytics.DailyBriefing, batched []event.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "☀️ Good morning, %s! Your day:\n", firstName(name))

	fmt.Fprintf(&b, "\n• %d new lead(s) yesterday", db.NewLeadsYesterday)
	fmt.Fprintf(&b, "\n• %d conversation(s) awaiting your reply", db.AwaitingReply)
	if len(db.VisitsToday) > 0 {
		fmt.Fprintf(&b, "\n• %d visit(s) today:", len(db.VisitsToday))
		for _, v := range db.VisitsToday {
			fmt.Fprintf(&b, "\n   %s %s", v.At.Format("15:04"), visitLabel(v))
		}
	} else {
		b.WriteString("\n• no visits scheduled")
	}

	if len(db.Insights) > 0 {
		b.WriteString("\n\n💡 *Today's focus*")
		for _, in := range db.Insights {
			fmt.Fprintf(&b, "\n• %s", in)
		}
	}

	if len(batched) > 0 {
		b.WriteString("\n\n📋 *Also on your radar*")
		for _, ev := range batched {
			fmt.Fprintf(&b, "\n• %s", ev.Title)
		}
	}
	return b.String()
}

// EveningRecap renders the end-of-day summary. Leftover batched events ride
// along here when the morning message did not drain them.
func EveningRecap(name string, er analytics.EveningRecap, batched []event.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌙 End of day, %s:\n", firstName(name))

	fmt.Fprintf(&b, "\n• %d new lead(s) today", er.Today.NewLeads)
	fmt.Fprintf(&b, "\n• %d interaction(s), %d visit(s)", er.Today.Interactions, er.Today.VisitsHeld)
	if er.AwaitingReply > 0 {
		fmt.Fprintf(&b, "\n• %d conversation(s) still waiting on you", er.AwaitingReply)
	}
	if len(er.VisitsTomorrow) > 0 {
		fmt.Fprintf(&b, "\n\n📅 Tomorrow: %d visit(s)", len(er.VisitsTomorrow))
		for _, v := range er.VisitsTomorrow {
			fmt.Fprintf(&b, "\n   %s %s", v.At.Format("15:04"), visitLabel(v))
		}
	}

	if len(batched) > 0 {
		b.WriteString("\n\n📋 *Also on your radar*")
		for _, ev := range batched {
			fmt.Fprintf(&b, "\n• %s", ev.Title)
		}
	}
	return b.String()
}

// WeeklyReport renders the Monday retrospective.
func WeeklyReport(name string, wr analytics.WeeklyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Your week, %s*\n", firstName(name))

	p := wr.Performance
	fmt.Fprintf(&b, "\n• %d new lead(s)", p.NewLeads)
	fmt.Fprintf(&b, "\n• %d visit(s), %d proposal(s)", p.VisitsHeld, p.ProposalsSent)
	fmt.Fprintf(&b, "\n• %d closed, %d lost", p.Closed, p.Lost)

	if len(wr.Highlights) > 0 {
		b.WriteString("\n\n🏆 *Highlights*")
		for _, h := range wr.Highlights {
			fmt.Fprintf(&b, "\n• %s", h)
		}
	}
	if len(wr.Attention) > 0 {
		b.WriteString("\n\n⚠️ *Needs attention*")
		for _, a := range wr.Attention {
			fmt.Fprintf(&b, "\n• %s", a)
		}
	}
	return b.String()
}

// Pattern renders a high-relevance pattern as a proactive insight message.
func Pattern(p analytics.Pattern) string {
	var b strings.Builder
	b.WriteString("💡 *Insight from your leads*\n")
	b.WriteString(p.Description)
	if p.Suggestion != "" {
		b.WriteString("\n👉 ")
		b.WriteString(p.Suggestion)
	}
	return b.String()
}

func visitLabel(a broker.Appointment) string {
	switch {
	case a.LeadName != "" && a.Listing != "":
		return a.LeadName + " at " + a.Listing
	case a.LeadName != "":
		return a.LeadName
	default:
		return a.Listing
	}
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	if full == "" {
		return "broker"
	}
	return full
}
