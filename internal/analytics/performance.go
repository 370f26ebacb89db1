package analytics

import (
	"sort"
	"time"

	"lastro/internal/broker"
)

// Performance is the broker's activity summary over a period.
type Performance struct {
	From, To time.Time

	NewLeads      int
	Interactions  int
	VisitsHeld    int
	ProposalsSent int
	Closed        int
	Lost          int

	// AvgFirstReply is the mean delay between a lead's first contact and the
	// broker's first outbound touch, over leads created in the period.
	AvgFirstReply time.Duration

	// BestContactHours are the top inbound-message hour bands ("19h-20h"),
	// most active first.
	BestContactHours []string
}

// Funnel counts open leads by stage.
type Funnel struct {
	New         int
	Contacted   int
	Negotiating int
	VisitBooked int
	Proposal    int
	Closed      int
	Lost        int
}

// BuildFunnel tallies lead statuses.
func BuildFunnel(leads []broker.Lead) Funnel {
	var f Funnel
	for _, l := range leads {
		switch l.Status {
		case broker.LeadNew:
			f.New++
		case broker.LeadContacted:
			f.Contacted++
		case broker.LeadNegotiating:
			f.Negotiating++
		case broker.LeadVisitBooked:
			f.VisitBooked++
		case broker.LeadProposalSent:
			f.Proposal++
		case broker.LeadClosed:
			f.Closed++
		case broker.LeadLost:
			f.Lost++
		}
	}
	return f
}

// BuildPerformance computes activity metrics for leads whose interactions fall
// in [from, to).
func BuildPerformance(leads []broker.Lead, from, to time.Time) Performance {
	p := Performance{From: from, To: to}

	var replyDelays []time.Duration
	hourCount := map[int]int{}

	for _, l := range leads {
		inPeriod := func(t time.Time) bool { return !t.Before(from) && t.Before(to) }

		if inPeriod(l.FirstContactAt) {
			p.NewLeads++
			if d, ok := firstReplyDelay(l); ok {
				replyDelays = append(replyDelays, d)
			}
		}
		switch {
		case l.Status == broker.LeadClosed && inPeriod(l.LastInteractionAt):
			p.Closed++
		case l.Status == broker.LeadLost && inPeriod(l.LastInteractionAt):
			p.Lost++
		}

		for _, it := range l.Interactions {
			if !inPeriod(it.At) {
				continue
			}
			p.Interactions++
			switch it.Kind {
			case broker.InteractionVisit:
				p.VisitsHeld++
			case broker.InteractionProposal:
				p.ProposalsSent++
			case broker.InteractionInbound:
				hourCount[it.At.Hour()]++
			}
		}
	}

	if len(replyDelays) > 0 {
		var sum time.Duration
		for _, d := range replyDelays {
			sum += d
		}
		p.AvgFirstReply = sum / time.Duration(len(replyDelays))
	}
	p.BestContactHours = topHours(hourCount, 2)
	return p
}

// firstReplyDelay finds the gap between first contact and the first outbound
// interaction after it.
func firstReplyDelay(l broker.Lead) (time.Duration, bool) {
	first := time.Time{}
	for _, it := range l.Interactions {
		if it.Kind != broker.InteractionOutbound && it.Kind != broker.InteractionCall {
			continue
		}
		if it.At.Before(l.FirstContactAt) {
			continue
		}
		if first.IsZero() || it.At.Before(first) {
			first = it.At
		}
	}
	if first.IsZero() {
		return 0, false
	}
	return first.Sub(l.FirstContactAt), true
}

func topHours(count map[int]int, n int) []string {
	type hc struct{ hour, count int }
	all := make([]hc, 0, len(count))
	for h, c := range count {
		all = append(all, hc{h, c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].hour < all[j].hour
	})
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, 0, n)
	for _, e := range all[:n] {
		out = append(out, hourBand(e.hour))
	}
	return out
}

func hourBand(h int) string {
	return formatHour(h) + "-" + formatHour((h+1)%24)
}

func formatHour(h int) string {
	return time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format("15h")
}
