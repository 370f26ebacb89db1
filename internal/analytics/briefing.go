package analytics

import (
	"context"
	"fmt"
	"time"

	"lastro/internal/broker"
)

// DailyBriefing is the material for the morning message: today's agenda plus
// up to three insights picked by expected impact.
type DailyBriefing struct {
	Date time.Time

	NewLeadsYesterday int
	AwaitingReply     int
	VisitsToday       []broker.Appointment

	Insights []string
}

// WeeklyReport is the Monday retrospective: the numbers plus the two wins and
// two gaps most worth the broker's attention.
type WeeklyReport struct {
	From, To time.Time

	Performance Performance
	Funnel      Funnel

	Highlights []string
	Attention  []string
}

// EveningRecap is the end-of-day message: what happened today and what is on
// the calendar tomorrow.
type EveningRecap struct {
	Date time.Time

	Today          Performance
	AwaitingReply  int
	VisitsTomorrow []broker.Appointment
}

const (
	maxDailyInsights = 3
	maxWeeklyPoints  = 2
)

// BuildDailyBriefing assembles the morning view for one broker.
func (s *Service) BuildDailyBriefing(ctx context.Context, brokerID string) (DailyBriefing, error) {
	now := s.now()
	db := DailyBriefing{Date: now}

	leads, err := s.leadsFor(ctx, brokerID)
	if err != nil {
		return db, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, l := range leads {
		if !l.FirstContactAt.Before(dayStart.AddDate(0, 0, -1)) && l.FirstContactAt.Before(dayStart) {
			db.NewLeadsYesterday++
		}
		if awaitingReply(l) {
			db.AwaitingReply++
		}
	}

	db.VisitsToday, err = s.store.Appointments(ctx, brokerID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return db, err
	}

	db.Insights = s.dailyInsights(leads, db)
	return db, nil
}

// dailyInsights picks at most three observations, most actionable first.
func (s *Service) dailyInsights(leads []broker.Lead, db DailyBriefing) []string {
	var out []string
	add := func(format string, args ...any) {
		if len(out) < maxDailyInsights {
			out = append(out, fmt.Sprintf(format, args...))
		}
	}

	if hot := hotWaiting(leads); hot != nil {
		add("%s (score %d/10) is still waiting for a reply; answer before anything else", hot.Name, hot.Score)
	}
	if db.NewLeadsYesterday > 0 {
		add("%d new leads came in yesterday; first contact today keeps them warm", db.NewLeadsYesterday)
	}
	if n := len(db.VisitsToday); n > 0 {
		add("%d visit(s) scheduled today; confirm each one the hour before", n)
	}
	if db.AwaitingReply > 2 {
		add("%d conversations are waiting on you; block 30 minutes to clear them", db.AwaitingReply)
	}

	demand := Demand(leads)
	if tops := demand.TopNeighborhoods(1); len(tops) > 0 && len(leads) >= 3 {
		add("demand is concentrating in %s", tops[0])
	}
	return out
}

// BuildEveningRecap assembles the end-of-day view for one broker.
func (s *Service) BuildEveningRecap(ctx context.Context, brokerID string) (EveningRecap, error) {
	now := s.now()
	er := EveningRecap{Date: now}

	leads, err := s.store.LeadsByBroker(ctx, brokerID)
	if err != nil {
		return er, err
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	er.Today = BuildPerformance(leads, dayStart, now)
	for _, l := range leads {
		if l.Status != broker.LeadClosed && l.Status != broker.LeadLost && awaitingReply(l) {
			er.AwaitingReply++
		}
	}

	tomorrow := dayStart.AddDate(0, 0, 1)
	er.VisitsTomorrow, err = s.store.Appointments(ctx, brokerID, tomorrow, tomorrow.AddDate(0, 0, 1))
	return er, err
}

// BuildWeeklyReport assembles the Monday retrospective over the last 7 days.
func (s *Service) BuildWeeklyReport(ctx context.Context, brokerID string) (WeeklyReport, error) {
	now := s.now()
	from := now.AddDate(0, 0, -7)
	wr := WeeklyReport{From: from, To: now}

	leads, err := s.store.LeadsByBroker(ctx, brokerID)
	if err != nil {
		return wr, err
	}

	wr.Performance = BuildPerformance(leads, from, now)
	wr.Funnel = BuildFunnel(leads)
	wr.Highlights, wr.Attention = weeklyPoints(wr.Performance, wr.Funnel)
	return wr, nil
}

// weeklyPoints derives up to two highlights and two attention areas.
func weeklyPoints(p Performance, f Funnel) (highlights, attention []string) {
	hAdd := func(format string, args ...any) {
		if len(highlights) < maxWeeklyPoints {
			highlights = append(highlights, fmt.Sprintf(format, args...))
		}
	}
	aAdd := func(format string, args ...any) {
		if len(attention) < maxWeeklyPoints {
			attention = append(attention, fmt.Sprintf(format, args...))
		}
	}

	if p.Closed > 0 {
		hAdd("%d deal(s) closed this week", p.Closed)
	}
	if p.VisitsHeld > 0 {
		hAdd("%d visit(s) held", p.VisitsHeld)
	}
	if p.NewLeads > 0 {
		hAdd("%d new leads captured", p.NewLeads)
	}
	if len(p.BestContactHours) > 0 {
		hAdd("clients respond best around %s", p.BestContactHours[0])
	}

	if p.AvgFirstReply > 2*time.Hour {
		aAdd("first reply averages %s; the first hour decides most portal leads", roundDuration(p.AvgFirstReply))
	}
	if p.Lost > 0 {
		aAdd("%d lead(s) lost this week; check for a shared cause", p.Lost)
	}
	if f.New > f.Contacted {
		aAdd("%d leads still untouched in the funnel", f.New)
	}
	if p.ProposalsSent == 0 && f.Negotiating > 0 {
		aAdd("%d negotiation(s) without a written proposal yet", f.Negotiating)
	}
	return highlights, attention
}

func awaitingReply(l broker.Lead) bool {
	if len(l.Interactions) == 0 {
		return l.Status == broker.LeadNew
	}
	last := l.Interactions[len(l.Interactions)-1]
	return last.Kind == broker.InteractionInbound
}

// hotWaiting returns the highest-scored lead with an unanswered inbound
// message, or nil.
func hotWaiting(leads []broker.Lead) *broker.Lead {
	var best *broker.Lead
	for i := range leads {
		l := &leads[i]
		if !awaitingReply(*l) {
			continue
		}
		if best == nil || l.Score > best.Score {
			best = l
		}
	}
	if best != nil && best.Score >= 7 {
		return best
	}
	return nil
}

func roundDuration(d time.Duration) string {
	return d.Round(time.Minute).String()
}
