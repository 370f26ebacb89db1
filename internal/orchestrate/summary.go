package orchestrate

import (
	"context"
	"errors"

	"lastro/internal/analytics"
	"lastro/internal/broker"
	"lastro/internal/compose"
	"lastro/internal/delivery"
	"lastro/internal/event"
	"lastro/internal/storage"
	logx "lastro/pkg/logx"
)

// Summaries run at times the broker opted into, so they bypass the gate:
// neither the daily cap nor the send window applies, and they never charge
// the ledger. Batched routine events ride along with the next summary.

// RunMorningBriefings sends the morning briefing to every subscribed broker.
func (o *Orchestrator) RunMorningBriefings(ctx context.Context) {
	o.eachSubscribed(ctx, func(p broker.Preferences) bool { return p.DailySummary },
		func(ctx context.Context, b *broker.Broker) error {
			db, err := o.analytics.BuildDailyBriefing(ctx, b.ID)
			if err != nil {
				return err
			}
			batched := o.queue.DrainBatch(b.ID)
			return o.sendSummary(ctx, b, compose.DailyBriefing(b.Name, db, batched), "morning")
		})
}

// RunEveningRecaps sends the end-of-day recap to every subscribed broker.
func (o *Orchestrator) RunEveningRecaps(ctx context.Context) {
	o.eachSubscribed(ctx, func(p broker.Preferences) bool { return p.DailySummary },
		func(ctx context.Context, b *broker.Broker) error {
			er, err := o.analytics.BuildEveningRecap(ctx, b.ID)
			if err != nil {
				return err
			}
			batched := o.queue.DrainBatch(b.ID)
			return o.sendSummary(ctx, b, compose.EveningRecap(b.Name, er, batched), "evening")
		})
}

// RunWeeklyReports sends the weekly retrospective to every subscribed broker.
func (o *Orchestrator) RunWeeklyReports(ctx context.Context) {
	o.eachSubscribed(ctx, func(p broker.Preferences) bool { return p.WeeklySummary },
		func(ctx context.Context, b *broker.Broker) error {
			wr, err := o.analytics.BuildWeeklyReport(ctx, b.ID)
			if err != nil {
				return err
			}
			return o.sendSummary(ctx, b, compose.WeeklyReport(b.Name, wr), "weekly")
		})
}

// RunPatternScan looks for demand patterns per broker and messages the
// high-relevance ones right away. Insights are medium urgency: they respect
// the window and the daily cap, and ride along with the next summary when
// either says no.
func (o *Orchestrator) RunPatternScan(ctx context.Context) {
	brokers, err := o.store.ListActiveBrokers(ctx)
	if err != nil {
		o.log.Error("list brokers failed", logx.Err(err))
		return
	}
	for i := range brokers {
		b := &brokers[i]
		if ctx.Err() != nil {
			return
		}
		if b.Prefs == nil {
			continue
		}
		patterns, err := o.analytics.DetectPatterns(ctx, b.ID)
		if err != nil {
			o.log.Warn("pattern scan failed", logx.String("broker", b.ID), logx.Err(err))
			continue
		}

		prefs := o.prefsFor(b)
		now := o.now()
		today := storage.DateKey(now)
		sent, err := o.store.ReadLedger(ctx, b.ID, today)
		if err != nil {
			o.log.Warn("ledger read failed", logx.String("broker", b.ID), logx.Err(err))
			continue
		}
		for _, p := range patterns {
			if p.Relevance != analytics.RelevanceHigh {
				continue
			}
			ev := event.Event{
				ID:                event.NewID(),
				Type:              event.TypePatternDetected,
				Urgency:           event.UrgencyMedium,
				BrokerID:          b.ID,
				Title:             p.Description,
				RecommendedAction: p.Suggestion,
				DetectedAt:        now,
				Metadata:          map[string]any{"kind": p.Kind},
			}
			if d := o.evaluate(ev, prefs, sent, now); !d.SendNow {
				o.queue.Batch(b.ID, ev)
				continue
			}

			_, err := o.sender.Send(ctx, b.Phone, compose.Pattern(p))
			switch {
			case err == nil:
				if count, lerr := o.store.AppendLedger(ctx, b.ID, today); lerr == nil {
					sent = count
				} else {
					o.log.Warn("ledger append failed", logx.String("broker", b.ID), logx.Err(lerr))
					sent++
				}
				o.log.Info("insight sent", logx.String("broker", b.ID), logx.String("kind", p.Kind))
			case errors.Is(err, delivery.ErrDeduped):
				// Told them already.
			case errors.Is(err, delivery.ErrDisabled):
				o.log.Debug("delivery disabled, pattern scan stopped")
				return
			default:
				o.queue.Batch(b.ID, ev)
				o.log.Warn("insight send failed", logx.String("broker", b.ID), logx.Err(err))
			}
		}
	}
}

func (o *Orchestrator) sendSummary(ctx context.Context, b *broker.Broker, text, kind string) error {
	_, err := o.sender.Send(ctx, b.Phone, text)
	if errors.Is(err, delivery.ErrDeduped) {
		err = nil
	}
	if err == nil {
		o.log.Info("summary sent", logx.String("broker", b.ID), logx.String("kind", kind))
	}
	return err
}

// eachSubscribed runs fn for every active broker whose preferences pass the
// filter. Failures are logged per broker and do not stop the sweep.
func (o *Orchestrator) eachSubscribed(ctx context.Context, want func(broker.Preferences) bool, fn func(context.Context, *broker.Broker) error) {
	brokers, err := o.store.ListActiveBrokers(ctx)
	if err != nil {
		o.log.Error("list brokers failed", logx.Err(err))
		return
	}
	for i := range brokers {
		b := &brokers[i]
		if ctx.Err() != nil {
			return
		}
		if b.Prefs == nil {
			o.log.Warn("broker has no preferences; summary skipped", logx.String("broker", b.ID))
			continue
		}
		if !want(o.prefsFor(b)) {
			continue
		}
		if err := fn(ctx, b); err != nil {
			if errors.Is(err, delivery.ErrDisabled) {
				o.log.Debug("delivery disabled, summaries skipped")
				return
			}
			o.log.Warn("summary failed", logx.String("broker", b.ID), logx.Err(err))
		}
	}
}
