package orchestrate

import (
	"context"
	"errors"
	"sync"
	"time"

	"lastro/internal/analytics"
	"lastro/internal/broker"
	"lastro/internal/compose"
	"lastro/internal/delivery"
	"lastro/internal/event"
	"lastro/internal/eventbus"
	"lastro/internal/storage"
	"lastro/internal/transport"
	logx "lastro/pkg/logx"
)

var (
	// ErrCycleRunning means a cycle for this broker is still in flight; the
	// caller should skip this tick rather than queue behind it.
	ErrCycleRunning = errors.New("cycle already running for broker")

	// ErrNoPreferences means the broker record has no preference set. That is
	// an operator configuration error; the broker's cycle is skipped until
	// the record is fixed.
	ErrNoPreferences = errors.New("broker has no preferences")
)

// Sender is the outbound side the orchestrator needs; *delivery.Service
// satisfies it.
type Sender interface {
	Send(ctx context.Context, to, text string) (transport.Receipt, error)
}

// EventSource produces the events of one detection pass; *detect.Service
// satisfies it.
type EventSource interface {
	Run(ctx context.Context, brokerID string) ([]event.Event, int)
}

// Config tunes the dispatch policy. Zero values take defaults.
type Config struct {
	// DefaultDailyCap and DefaultWindow apply to brokers without explicit
	// preferences.
	DefaultDailyCap int
	DefaultWindow   broker.SendWindow

	// VisitImmediateMin: a visit closer than this many minutes is always
	// worth interrupting for.
	VisitImmediateMin int

	// HotLeadScore: an unanswered lead at or above this score is treated as
	// urgent even at low detector urgency.
	HotLeadScore int

	// RetryDeferral is how long a failed send waits before the queue offers
	// it again.
	RetryDeferral time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultDailyCap <= 0 {
		c.DefaultDailyCap = 5
	}
	if c.DefaultWindow.Start == c.DefaultWindow.End {
		c.DefaultWindow = broker.SendWindow{Start: 8 * 60, End: 21 * 60}
	}
	if c.VisitImmediateMin <= 0 {
		c.VisitImmediateMin = 60
	}
	if c.HotLeadScore <= 0 {
		c.HotLeadScore = 8
	}
	if c.RetryDeferral <= 0 {
		c.RetryDeferral = 5 * time.Minute
	}
	return c
}

// CycleResult is what one detection-and-dispatch pass did for one broker.
type CycleResult struct {
	BrokerID string

	EventsDetected  int // fresh events from this pass
	EventsReissued  int // deferred events that came due
	EventsProcessed int // events resolved on the immediate path

	MessagesSent      int
	MessagesScheduled int
	MessagesBatched   int

	DetectorErrors int
	SendFailures   int
}

// Orchestrator owns the decision loop: detect, rank, gate, deliver, account.
type Orchestrator struct {
	cfg       Config
	store     storage.Store
	source    EventSource
	sender    Sender
	analytics *analytics.Service
	log       logx.Logger
	bus       eventbus.Bus

	queue *holdQueue
	now   func() time.Time

	// One in-flight cycle per broker; a tick that finds the lock held skips.
	flight sync.Map // brokerID -> *sync.Mutex
}

func New(cfg Config, store storage.Store, source EventSource, sender Sender, an *analytics.Service, log logx.Logger, bus eventbus.Bus) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		store:     store,
		source:    source,
		sender:    sender,
		analytics: an,
		log:       log,
		bus:       bus,
		queue:     newHoldQueue(),
		now:       time.Now,
	}
}

// RunAll runs one cycle for every active broker. Per-broker failures are
// logged and do not stop the sweep; a still-running cycle is skipped.
func (o *Orchestrator) RunAll(ctx context.Context) {
	brokers, err := o.store.ListActiveBrokers(ctx)
	if err != nil {
		o.log.Error("list brokers failed", logx.Err(err))
		return
	}
	for _, b := range brokers {
		if ctx.Err() != nil {
			return
		}
		res, err := o.RunCycle(ctx, b.ID)
		switch {
		case errors.Is(err, ErrCycleRunning):
			o.log.Debug("cycle still running, tick skipped", logx.String("broker", b.ID))
		case errors.Is(err, ErrNoPreferences):
			o.log.Warn("broker has no preferences; cycle skipped", logx.String("broker", b.ID))
		case err != nil:
			o.log.Warn("cycle failed", logx.String("broker", b.ID), logx.Err(err))
		case res.EventsDetected > 0 || res.EventsReissued > 0:
			o.log.Info("cycle done",
				logx.String("broker", b.ID),
				logx.Int("detected", res.EventsDetected),
				logx.Int("sent", res.MessagesSent),
				logx.Int("scheduled", res.MessagesScheduled),
				logx.Int("batched", res.MessagesBatched))
		}
	}
}

// RunCycle runs one detection-and-dispatch pass for a single broker.
func (o *Orchestrator) RunCycle(ctx context.Context, brokerID string) (CycleResult, error) {
	res := CycleResult{BrokerID: brokerID}

	mu := o.flightLock(brokerID)
	if !mu.TryLock() {
		return res, ErrCycleRunning
	}
	defer mu.Unlock()

	b, err := o.store.GetBroker(ctx, brokerID)
	if err != nil {
		return res, err
	}
	if !b.Active {
		return res, nil
	}
	if b.Prefs == nil {
		return res, ErrNoPreferences
	}
	now := o.now()

	// Deferred events whose time has come go first; they were ranked once
	// already and have been waiting longest.
	evs := o.queue.Due(brokerID, now)
	res.EventsReissued = len(evs)

	fresh, failed := o.source.Run(ctx, brokerID)
	res.DetectorErrors = failed
	res.EventsDetected = len(fresh)
	evs = append(evs, fresh...)
	if len(evs) == 0 {
		return res, nil
	}
	Rank(evs)

	err = o.dispatch(ctx, b, o.prefsFor(b), evs, now, &res)
	o.publishCycle(res)
	return res, err
}

// dispatch walks ranked events through the gate and delivery. sentToday is
// re-read from the ledger so parallel senders for the same broker cannot
// overshoot the cap.
func (o *Orchestrator) dispatch(ctx context.Context, b *broker.Broker, prefs broker.Preferences, evs []event.Event, now time.Time, res *CycleResult) error {
	today := storage.DateKey(now)
	sent, err := o.store.ReadLedger(ctx, b.ID, today)
	if err != nil {
		return err
	}

	for i := range evs {
		ev := evs[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		// Cap first: a spent budget parks everything, batch queue included,
		// until tomorrow's window opens.
		if sent >= prefs.DailyCap {
			o.queue.Defer(b.ID, ev, nextDayStart(now, prefs.Window))
			res.MessagesScheduled++
			o.log.Debug("daily cap spent, held for tomorrow",
				logx.String("broker", b.ID),
				logx.String("event", string(ev.Type)))
			continue
		}

		// Everything outside the immediate class waits for the next summary.
		if !o.immediate(ev) {
			o.queue.Batch(b.ID, ev)
			res.MessagesBatched++
			continue
		}

		d := o.evaluate(ev, prefs, sent, now)
		if !d.SendNow {
			o.queue.Defer(b.ID, ev, d.At)
			res.MessagesScheduled++
			res.EventsProcessed++
			o.log.Debug("notification deferred",
				logx.String("broker", b.ID),
				logx.String("event", string(ev.Type)),
				logx.String("reason", string(d.Reason)),
				logx.Time("until", d.At))
			continue
		}

		_, err := o.sender.Send(ctx, b.Phone, compose.Notification(ev))
		switch {
		case err == nil:
			// Budget is charged only on confirmed delivery.
			count, lerr := o.store.AppendLedger(ctx, b.ID, today)
			if lerr != nil {
				o.log.Warn("ledger append failed", logx.String("broker", b.ID), logx.Err(lerr))
				sent++
			} else {
				sent = count
			}
			evs[i].Processed = true
			res.MessagesSent++
			res.EventsProcessed++
			if d.Reason == ReasonUrgentOverride {
				o.log.Info("urgent send outside window",
					logx.String("broker", b.ID), logx.String("event", string(ev.Type)))
			}

		case errors.Is(err, delivery.ErrDeduped):
			// Already told them recently; done with the event, no charge.
			evs[i].Processed = true
			res.EventsProcessed++

		case errors.Is(err, delivery.ErrDisabled):
			// Nothing else will go out either; park and stop the pass.
			o.queue.Defer(b.ID, ev, now.Add(o.cfg.RetryDeferral))
			res.MessagesScheduled++
			return err

		default:
			o.queue.Defer(b.ID, ev, now.Add(o.cfg.RetryDeferral))
			res.SendFailures++
			o.log.Warn("send failed, event requeued",
				logx.String("broker", b.ID),
				logx.String("event", string(ev.Type)),
				logx.Err(err))
		}
	}
	return nil
}

// prefsFor returns the broker's stored preferences with the default window
// filled in for a degenerate range. Callers must have checked Prefs != nil;
// a broker without preferences is a configuration error, not a defaulting
// case.
func (o *Orchestrator) prefsFor(b *broker.Broker) broker.Preferences {
	p := *b.Prefs
	if p.Window.Start == p.Window.End {
		p.Window = o.cfg.DefaultWindow
	}
	return p
}

func (o *Orchestrator) flightLock(brokerID string) *sync.Mutex {
	v, _ := o.flight.LoadOrStore(brokerID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (o *Orchestrator) publishCycle(res CycleResult) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventbus.Event{Type: "cycle.done", Time: time.Now(), Data: res})
}

// Pending reports queue depth for one broker, for status surfaces.
func (o *Orchestrator) Pending(brokerID string) (deferred, batched int) {
	return o.queue.Pending(brokerID)
}
