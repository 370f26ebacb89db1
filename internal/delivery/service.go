// Package delivery wraps a transport.Sender with rate limiting, bounded
// retry, duplicate suppression and send history.
//
// Send is synchronous on purpose: the dispatch loop charges the daily budget
// only after a confirmed delivery, so it must observe the outcome inline.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lastro/internal/eventbus"
	"lastro/internal/transport"
	logx "lastro/pkg/logx"
)

var (
	ErrDisabled = errors.New("delivery disabled")
	// ErrDeduped reports that an identical message was sent within the
	// dedup window. Callers should treat the message as already delivered
	// but must not charge the budget again.
	ErrDeduped = errors.New("delivery suppressed: duplicate")
)

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender transport.Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	// In-memory dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	// Bounded send history (for status inspection)
	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log,
		bus:    bus,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers text to the given phone number, honoring the rate limit and
// retry policy. A nil error means the provider confirmed the message.
func (s *Service) Send(ctx context.Context, to, text string) (transport.Receipt, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	if !cfg.Enabled {
		return transport.Receipt{}, ErrDisabled
	}
	if sender == nil {
		return transport.Receipt{}, errors.New("delivery: no sender configured")
	}
	if text == "" {
		return transport.Receipt{}, errors.New("delivery: empty message")
	}

	key := dedupKey(to, text)
	if cfg.DedupWindow > 0 && !s.dedupAllow(key, cfg.DedupWindow, cfg.DedupMaxEntries) {
		s.publish("delivery.deduped", to, key, "")
		return transport.Receipt{}, ErrDeduped
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return transport.Receipt{}, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		rcpt, err := sender.SendText(callCtx, to, text)
		cancel()
		if err == nil {
			s.appendHistory(to, text, cfg.HistorySize)
			s.publish("delivery.sent", to, key, "")
			return rcpt, nil
		}
		lastErr = err
		s.log.Debug("send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		delay := retryDelay(cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return transport.Receipt{}, ctx.Err()
		}
	}

	// The message never went out; forget the dedup mark so a later retry
	// (e.g. next cycle) is not suppressed.
	s.dedupForget(key)
	s.publish("delivery.failed", to, key, lastErr.Error())
	return transport.Receipt{}, fmt.Errorf("delivery: %w", lastErr)
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) publish(typ, to, key, errStr string) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: DeliveryEvent{To: to, Key: key, At: now, Error: errStr}})
}

func (s *Service) appendHistory(to, text string, maxLen int) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), To: to, Text: text})
	if len(s.history) > maxLen {
		s.history = s.history[len(s.history)-maxLen:]
	}
	s.hmu.Unlock()
}

// dedupAllow reports whether a message with this key may be sent now, and
// if so marks the key suppressed for the window.
func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}

	// Opportunistic cleanup; hard cap as a safety valve.
	if len(s.dedup) >= maxEntries {
		for k, until := range s.dedup {
			if now.After(until) {
				delete(s.dedup, k)
			}
		}
		if len(s.dedup) >= maxEntries {
			s.dedup = map[string]time.Time{}
		}
	}

	s.dedup[key] = now.Add(window)
	return true
}

func (s *Service) dedupForget(key string) {
	s.dmu.Lock()
	delete(s.dedup, key)
	s.dmu.Unlock()
}

func dedupKey(to, text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(to))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%016x", h.Sum64())
}

func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase << (attempt - 1)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	// Up to 25% jitter to avoid thundering herds on provider hiccups.
	if d > 0 {
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d
}
