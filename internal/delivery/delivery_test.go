package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lastro/internal/transport"
	logx "lastro/pkg/logx"
)

// flakySender fails the first failN calls, then succeeds.
type flakySender struct {
	mu    sync.Mutex
	calls int
	failN int
}

func (f *flakySender) SendText(_ context.Context, to, _ string) (transport.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return transport.Receipt{}, errors.New("provider unavailable")
	}
	return transport.Receipt{ProviderID: "SM" + to, DeliveredAt: time.Now()}, nil
}

func (f *flakySender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastCfg() Config {
	return Config{
		Enabled:    true,
		RatePerSec: 1000,
		RetryBase:  time.Millisecond,
	}
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()
	snd := &flakySender{}
	s := New(fastCfg(), snd, logx.Nop(), nil)

	rcpt, err := s.Send(context.Background(), "+5511999990000", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if rcpt.ProviderID == "" {
		t.Error("empty provider id on confirmed send")
	}
	if got := len(s.Snapshot()); got != 1 {
		t.Errorf("history len = %d, want 1", got)
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	snd := &flakySender{failN: 2}
	cfg := fastCfg()
	cfg.RetryMax = 3
	s := New(cfg, snd, logx.Nop(), nil)

	if _, err := s.Send(context.Background(), "+55", "hi"); err != nil {
		t.Fatalf("send after retries: %v", err)
	}
	if snd.count() != 3 {
		t.Errorf("provider calls = %d, want 3", snd.count())
	}
}

func TestSendExhaustsRetries(t *testing.T) {
	t.Parallel()
	snd := &flakySender{failN: 100}
	cfg := fastCfg()
	cfg.RetryMax = 1
	s := New(cfg, snd, logx.Nop(), nil)

	if _, err := s.Send(context.Background(), "+55", "hi"); err == nil {
		t.Fatal("want error after exhausting retries")
	}
	if snd.count() != 2 {
		t.Errorf("provider calls = %d, want 2", snd.count())
	}
	if got := len(s.Snapshot()); got != 0 {
		t.Errorf("failed send recorded in history: %d entries", got)
	}
}

func TestDedupWindowSuppressesRepeat(t *testing.T) {
	t.Parallel()
	snd := &flakySender{}
	cfg := fastCfg()
	cfg.DedupWindow = time.Minute
	s := New(cfg, snd, logx.Nop(), nil)

	ctx := context.Background()
	if _, err := s.Send(ctx, "+55", "same text"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := s.Send(ctx, "+55", "same text"); !errors.Is(err, ErrDeduped) {
		t.Fatalf("second send err = %v, want ErrDeduped", err)
	}
	// Different text is a different message.
	if _, err := s.Send(ctx, "+55", "other text"); err != nil {
		t.Fatalf("distinct send: %v", err)
	}
	if snd.count() != 2 {
		t.Errorf("provider calls = %d, want 2", snd.count())
	}
}

func TestFailedSendNotDedupMarked(t *testing.T) {
	t.Parallel()
	snd := &flakySender{failN: 1}
	cfg := fastCfg()
	cfg.DedupWindow = time.Minute
	s := New(cfg, snd, logx.Nop(), nil)

	ctx := context.Background()
	if _, err := s.Send(ctx, "+55", "msg"); err == nil {
		t.Fatal("want failure on first attempt")
	}
	// Same message retried later must go through, not be suppressed.
	if _, err := s.Send(ctx, "+55", "msg"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, &flakySender{}, logx.Nop(), nil)
	if _, err := s.Send(context.Background(), "+55", "hi"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestApplyTogglesEnabled(t *testing.T) {
	t.Parallel()
	snd := &flakySender{}
	s := New(Config{Enabled: false}, snd, logx.Nop(), nil)
	if s.Enabled() {
		t.Fatal("enabled before Apply")
	}
	s.Apply(fastCfg())
	if !s.Enabled() {
		t.Fatal("Apply did not enable")
	}
	if _, err := s.Send(context.Background(), "+55", "hi"); err != nil {
		t.Fatalf("send after enable: %v", err)
	}
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()
	snd := &flakySender{}
	cfg := fastCfg()
	cfg.HistorySize = 3
	s := New(cfg, snd, logx.Nop(), nil)

	ctx := context.Background()
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		if _, err := s.Send(ctx, "+55", msg); err != nil {
			t.Fatalf("send %q: %v", msg, err)
		}
	}
	hist := s.Snapshot()
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3", len(hist))
	}
	if hist[0].Text != "c" || hist[2].Text != "e" {
		t.Errorf("history kept wrong tail: %q..%q", hist[0].Text, hist[2].Text)
	}
}
