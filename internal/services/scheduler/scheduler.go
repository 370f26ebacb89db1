// Package scheduler drives the periodic work: the monitor tick and the
// briefing, report and pattern-scan slots. Job timing is cron-based in the
// broker's timezone; the jobs themselves live in the orchestrator.
package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "lastro/pkg/logx"
)

// Config holds the five job slots. Zero values take defaults.
type Config struct {
	Enabled  bool
	Timezone string

	MonitorEvery time.Duration
	MorningCron  string
	EveningCron  string
	WeeklyCron   string
	PatternCron  string
}

func (c Config) withDefaults() Config {
	if c.MonitorEvery <= 0 {
		c.MonitorEvery = 5 * time.Minute
	}
	if strings.TrimSpace(c.MorningCron) == "" {
		c.MorningCron = "0 7 * * *"
	}
	if strings.TrimSpace(c.EveningCron) == "" {
		c.EveningCron = "0 20 * * *"
	}
	if strings.TrimSpace(c.WeeklyCron) == "" {
		c.WeeklyCron = "0 7 * * 1"
	}
	if strings.TrimSpace(c.PatternCron) == "" {
		c.PatternCron = "0 6 * * *"
	}
	return c
}

// Jobs are the callbacks the scheduler fires. A nil slot is skipped.
type Jobs struct {
	Monitor  func(ctx context.Context)
	Morning  func(ctx context.Context)
	Evening  func(ctx context.Context)
	Weekly   func(ctx context.Context)
	Patterns func(ctx context.Context)
}

type Service struct {
	mu   sync.Mutex
	cfg  Config
	jobs Jobs
	log  logx.Logger

	c         *cron.Cron
	parent    context.Context
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, jobs Jobs, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), jobs: jobs, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config; if timing changed while running, the cron instance
// is rebuilt so the new slots take effect.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := cfg != s.cfg
	s.cfg = cfg
	if s.c == nil || !changed {
		return
	}
	parent := s.parent
	s.stopLocked()
	if cfg.Enabled && parent != nil && parent.Err() == nil {
		s.startLocked(parent)
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) {
	loc := s.locationLocked()
	s.parent = ctx
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(loc))

	add := func(name, spec string, fn func(context.Context)) {
		if fn == nil {
			return
		}
		_, err := c.AddFunc(spec, s.wrap(name, fn))
		if err != nil {
			s.log.Error("bad cron spec, job disabled",
				logx.String("job", name), logx.String("spec", spec), logx.Err(err))
		}
	}

	add("monitor", "@every "+s.cfg.MonitorEvery.String(), s.jobs.Monitor)
	add("morning_briefing", s.cfg.MorningCron, s.jobs.Morning)
	add("evening_recap", s.cfg.EveningCron, s.jobs.Evening)
	add("weekly_report", s.cfg.WeeklyCron, s.jobs.Weekly)
	add("pattern_scan", s.cfg.PatternCron, s.jobs.Patterns)

	c.Start()
	s.c = c
	s.log.Info("scheduler started",
		logx.String("tz", loc.String()),
		logx.Duration("monitor_every", s.cfg.MonitorEvery))
}

// Stop halts the cron loop and waits for running jobs, up to ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; jobs finishing in background")
	}
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	if s.runCancel != nil {
		s.runCancel()
	}
	s.c.Stop()
	s.c = nil
	s.runCancel = nil
}

// wrap gives each job panic recovery and the run context.
func (s *Service) wrap(name string, fn func(context.Context)) func() {
	return func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduled job",
					logx.String("job", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		start := time.Now()
		fn(ctx)
		s.log.Debug("job finished", logx.String("job", name), logx.Duration("took", time.Since(start)))
	}
}

func (s *Service) locationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
