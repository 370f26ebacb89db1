package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lastro/internal/broker"
	"lastro/internal/config"
	"lastro/internal/delivery"
	"lastro/internal/detect"
	"lastro/internal/observability/pprof"
	"lastro/internal/orchestrate"
	"lastro/internal/services/scheduler"
	"lastro/internal/storage"
	"lastro/internal/transport/whatsapp"
)

// Mapping functions translate the config document into component configs.
// They double as the validation layer: Watch() runs them against a candidate
// config before a hot reload is committed.

func mapWhatsAppConfig(cfg *config.Config) (whatsapp.Config, error) {
	timeout, err := config.ParseDurationField("whatsapp.timeout", cfg.WhatsApp.Timeout)
	if err != nil {
		return whatsapp.Config{}, err
	}
	return whatsapp.Config{
		AccountSID: strings.TrimSpace(cfg.WhatsApp.AccountSID),
		AuthToken:  cfg.WhatsApp.AuthToken,
		From:       strings.TrimSpace(cfg.WhatsApp.From),
		BaseURL:    strings.TrimSpace(cfg.WhatsApp.BaseURL),
		Timeout:    timeout,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	if cfg.Storage.LedgerRetentionDays < 0 {
		return storage.Config{}, fmt.Errorf("storage.ledger_retention_days must be >= 0")
	}
	return storage.Config{
		Driver:              cfg.Storage.Driver,
		Path:                cfg.Storage.Path,
		BusyTimeout:         busy,
		LedgerRetentionDays: cfg.Storage.LedgerRetentionDays,
	}, nil
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	// Omitted section: enabled with defaults.
	if cfg.Delivery == nil {
		return delivery.Config{Enabled: true}, nil
	}
	d := cfg.Delivery
	if d.RatePerSec < 0 || d.RetryMax < 0 || d.DedupMaxEntries < 0 || d.HistorySize < 0 {
		return delivery.Config{}, fmt.Errorf("delivery: counts must be >= 0")
	}
	retryBase, err := config.ParseDurationField("delivery.retry_base", d.RetryBase)
	if err != nil {
		return delivery.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("delivery.retry_max_delay", d.RetryMaxDelay)
	if err != nil {
		return delivery.Config{}, err
	}
	dedupWindow, err := config.ParseDurationOrDefault("delivery.dedup_window", d.DedupWindow, time.Minute)
	if err != nil {
		return delivery.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("delivery.send_timeout", d.SendTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		Enabled:         d.Enabled,
		RatePerSec:      d.RatePerSec,
		RetryMax:        d.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: d.DedupMaxEntries,
		SendTimeout:     sendTimeout,
		HistorySize:     d.HistorySize,
	}, nil
}

func mapDetectionConfig(cfg *config.Config) (detect.Config, error) {
	if cfg.Detection == nil {
		return detect.Config{}, nil
	}
	stale, err := config.ParseDurationField("detection.stale_after", cfg.Detection.StaleAfter)
	if err != nil {
		return detect.Config{}, err
	}
	lookahead, err := config.ParseDurationField("detection.calendar_lookahead", cfg.Detection.CalendarLookahead)
	if err != nil {
		return detect.Config{}, err
	}
	followup, err := config.ParseDurationField("detection.followup_after", cfg.Detection.FollowupAfter)
	if err != nil {
		return detect.Config{}, err
	}
	return detect.Config{
		StaleAfter:        stale,
		CalendarLookahead: lookahead,
		FollowupAfter:     followup,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (orchestrate.Config, error) {
	if cfg.Dispatch == nil {
		return orchestrate.Config{}, nil
	}
	d := cfg.Dispatch
	if d.DefaultDailyCap < 0 {
		return orchestrate.Config{}, fmt.Errorf("dispatch.default_daily_cap must be >= 0")
	}
	start, err := config.ParseClockField("dispatch.window_start", d.WindowStart, 8*60)
	if err != nil {
		return orchestrate.Config{}, err
	}
	end, err := config.ParseClockField("dispatch.window_end", d.WindowEnd, 21*60)
	if err != nil {
		return orchestrate.Config{}, err
	}
	retry, err := config.ParseDurationField("dispatch.retry_deferral", d.RetryDeferral)
	if err != nil {
		return orchestrate.Config{}, err
	}
	return orchestrate.Config{
		DefaultDailyCap:   d.DefaultDailyCap,
		DefaultWindow:     broker.SendWindow{Start: start, End: end},
		VisitImmediateMin: d.VisitImmediateMin,
		HotLeadScore:      d.HotLeadScore,
		RetryDeferral:     retry,
	}, nil
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	if cfg.Pprof == nil {
		return pprof.Config{}, nil
	}
	p := cfg.Pprof
	readT, err := config.ParseDurationField("pprof.read_timeout", p.ReadTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	writeT, err := config.ParseDurationField("pprof.write_timeout", p.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idleT, err := config.ParseDurationField("pprof.idle_timeout", p.IdleTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:       p.Enabled,
		Addr:          strings.TrimSpace(p.Addr),
		Token:         p.Token,
		AllowInsecure: p.AllowInsecure,
		ReadTimeout:   readT,
		WriteTimeout:  writeT,
		IdleTimeout:   idleT,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	every, err := config.ParseDurationField("scheduler.monitor_every", cfg.Scheduler.MonitorEvery)
	if err != nil {
		return scheduler.Config{}, err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	return scheduler.Config{
		Enabled:      cfg.Scheduler.Enabled,
		Timezone:     cfg.Scheduler.Timezone,
		MonitorEvery: every,
		MorningCron:  cfg.Scheduler.MorningCron,
		EveningCron:  cfg.Scheduler.EveningCron,
		WeeklyCron:   cfg.Scheduler.WeeklyCron,
		PatternCron:  cfg.Scheduler.PatternCron,
	}, nil
}

// seedBrokers upserts the configured broker profiles.
func seedBrokers(ctx context.Context, store storage.Store, seeds []config.BrokerSeed) error {
	for _, s := range seeds {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Phone) == "" {
			return fmt.Errorf("brokers: id and phone are required (id=%q)", s.ID)
		}
		start, err := config.ParseClockField("brokers.window_start", s.WindowStart, 8*60)
		if err != nil {
			return err
		}
		end, err := config.ParseClockField("brokers.window_end", s.WindowEnd, 21*60)
		if err != nil {
			return err
		}
		dailyCap := s.DailyCap
		if dailyCap <= 0 {
			dailyCap = 5
		}
		prefs := &broker.Preferences{
			DailyCap:      dailyCap,
			Window:        broker.SendWindow{Start: start, End: end},
			DailySummary:  s.DailySummary == nil || *s.DailySummary,
			WeeklySummary: s.WeeklySummary == nil || *s.WeeklySummary,
		}

		b := broker.Broker{
			ID:     s.ID,
			Name:   s.Name,
			Phone:  s.Phone,
			Email:  s.Email,
			Agency: s.Agency,
			Prefs:  prefs,
			Active: true,
		}
		if prev, err := store.GetBroker(ctx, s.ID); err == nil {
			b.RegisteredAt = prev.RegisteredAt
		}
		if err := store.SaveBroker(ctx, b); err != nil {
			return fmt.Errorf("brokers: seed %s: %w", s.ID, err)
		}
	}
	return nil
}
