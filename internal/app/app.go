// Package app wires the components together: config, logging, storage,
// transport, detection, the orchestrator and the scheduler. It owns startup
// order, config hot-reload fan-out, and graceful shutdown.
package app

import (
	"context"
	"strings"
	"time"

	"lastro/internal/analytics"
	"lastro/internal/config"
	"lastro/internal/delivery"
	"lastro/internal/detect"
	"lastro/internal/eventbus"
	"lastro/internal/observability/pprof"
	"lastro/internal/orchestrate"
	"lastro/internal/runtime/supervisor"
	"lastro/internal/services/scheduler"
	"lastro/internal/storage"
	"lastro/internal/transport/whatsapp"
	logx "lastro/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	deliver *delivery.Service
	orch    *orchestrate.Orchestrator
	sched   *scheduler.Service
	prof    *pprof.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	stCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(stCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", stCfg.Driver))

	if err := seedBrokers(context.Background(), store, cfg.Brokers); err != nil {
		_ = store.Close()
		return nil, err
	}

	waCfg, err := mapWhatsAppConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sender, err := whatsapp.New(waCfg, log.With(logx.String("comp", "whatsapp")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	delCfg, err := mapDeliveryConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	deliver := delivery.New(delCfg, sender, log.With(logx.String("comp", "delivery")), bus)

	detCfg, err := mapDetectionConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	source := detect.NewService(store, detCfg, log.With(logx.String("comp", "detect")))

	an := analytics.New(store, log.With(logx.String("comp", "analytics")))

	dispCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	orch := orchestrate.New(dispCfg, store, source, deliver, an,
		log.With(logx.String("comp", "orchestrate")), bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, scheduler.Jobs{
		Monitor:  orch.RunAll,
		Morning:  orch.RunMorningBriefings,
		Evening:  orch.RunEveningRecaps,
		Weekly:   orch.RunWeeklyReports,
		Patterns: orch.RunPatternScan,
	}, log.With(logx.String("comp", "scheduler")))

	profCfg, err := mapPprofConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	prof := pprof.New(profCfg, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		deliver: deliver,
		orch:    orch,
		sched:   sched,
		prof:    prof,
	}, nil
}

// Done is closed when the app context ends (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// Transactional reload: a candidate config must map cleanly before it is
	// committed and published.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapWhatsAppConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDeliveryConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDetectionConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPprofConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	} else {
		a.log.Warn("scheduler disabled; no cycles will run")
	}
	if a.prof.Enabled() {
		a.prof.Start(a.sup.Context())
	}

	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	// Bus traffic at debug level for operational visibility.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// reloadLoop applies committed config updates to live components.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, no effective changes")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config changed", fields...)

			for _, s := range sections {
				switch s {
				case "logging":
					a.logs.Apply(logx.Config{
						Level:   newCfg.Logging.Level,
						Console: newCfg.Logging.Console,
						File: logx.FileConfig{
							Enabled: newCfg.Logging.File.Enabled,
							Path:    newCfg.Logging.File.Path,
						},
					})
				case "delivery":
					if dc, err := mapDeliveryConfig(newCfg); err == nil {
						a.deliver.Apply(dc)
					}
				case "scheduler":
					if sc, err := mapSchedulerConfig(newCfg); err == nil {
						a.sched.Apply(sc)
					}
				case "pprof":
					if pc, err := mapPprofConfig(newCfg); err == nil {
						a.prof.Reconfigure(ctx, pc)
					}
				case "brokers":
					if err := seedBrokers(ctx, a.store, newCfg.Brokers); err != nil {
						a.log.Warn("broker reseed failed", logx.Err(err))
					}
				case "storage":
					a.log.Warn("storage config changed; restart required to take effect")
				case "whatsapp", "detection", "dispatch":
					// Validated, but these components read config at build
					// time; restart to apply.
					a.log.Warn("section changed; restart required to take effect",
						logx.String("section", s))
				}
			}
		}
	}
}

func (a *App) Stop(ctx context.Context) {
	a.log.Info("shutdown requested")

	stepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	a.sched.Stop(stepCtx)
	cancel()

	stepCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
	a.prof.Stop(stepCtx)
	cancel()

	if a.sup != nil {
		stepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_ = a.sup.Stop(stepCtx)
		cancel()
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("shutdown complete")
}
