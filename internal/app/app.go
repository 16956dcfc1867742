package app

import (
	"context"
	"fmt"
	"time"

	"dankbot/internal/config"
	"dankbot/internal/eventbus"
	"dankbot/internal/notify"
	"dankbot/internal/persist"
	"dankbot/internal/room"
	"dankbot/internal/runtime/supervisor"
	"dankbot/internal/schedule"
	"dankbot/internal/storage"
	logx "dankbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager
	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   storage.Store

	cron    *cron.Cron
	notif   *notify.Service
	engine  *schedule.Engine
	nightly *schedule.Nightly
	persist *persist.Coordinator

	sup *supervisor.Supervisor
}

// NewApp loads the config and wires every component. Nothing runs until Start.
func NewApp(cfgPath, envFile string) (*App, error) {
	cfgm := config.NewManager(cfgPath, envFile)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	nightlySpec, err := cfg.NightlyCron()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	var store storage.Store
	if sc, ok, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if ok {
		store, err = storage.Open(sc, log)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}

	cronLog := logx.CronLogger(log.With(logx.String("comp", "cron")))
	runner := cron.New(
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLocation(loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)

	sink, err := newSink(cfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	notifSvc := notify.New(mapNotifierConfig(cfg), sink, log.With(logx.String("comp", "notify")), bus)

	rooms := room.NewRegistry()
	eng := schedule.NewEngine(rooms, runner, notifSvc, mapEngineOptions(cfg),
		log.With(logx.String("comp", "schedule")), schedule.WithBus(bus))
	nightly := schedule.NewNightly(eng, runner, nightlySpec, log.With(logx.String("comp", "nightly")))
	pc := persist.New(rooms, store, runner, cfg.Storage.PersistenceIntervalMinutes,
		log.With(logx.String("comp", "persist")), bus)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		cron:    runner,
		notif:   notifSvc,
		engine:  eng,
		nightly: nightly,
		persist: pc,
	}, nil
}

func (a *App) Engine() *schedule.Engine { return a.engine }

func (a *App) Nightly() *schedule.Nightly { return a.nightly }

func (a *App) Persist() *persist.Coordinator { return a.persist }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	n, err := a.persist.Restore(rctx, a.engine.AddRoom)
	cancel()
	if err != nil {
		a.sup.Cancel()
		return fmt.Errorf("restore: %w", err)
	}

	// The notifier outlives the app context so Stop can drain it.
	a.notif.Start(context.WithoutCancel(ctx))
	if err := a.nightly.Start(); err != nil {
		a.sup.Cancel()
		return err
	}
	a.persist.Start()
	a.cron.Start()

	events, unsubscribe := a.bus.Subscribe(64)
	a.sup.Go0("events", func(c context.Context) {
		defer unsubscribe()
		a.logEvents(c, events)
	})

	a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })
	updates := a.cfgm.Subscribe(4)
	a.sup.Go0("config.apply", func(c context.Context) {
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	fields := []logx.Field{logx.Int("rooms", n), logx.String("config", a.cfgPath)}
	if next, err := a.nightly.Next(time.Now()); err == nil {
		fields = append(fields, logx.Time("nightly_next", next))
	}
	a.log.Info("started", fields...)
	return nil
}

// applyConfig pushes reloadable options to the running components. Timezone,
// storage and the telegram token only take effect after a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	a.logs.Apply(mapLogConfig(next))
	a.engine.Apply(mapEngineOptions(next))
	a.notif.Apply(mapNotifierConfig(next))

	if prev == nil {
		return
	}
	if prev.Timezone != next.Timezone {
		a.log.Warn("timezone changed; restart required for changes to take effect")
	}
	if prev.Storage != next.Storage {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if prev.Telegram.Token != next.Telegram.Token {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}
	if prev.Dank.NightlyFireTime != next.Dank.NightlyFireTime {
		a.log.Warn("nightly fire time changed; restart required for changes to take effect")
	}
}

// Stop halts the timers, takes the shutdown snapshot and drains
// notifications. The returned error is the shutdown snapshot failure, if any.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) error {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

		stepCtx := ctx
		if limit > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < limit {
				limit = max(time.Until(dl), 0)
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
			return err
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			return stepCtx.Err()
		}
	}

	// No timer may fire once the final snapshot starts.
	_ = step("cron", 5*time.Second, func(c context.Context) error {
		a.nightly.Stop()
		select {
		case <-a.cron.Stop().Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	snapErr := step("snapshot", 10*time.Second, a.persist.Shutdown)
	_ = step("notify", 5*time.Second, a.notif.Stop)
	_ = step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	_ = step("supervisor", 2*time.Second, a.sup.Wait)

	sc := a.sup.Counters()
	if snapErr != nil {
		a.log.Error("stopped with unsaved state", logx.Err(snapErr))
	} else {
		a.log.Info("stopped", logx.Any("goroutines", sc.Started), logx.Any("panics", sc.Panics))
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return snapErr
}
