package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/admin"
	"remindbot/internal/dispatch"
	"remindbot/internal/engine"
	"remindbot/internal/eventbus"
	"remindbot/internal/observability/pprof"
	"remindbot/internal/reminders"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/users"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/sdwatch"
)

// App wires the reminder services together and owns their lifecycle.
type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	engine *engine.Service
	disp   *dispatch.Service
	rem    *reminders.Service
	usr    *users.Service

	adm   *admin.Server
	prof  *pprof.Server
	watch *sdwatch.Watcher

	cmdm *CommandManager
	serv *Services

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Adapter config mapping
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Logging service mapping
	// Important: logx.New() calls Apply() immediately. If Telegram logging is enabled but the target
	// chat/thread isn't configured yet, Apply() will emit a warning. To avoid a false-positive warning,
	// we bootstrap with Telegram logging disabled, set the target, then Apply() the final config.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false, // set target first, then enable via Apply()
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	// Set Telegram log target (chat + thread)
	if strings.TrimSpace(cfg.Telegram.GroupLog) != "" {
		if chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64); err == nil {
			logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
		}
	}

	// Apply final logging config (including Telegram enable flag).
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	bus := eventbus.New()

	// Storage is not optional: reminders have to survive restarts.
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	// Services mapping
	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	mntCfg, err := mapMaintenanceConfig(cfg)
	if err != nil {
		return nil, err
	}
	engineSvc := engine.New(engCfg, mntCfg, store, log.With(logx.String("comp", "engine")), bus)

	dspCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	dispSvc := dispatch.New(dspCfg, ad, log.With(logx.String("comp", "dispatch")), bus)

	remSet, err := mapReminderSettings(cfg, engCfg.Location)
	if err != nil {
		return nil, err
	}
	remSvc := reminders.New(remSet, store, engineSvc, dispSvc, log.With(logx.String("comp", "reminders")), bus)
	// The engine decides when a reminder is due; the reminder service decides
	// what a fire means.
	engineSvc.SetHandler(remSvc)

	usrSet, err := mapUserSettings(cfg)
	if err != nil {
		return nil, err
	}
	usrSvc := users.New(usrSet, store, log.With(logx.String("comp", "users")), bus)

	admSvc := admin.New(log.With(logx.String("comp", "admin")), &admin.Services{
		Reminders: remSvc,
		Users:     usrSvc,
		Dispatch:  dispSvc,
		Engine:    engineSvc,
		Store:     store,
		AdapterUp: ad.Running,
	})
	profSvc := pprof.New(log.With(logx.String("comp", "pprof")))

	serv := &Services{
		Reminders:          remSvc,
		Users:              usrSvc,
		Dispatch:           dispSvc,
		Engine:             engineSvc,
		RuntimeSupervisors: NewSupervisorRegistry(),
	}

	cmdm := NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfgm, serv, cfg.Telegram.OwnerUserIDs)

	watch := sdwatch.New(log.With(logx.String("comp", "watchdog")), func() bool {
		return ad.Running() && engineSvc.Running()
	})

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		engine:  engineSvc,
		disp:    dispSvc,
		rem:     remSvc,
		usr:     usrSvc,
		adm:     admSvc,
		prof:    profSvc,
		watch:   watch,
		cmdm:    cmdm,
		serv:    serv,
		updates: make(chan kit.Update, 256),
	}, nil
}

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
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	a.serv.AppSupervisor = a.sup

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		if _, err := parseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapMaintenanceConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		if _, err := mapReminderSettings(cfg, nil); err != nil {
			return err
		}
		if _, err := mapUserSettings(cfg); err != nil {
			return err
		}
		if _, err := mapAdminConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPprofConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	// Command registry. SetRegistry also refreshes the Telegram /menu list
	// under the app supervisor.
	a.cmdm.SetRegistry(a.cmdm.BuiltinRegistry())

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	// Expose subsystem supervisors for operational visibility (/stats).
	if sp, ok := a.adapter.(interface{ Supervisor() *Supervisor }); ok {
		if sup := sp.Supervisor(); sup != nil {
			a.serv.RuntimeSupervisors.Set("telegram.adapter", sup)
		}
	}

	// Dispatch before engine: recovery may arm a reminder that is due
	// almost immediately.
	a.disp.Start(a.sup.Context())
	if sup := a.disp.Supervisor(); sup != nil {
		a.serv.RuntimeSupervisors.Set("dispatch", sup)
	}

	if err := a.engine.Start(a.sup.Context()); err != nil {
		return err
	}
	if sup := a.engine.Supervisor(); sup != nil {
		a.serv.RuntimeSupervisors.Set("engine", sup)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// Optional HTTP surfaces. Apply starts them only when enabled.
	admCfg, err := mapAdminConfig(a.cfgm.Get())
	if err != nil {
		return err
	}
	a.adm.Apply(a.sup.Context(), admCfg)

	profCfg, err := mapPprofConfig(a.cfgm.Get())
	if err != nil {
		return err
	}
	a.prof.Apply(a.sup.Context(), profCfg)

	// Debug trace of domain events (components subscribe themselves for
	// anything load-bearing).
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

	a.sup.Go("watchdog", a.watch.Run)

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track last applied config to generate a safe diff summary for logs.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
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
				sections, attrs := SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				lastApplied = newCfg

				for _, s := range sections {
					switch s {
					case "storage":
						a.log.Warn("storage config changed; restart required for changes to take effect")
					case "maintenance":
						a.log.Warn("maintenance config changed; restart required for changes to take effect")
					}
				}

				// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
				if strings.TrimSpace(newCfg.Telegram.GroupLog) != "" {
					if chatID, err := strconv.ParseInt(strings.TrimSpace(newCfg.Telegram.GroupLog), 10, 64); err == nil {
						a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
					}
				} else {
					// allow clearing target via config hot-reload
					a.logs.SetTelegramTarget(0, 0)
				}

				// apply logging updates
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
					Telegram: logx.TelegramConfig{
						Enabled:    newCfg.Logging.Telegram.Enabled,
						ThreadID:   newCfg.Logging.Telegram.ThreadID,
						MinLevel:   newCfg.Logging.Telegram.MinLevel,
						RatePerSec: newCfg.Logging.Telegram.RatePerSec,
					},
				})

				// Update owner list used for owner-only commands.
				a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

				// Engine knobs. Sizing still needs a restart; Apply warns on
				// its own when that is the case.
				engCfg, err := mapEngineConfig(newCfg)
				if err != nil {
					a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
				} else {
					a.engine.Apply(engCfg)
					remSet, err := mapReminderSettings(newCfg, engCfg.Location)
					if err != nil {
						a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
					} else {
						a.rem.Apply(remSet)
					}
				}

				dspCfg, err := mapDispatchConfig(newCfg)
				if err != nil {
					a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
				} else {
					a.disp.Apply(dspCfg)
				}

				usrSet, err := mapUserSettings(newCfg)
				if err != nil {
					a.log.Warn("invalid users config; keeping previous", logx.Err(err))
				} else {
					a.usr.Apply(usrSet)
				}

				// admin/pprof start, stop or rebind themselves inside Apply.
				admCfg, err := mapAdminConfig(newCfg)
				if err != nil {
					a.log.Warn("invalid admin config; keeping previous", logx.Err(err))
				} else {
					a.adm.Apply(c, admCfg)
				}
				profCfg, err := mapPprofConfig(newCfg)
				if err != nil {
					a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
				} else {
					a.prof.Apply(c, profCfg)
				}

				// Keep the final log line concise and human-friendly (details are in debug logs).
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.watch.Ready()
	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.watch.Stopping()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, budget time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("budget", budget))

		stepCtx := ctx
		var cancel context.CancelFunc
		if budget > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					budget = 0
				} else if rem < budget {
					budget = rem
				}
			}
			if budget > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, budget)
				defer cancel()
			}
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
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Outer HTTP surfaces first; they only read from the services.
	step("admin", 1*time.Second, func(c context.Context) error { a.adm.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error { a.prof.Stop(c); return nil })

	// Engine stops producing fires before dispatch drains its send queue.
	step("engine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("dispatch", 2*time.Second, func(c context.Context) error { a.disp.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher, etc.)
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
