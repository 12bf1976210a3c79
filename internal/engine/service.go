package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// FireHandler executes the business side of a due reminder.
//
// The handler receives the reminder id only; it must re-read the row from
// storage because state may have changed since the job was armed (confirmed,
// deleted, snoozed). A missing or non-active reminder is a no-op, not an
// error.
type FireHandler interface {
	HandleFire(ctx context.Context, reminderID int64, due time.Time) error
}

// Config controls timers and fire execution.
type Config struct {
	// FireConcurrency caps concurrent FireHandler executions. Default 3.
	FireConcurrency int
	// QueueSize bounds the fire queue between timer callbacks and workers.
	// Default 64.
	QueueSize int
	// MisfireGrace is how late a fire may run and still be delivered.
	// Default 300s.
	MisfireGrace time.Duration
	// RescheduleDelay is the catch-up delay for moderately overdue reminders
	// found by recovery/reconcile. Default 30s.
	RescheduleDelay time.Duration
	// SkipAfter is the overdue cutoff beyond which recovery leaves a reminder
	// un-armed. Default 60m.
	SkipAfter time.Duration
	// Location resolves wall-clock schedules and cron sweeps. Default local.
	Location *time.Location
}

// MaintenanceConfig controls the periodic sweeps.
type MaintenanceConfig struct {
	Enabled           bool
	ReconcileSchedule string
	PruneSchedule     string
	HistoryRetention  time.Duration
}

func (c *Config) applyDefaults() {
	if c.FireConcurrency <= 0 {
		c.FireConcurrency = 3
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MisfireGrace <= 0 {
		c.MisfireGrace = 300 * time.Second
	}
	if c.RescheduleDelay <= 0 {
		c.RescheduleDelay = 30 * time.Second
	}
	if c.SkipAfter <= 0 {
		c.SkipAfter = 60 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.Local
	}
}

type jobEntry struct {
	ver        uint64
	timer      *time.Timer
	reminderID int64
	due        time.Time
}

type fireJob struct {
	key        string
	reminderID int64
	due        time.Time
}

// JobInfo is a read-only snapshot of one armed job.
type JobInfo struct {
	Key        string    `json:"key"`
	ReminderID int64     `json:"reminder_id"`
	Due        time.Time `json:"due"`
}

type Service struct {
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	hmu     sync.RWMutex
	handler FireHandler

	cmu  sync.Mutex
	cfg  Config
	mcfg MaintenanceConfig

	tmu  sync.Mutex
	jobs map[string]*jobEntry

	queue   chan fireJob
	cron    *cron.Cron
	sup     *supervisor.Supervisor
	started atomic.Bool
	stopped atomic.Bool
}

func New(cfg Config, mcfg MaintenanceConfig, store storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:   log,
		bus:   bus,
		store: store,
		cfg:   cfg,
		mcfg:  mcfg,
		jobs:  map[string]*jobEntry{},
		queue: make(chan fireJob, cfg.QueueSize),
	}
}

// SetHandler installs the fire handler. Must be called before Start.
func (s *Service) SetHandler(h FireHandler) {
	s.hmu.Lock()
	s.handler = h
	s.hmu.Unlock()
}

func (s *Service) currentHandler() FireHandler {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	return s.handler
}

func (s *Service) snapshotCfg() Config {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	return s.cfg
}

// Apply updates runtime knobs. FireConcurrency and QueueSize change only on
// restart; everything else takes effect immediately.
func (s *Service) Apply(cfg Config) {
	cfg.applyDefaults()
	s.cmu.Lock()
	old := s.cfg
	// Keep boot-time sizing.
	cfg.FireConcurrency = old.FireConcurrency
	cfg.QueueSize = old.QueueSize
	s.cfg = cfg
	s.cmu.Unlock()
	if old.FireConcurrency != cfg.FireConcurrency || old.QueueSize != cfg.QueueSize {
		s.log.Warn("engine sizing changes require restart")
	}
}

// Start spawns the fire workers, rebuilds the schedule from storage, and
// starts the maintenance cron. Call before the transport begins accepting
// user traffic so recovery has a quiet store.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	cfg := s.snapshotCfg()

	s.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(s.log))
	for i := 0; i < cfg.FireConcurrency; i++ {
		s.sup.GoRestart("engine.fire", s.fireWorker,
			supervisor.WithRestartBackoff(250*time.Millisecond, 10*time.Second),
			supervisor.WithStopOnCleanExit(false),
		)
	}

	if err := s.Recover(s.sup.Context()); err != nil {
		s.log.Error("recovery pass failed", logx.Err(err))
	}

	s.startMaintenanceLocked(cfg)
	s.log.Info("engine started",
		logx.Int("fire_concurrency", cfg.FireConcurrency),
		logx.Int("queue_size", cap(s.queue)),
		logx.String("tz", cfg.Location.String()),
	)
	return nil
}

// Stop cancels timers and sweeps, then waits for in-flight fire handlers.
// The wait is bounded by ctx (best-effort drain).
func (s *Service) Stop(ctx context.Context) {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	start := time.Now()

	if s.cron != nil {
		select {
		case <-s.cron.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	for key, e := range s.jobs {
		if e.timer != nil {
			_ = e.timer.Stop()
		}
		delete(s.jobs, key)
	}
	s.tmu.Unlock()

	if s.sup != nil {
		_ = s.sup.Stop(ctx)
	}
	s.log.Info("engine stopped", logx.Duration("took", time.Since(start)))
}

// Supervisor exposes the engine's goroutine supervisor for operational
// visibility.
func (s *Service) Supervisor() *supervisor.Supervisor { return s.sup }

// QueueDepth reports how many fires are waiting for a worker.
func (s *Service) QueueDepth() int { return len(s.queue) }

// Running reports whether Start has been called and Stop has not.
func (s *Service) Running() bool { return s.started.Load() && !s.stopped.Load() }

func (s *Service) fireWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-s.queue:
			s.runFire(ctx, job)
		}
	}
}

func (s *Service) runFire(ctx context.Context, job fireJob) {
	cfg := s.snapshotCfg()

	// Misfire guard: a fire that slept too long (suspended host, stalled
	// queue) is dropped rather than delivered badly late.
	if late := time.Since(job.due); late > cfg.MisfireGrace {
		s.log.Warn("fire skipped past misfire grace",
			logx.String("key", job.key),
			logx.Int64("reminder_id", job.reminderID),
			logx.Duration("late", late),
		)
		return
	}

	h := s.currentHandler()
	if h == nil {
		s.log.Error("fire dropped", logx.String("key", job.key), logx.Err(ErrNoHandler))
		return
	}

	start := time.Now()
	err := h.HandleFire(ctx, job.reminderID, job.due)
	if err != nil {
		s.log.Warn("fire handler failed",
			logx.String("key", job.key),
			logx.Int64("reminder_id", job.reminderID),
			logx.Duration("took", time.Since(start)),
			logx.Err(err),
		)
		return
	}
	s.log.Debug("fire handled",
		logx.String("key", job.key),
		logx.Int64("reminder_id", job.reminderID),
		logx.Duration("took", time.Since(start)),
	)
}

func (s *Service) startMaintenanceLocked(cfg Config) {
	m := s.mcfg
	if !m.Enabled {
		return
	}
	c := cron.New(cron.WithLocation(cfg.Location))

	if spec := m.ReconcileSchedule; spec != "" {
		if _, err := c.AddFunc(spec, func() { s.reconcileSweep(context.Background()) }); err != nil {
			s.log.Error("bad reconcile schedule", logx.String("spec", spec), logx.Err(err))
		}
	}
	if spec := m.PruneSchedule; spec != "" {
		if _, err := c.AddFunc(spec, func() { s.pruneSweep(context.Background()) }); err != nil {
			s.log.Error("bad prune schedule", logx.String("spec", spec), logx.Err(err))
		}
	}

	c.Start()
	s.cron = c
	s.log.Debug("maintenance sweeps scheduled",
		logx.String("reconcile", m.ReconcileSchedule),
		logx.String("prune", m.PruneSchedule),
	)
}
