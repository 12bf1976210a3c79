package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"

	"golang.org/x/time/rate"
)

// breakerMaxCooldown caps the exponential cooldown of a tripped chat breaker.
const breakerMaxCooldown = 2 * time.Minute

type broadcastItem struct {
	target kit.ChatTarget
	text   string
	opt    *kit.SendOptions
}

// SendEvent is published on the bus when a send gives up for good.
type SendEvent struct {
	ChatID int64     `json:"chat_id"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}

// Service sends outbound messages. Prompt and warning sends are synchronous;
// broadcasts are queued and drained by workers. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	cfg      Config
	limiter  *rate.Limiter
	breakers breakerStore

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan broadcastItem
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	closed atomic.Bool
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

// Supervisor returns the dispatch worker supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg.applyDefaults()
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// BreakerStats reports chats tracked by the breaker and how many are open.
func (s *Service) BreakerStats() (total, open int) {
	return s.breakers.snapshot(time.Now())
}

// QueueDepth reports queued broadcast sends.
func (s *Service) QueueDepth() int {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return 0
	}
	return len(q)
}

// Start spawns the broadcast workers. Synchronous sends work without Start.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan broadcastItem, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers

	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "dispatch"))),
		// Send failures must not take down the app; workers are best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("broadcast.worker.%d", i)
		sup.GoRestart(name, func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("dispatch worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

// Stop blocks intake and drains queued broadcasts best-effort until ctx deadline.
// Synchronous sends are refused after Stop returns control.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.closed.Store(true)

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queue so workers drain out.
		s.sendWG.Wait()
		func() {
			defer func() { _ = recover() }()
			close(q)
		}()
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan broadcastItem) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q:
			if !ok {
				return
			}
			if _, err := s.send(ctx, item.target, item.text, item.opt); err != nil {
				s.log.Warn("broadcast send failed",
					logx.Int64("chat_id", item.target.ChatID), logx.Err(err))
			}
		}
	}
}

// send is the shared outbound path: breaker gate, rate limit, bounded call,
// retry with backoff and jitter. Retry hints from the adapter are honored.
func (s *Service) send(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if s.closed.Load() {
		return kit.MessageRef{}, ErrStopped
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	s.mu.Unlock()

	if ad == nil {
		return kit.MessageRef{}, errors.New("dispatch: no adapter")
	}
	if text == "" {
		return kit.MessageRef{}, errors.New("dispatch: empty message")
	}

	if open, until := s.breakers.isOpen(time.Now(), to.ChatID, cfg.BreakerThreshold); open {
		return kit.MessageRef{}, fmt.Errorf("chat %d until %s: %w",
			to.ChatID, until.Format(time.RFC3339), ErrBreakerOpen)
	}

	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return kit.MessageRef{}, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		ref, err := ad.SendText(callCtx, to, text, opt)
		cancel()
		if err == nil {
			s.breakers.record(time.Now(), to.ChatID, cfg.BreakerThreshold, cfg.BreakerCooldown, breakerMaxCooldown, false)
			return ref, nil
		}
		lastErr = err
		s.log.Debug("send failed",
			logx.Int64("chat_id", to.ChatID), logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts), logx.Err(err))

		if kit.IsNoRetry(err) || attempt >= maxAttempts {
			break
		}

		delay := retryDelay(cfg, attempt, err)
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
			return kit.MessageRef{}, ctx.Err()
		}
	}

	now := time.Now()
	s.breakers.record(now, to.ChatID, cfg.BreakerThreshold, cfg.BreakerCooldown, breakerMaxCooldown, true)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeSendFailed,
			Time: now,
			Data: SendEvent{ChatID: to.ChatID, At: now, Error: lastErr.Error()},
		})
	}
	return kit.MessageRef{}, lastErr
}

// Broadcast queues text for every target and returns how many were accepted.
// Targets that don't fit the queue are dropped and logged, not retried.
func (s *Service) Broadcast(ctx context.Context, targets []kit.ChatTarget, text string, opt *kit.SendOptions) (int, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return 0, ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	queued := 0
	for _, t := range targets {
		select {
		case q <- broadcastItem{target: t, text: text, opt: opt}:
			queued++
		default:
			s.log.Warn("broadcast target dropped",
				logx.Int64("chat_id", t.ChatID), logx.Err(ErrQueueFull))
		}
	}
	if queued < len(targets) {
		return queued, ErrQueueFull
	}
	return queued, nil
}

func retryDelay(cfg Config, attempt int, lastErr error) time.Duration {
	base := cfg.RetryBase
	maxD := cfg.RetryMaxDelay

	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}

	// A flood hint from the platform overrides shorter computed delays.
	var ra kit.RetryAfterError
	if errors.As(lastErr, &ra) {
		if hint := ra.RetryAfter(); hint > d {
			d = hint
		}
	}

	// Jitter 0.7..1.3
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	j := 0.7 + rng.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
