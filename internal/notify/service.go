package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dankbot/internal/eventbus"
	rtsup "dankbot/internal/runtime/supervisor"
	logx "dankbot/pkg/logx"

	"golang.org/x/time/rate"
)

// Service implements an async notification pipeline:
// queue + worker pool + rate limit + retry.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	sink Sink
	bus  eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	queue chan Notification
	sup   *rtsup.Supervisor
	// accepting is false before Start and after Stop.
	accepting bool
	inflight  sync.WaitGroup
}

func New(cfg Config, sink Sink, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{sink: sink, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

// Apply updates pacing and retry settings. Worker and queue sizes take
// effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
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
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// delivery failures must not take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		s.sup.GoRestart(fmt.Sprintf("notify.worker.%d", idx), func(c context.Context) error {
			s.workerLoop(c, q)
			if c.Err() != nil {
				return c.Err()
			}
			return nil
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Debug("notify started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
}

// Notify enqueues n without blocking.
func (s *Service) Notify(n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting {
		return ErrStopped
	}
	select {
	case s.queue <- n:
		s.inflight.Add(1)
		return nil
	default:
		return fmt.Errorf("%w: room %d %s", ErrQueueFull, n.RoomID, n.Subject())
	}
}

// Stop stops intake and drains the queue until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return nil
	}
	s.accepting = false
	q, sup := s.queue, s.sup
	close(q)
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()
	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		s.log.Warn("notify stop: queue not drained", logx.Int("left", len(q)))
	}
	sup.Cancel()
	werr := sup.Wait(ctx)
	// q is closed: whatever the cancelled workers left behind is dropped.
	dropped := 0
	for range q {
		s.inflight.Done()
		dropped++
	}
	if dropped > 0 {
		s.log.Warn("notify stop: notifications dropped", logx.Int("dropped", dropped))
	}
	if err == nil && werr != nil && !errors.Is(werr, context.Canceled) {
		err = werr
	}

	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
	return err
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, n)
			s.inflight.Done()
		}
	}
}

func (s *Service) deliver(ctx context.Context, n Notification) {
	// Snapshot mutable dependencies to avoid races with Apply().
	s.mu.Lock()
	lim := s.limiter
	cfg := s.cfg
	sink := s.sink
	s.mu.Unlock()

	attempts, err := s.sendWithRetry(ctx, lim, cfg, sink, n)
	if err == nil {
		return
	}
	err = fmt.Errorf("%w: %w", ErrNotification, err)
	s.log.Warn("notification failed",
		logx.Room(n.RoomID),
		logx.String("subject", n.Subject()),
		logx.Int("attempts", attempts),
		logx.Err(err),
	)
	s.bus.Publish(eventbus.NotifyFailed{
		RoomID:   n.RoomID,
		Subject:  n.Subject(),
		Attempts: attempts,
		Err:      err.Error(),
	})
}

func (s *Service) sendWithRetry(ctx context.Context, lim *rate.Limiter, cfg Config, sink Sink, n Notification) (int, error) {
	if sink == nil {
		return 0, errors.New("no sink")
	}
	var last error
	delay := cfg.RetryBase
	for i := 0; i <= cfg.RetryMax; i++ {
		if err := lim.Wait(ctx); err != nil {
			return i, err
		}
		err := sink.Send(ctx, n)
		if err == nil {
			return i + 1, nil
		}
		last = err
		if i == cfg.RetryMax {
			break
		}
		s.log.Debug("notification retry scheduled", logx.Room(n.RoomID), logx.Int("attempt", i+2), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return i + 1, ctx.Err()
		case <-tmr.C:
		}
		delay = min(delay*2, cfg.RetryMaxDelay)
	}
	return cfg.RetryMax + 1, last
}
