package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Loop runs a maintenance job on a fixed interval. The first tick fires as
// soon as the loop starts unless WithDelayedStart is given.
type Loop struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	delayed  bool
	tickFn   func(context.Context)
	logger   *slog.Logger

	running  atomic.Bool
	ticks    atomic.Int64
	lastTick atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type LoopOption func(*Loop)

// WithTickTimeout bounds every tick with a deadline.
func WithTickTimeout(d time.Duration) LoopOption {
	return func(l *Loop) { l.timeout = d }
}

// WithDelayedStart skips the tick that normally fires on Start.
func WithDelayedStart() LoopOption {
	return func(l *Loop) { l.delayed = true }
}

func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLoop(name string, interval time.Duration, tickFn func(context.Context), opts ...LoopOption) (*Loop, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	l := &Loop{
		name:     name,
		interval: interval,
		tickFn:   tickFn,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("loop", name)
	return l, nil
}

func (l *Loop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running.CompareAndSwap(false, true) {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(ctx, l.done)
	return true
}

// Stop cancels the loop and waits for an in-progress tick to return.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running.Load() {
		return false
	}

	l.cancel()
	<-l.done
	l.running.Store(false)

	l.logger.Info("loop stopped")
	return true
}

func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// Ticks counts completed ticks, including ones that panicked.
func (l *Loop) Ticks() int64 {
	return l.ticks.Load()
}

// LastTick is the start time of the most recent tick, zero before the first.
func (l *Loop) LastTick() time.Time {
	ns := l.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("loop started", "interval", l.interval.String(), "delayed", l.delayed)

	if !l.delayed {
		l.safeTick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.safeTick(ctx)
		}
	}
}

func (l *Loop) safeTick(ctx context.Context) {
	start := time.Now()
	l.lastTick.Store(start.UnixNano())
	defer l.ticks.Add(1)

	defer func() {
		if r := recover(); r != nil {
			loopTicksCounter.WithLabelValues(l.name, "panic").Inc()
			l.logger.Error("loop tick panic recovered", "panic", r)
		}
	}()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	l.tickFn(ctx)
	loopTicksCounter.WithLabelValues(l.name, "ok").Inc()
	l.logger.Debug("loop tick completed", "duration_ms", time.Since(start).Milliseconds())
}
