package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/cadence"
	"github.com/LeventeLantos/group-campaigns/internal/model"
)

type CampaignStore interface {
	Get(ctx context.Context, id string) (*model.Campaign, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.Campaign, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) error
}

type Executor interface {
	Execute(ctx context.Context, c model.Campaign) (model.RunSummary, error)
}

type entry struct {
	cancel context.CancelFunc
}

// Registry keeps one live timer per active campaign. Each timer waits for
// the next execution computed from the stored campaign, re-reads the
// campaign when it fires and drops itself once the campaign is gone or no
// longer active.
type Registry struct {
	store  CampaignStore
	exec   Executor
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	entries  map[string]*entry
	inFlight map[string]struct{}
	closed   bool

	wg sync.WaitGroup
}

type RegistryOption func(*Registry)

// WithClock sets the clock used to compute waits. Cron expressions are
// evaluated in the location of the returned time.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(store CampaignStore, exec Executor, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		store:    store,
		exec:     exec,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]*entry),
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule (re)installs the timer for a campaign. Any existing timer is
// cancelled first. A campaign that is not active is left unscheduled, and an
// active campaign whose cadence has no upcoming execution is paused.
func (r *Registry) Schedule(ctx context.Context, id string) error {
	r.cancelEntry(id)

	c, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !c.IsActive() {
		r.logger.Info("campaign not active, not scheduling", "campaign_id", id, "status", c.Status)
		return nil
	}
	if !c.Cadence.IsSet() {
		return fmt.Errorf("campaign %q: %w", id, model.ErrNoCadence)
	}
	if err := c.Cadence.Validate(); err != nil {
		return fmt.Errorf("campaign %q: %w", id, err)
	}
	if _, ok := cadence.Next(c.Cadence, c.LastSent, r.now()); !ok {
		r.retire(ctx, id, c.Cadence, r.logger.With("campaign_id", id))
		return nil
	}

	if !r.install(*c) {
		return errors.New("registry is shut down")
	}
	r.logger.Info("campaign scheduled", "campaign_id", id, "cadence", c.Cadence.String())
	return nil
}

// Stop cancels and removes the timer for id. A run already in flight is
// left to finish.
func (r *Registry) Stop(id string) bool {
	if !r.cancelEntry(id) {
		r.logger.Info("campaign not scheduled, nothing to stop", "campaign_id", id)
		return false
	}
	r.logger.Info("campaign stopped", "campaign_id", id)
	return true
}

// Reload schedules every active campaign and returns how many timers were
// installed.
func (r *Registry) Reload(ctx context.Context) (int, error) {
	active, err := r.store.ListByStatus(ctx, model.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list active campaigns: %w", err)
	}

	n := 0
	for _, c := range active {
		if err := r.Schedule(ctx, c.ID); err != nil {
			r.logger.Warn("failed to schedule campaign on reload", "campaign_id", c.ID, "error", err)
			continue
		}
		if r.IsScheduled(c.ID) {
			n++
		}
	}
	r.logger.Info("campaigns reloaded", "active", len(active), "scheduled", n)
	return n, nil
}

func (r *Registry) IsScheduled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Scheduled returns the ids with a live timer, sorted.
func (r *Registry) Scheduled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown cancels every timer and waits for in-flight runs until ctx is
// done. No timer can be installed afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for id, e := range r.entries {
		e.cancel()
		delete(r.entries, id)
	}
	scheduledCampaignsGauge.Set(0)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("registry shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight runs: %w", ctx.Err())
	}
}

func (r *Registry) cancelEntry(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.cancel()
	delete(r.entries, id)
	scheduledCampaignsGauge.Set(float64(len(r.entries)))
	return true
}

func (r *Registry) install(c model.Campaign) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if old, ok := r.entries[c.ID]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{cancel: cancel}
	r.entries[c.ID] = e
	scheduledCampaignsGauge.Set(float64(len(r.entries)))

	r.wg.Add(1)
	go r.run(ctx, e, c)
	return true
}

// removeOwn deletes the entry only if it still belongs to the caller.
func (r *Registry) removeOwn(id string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[id]; ok && cur == e {
		delete(r.entries, id)
		scheduledCampaignsGauge.Set(float64(len(r.entries)))
	}
	e.cancel()
}

func (r *Registry) run(ctx context.Context, e *entry, c model.Campaign) {
	defer r.wg.Done()
	defer r.removeOwn(c.ID, e)

	log := r.logger.With("campaign_id", c.ID)

	for {
		now := r.now()
		next, ok := cadence.Next(c.Cadence, c.LastSent, now)
		if !ok {
			if ctx.Err() == nil {
				r.retire(ctx, c.ID, c.Cadence, log)
			}
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		fresh, keep := r.fire(ctx, c, log)
		if !keep {
			return
		}
		if c.Cadence.OneShot() && fresh.Cadence == c.Cadence {
			if ctx.Err() == nil {
				r.retire(ctx, c.ID, c.Cadence, log)
			}
			return
		}
		c = fresh
	}
}

// retire pauses a campaign that is still active but will never fire again
// under the given cadence, so an active campaign always has a live timer. A
// row whose cadence changed in the meantime is left alone.
func (r *Registry) retire(ctx context.Context, id string, fired cadence.Cadence, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	row, err := r.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			log.Error("failed to load campaign before pausing", "error", err)
		}
		return
	}
	if !row.IsActive() || row.Cadence != fired {
		return
	}
	if _, ok := cadence.Next(row.Cadence, row.LastSent, r.now()); ok && !fired.OneShot() {
		return
	}

	if err := r.store.UpdateStatus(ctx, id, model.StatusPaused); err != nil {
		log.Error("failed to pause campaign without upcoming execution", "error", err)
		return
	}
	timerFiresCounter.WithLabelValues("retired").Inc()
	log.Info("campaign paused: no upcoming execution", "cadence", row.Cadence.String())
}

// fire re-reads the campaign, runs it unless another run for the same
// campaign is in flight, and returns the freshest known row and whether
// the timer should stay installed.
func (r *Registry) fire(ctx context.Context, prev model.Campaign, log *slog.Logger) (model.Campaign, bool) {
	c, keep, ok := r.current(ctx, prev, log)
	if !ok {
		return c, keep
	}

	if !r.acquire(c.ID) {
		timerFiresCounter.WithLabelValues("skipped_busy").Inc()
		log.Warn("previous run still in flight, skipping")
		return c, true
	}

	r.safeRun(context.WithoutCancel(ctx), c, log)
	r.release(c.ID)

	c, keep, _ = r.current(ctx, c, log)
	return c, keep
}

// current loads the stored campaign. ok is false when the campaign must not
// run; keep tells whether the timer survives.
func (r *Registry) current(ctx context.Context, prev model.Campaign, log *slog.Logger) (c model.Campaign, keep, ok bool) {
	readCtx := context.WithoutCancel(ctx)
	row, err := r.store.Get(readCtx, prev.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		timerFiresCounter.WithLabelValues("removed").Inc()
		log.Info("campaign no longer exists, dropping timer")
		return prev, false, false
	case err != nil:
		timerFiresCounter.WithLabelValues("store_error").Inc()
		log.Error("failed to load campaign", "error", err)
		return prev, true, false
	case !row.IsActive():
		timerFiresCounter.WithLabelValues("removed").Inc()
		log.Info("campaign no longer active, dropping timer", "status", row.Status)
		return *row, false, false
	}
	return *row, true, true
}

func (r *Registry) safeRun(ctx context.Context, c model.Campaign, log *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			timerFiresCounter.WithLabelValues("panic").Inc()
			log.Error("campaign run panic recovered", "panic", rec)
		}
	}()

	timerFiresCounter.WithLabelValues("executed").Inc()
	start := time.Now()
	summary, err := r.exec.Execute(ctx, c)
	if err != nil {
		log.Error("campaign run failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	log.Info("campaign run completed",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (r *Registry) acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[id]; busy {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, id)
}
