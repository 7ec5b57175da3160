// Package reconcile brings the scheduler registry back in line with the
// stored campaign state and enforces log retention.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

type CampaignStore interface {
	Get(ctx context.Context, id string) (*model.Campaign, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.Campaign, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) error
}

type EndpointDirectory interface {
	Exists(ctx context.Context, name string) (bool, error)
}

type LogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Registry interface {
	Schedule(ctx context.Context, id string) error
	Stop(id string) bool
	IsScheduled(id string) bool
	Scheduled() []string
}

type Config struct {
	StaleAfter time.Duration
	Retention  time.Duration
}

// Result counts what one sweep found and fixed.
type Result struct {
	Checked     int `json:"checked"`
	Demoted     int `json:"demoted"`
	Stale       int `json:"stale"`
	Rescheduled int `json:"rescheduled"`
	Retired     int `json:"retired"`
	Orphaned    int `json:"orphaned"`
}

type Sweeper struct {
	campaigns CampaignStore
	endpoints EndpointDirectory
	logs      LogPruner
	registry  Registry
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewSweeper(campaigns CampaignStore, endpoints EndpointDirectory, logs LogPruner, registry Registry, cfg Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		campaigns: campaigns,
		endpoints: endpoints,
		logs:      logs,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Sweep runs one integrity pass. It holds no lock across the pass; a race
// with a concurrent run is corrected on the next sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result

	active, err := s.campaigns.ListByStatus(ctx, model.StatusActive)
	if err != nil {
		return res, fmt.Errorf("failed to list active campaigns: %w", err)
	}
	res.Checked = len(active)

	now := s.now()
	stillActive := make(map[string]struct{}, len(active))

	for _, c := range active {
		log := s.logger.With("campaign_id", c.ID)

		if c.Endpoint != "" {
			ok, err := s.endpoints.Exists(ctx, c.Endpoint)
			if err != nil {
				log.Warn("failed to check campaign endpoint", "endpoint", c.Endpoint, "error", err)
			} else if !ok {
				if err := s.campaigns.UpdateStatus(ctx, c.ID, model.StatusPaused); err != nil {
					log.Error("failed to pause campaign with missing endpoint", "endpoint", c.Endpoint, "error", err)
				} else {
					s.registry.Stop(c.ID)
					res.Demoted++
					log.Warn("campaign paused: endpoint no longer exists", "endpoint", c.Endpoint)
					continue
				}
			}
		}
		stillActive[c.ID] = struct{}{}

		if c.LastSent != nil && s.cfg.StaleAfter > 0 && now.Sub(*c.LastSent) > s.cfg.StaleAfter {
			res.Stale++
			log.Warn("campaign has not sent recently",
				"last_sent", c.LastSent.UTC().Format(time.RFC3339),
				"days_since", int(now.Sub(*c.LastSent).Hours()/24),
			)
		}

		if !s.registry.IsScheduled(c.ID) {
			if err := s.registry.Schedule(ctx, c.ID); err != nil {
				log.Warn("failed to reschedule active campaign", "error", err)
				continue
			}
			switch {
			case s.registry.IsScheduled(c.ID):
				res.Rescheduled++
				log.Info("missing timer restored")
			case s.paused(ctx, c.ID):
				// no upcoming execution; the registry paused it
				res.Retired++
				delete(stillActive, c.ID)
			}
		}
	}

	for _, id := range s.registry.Scheduled() {
		if _, ok := stillActive[id]; ok {
			continue
		}
		// activated after the listing above
		if c, err := s.campaigns.Get(ctx, id); err == nil && c.IsActive() {
			continue
		}
		if s.registry.Stop(id) {
			res.Orphaned++
			s.logger.Info("orphan timer stopped", "campaign_id", id)
		}
	}

	s.logger.Info("integrity sweep completed",
		"checked", res.Checked,
		"demoted", res.Demoted,
		"stale", res.Stale,
		"rescheduled", res.Rescheduled,
		"retired", res.Retired,
		"orphaned", res.Orphaned,
	)
	return res, nil
}

func (s *Sweeper) paused(ctx context.Context, id string) bool {
	c, err := s.campaigns.Get(ctx, id)
	return err == nil && c.Status == model.StatusPaused
}

// Cleanup deletes log records older than the retention window.
func (s *Sweeper) Cleanup(ctx context.Context) (int64, error) {
	if s.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.Retention)
	n, err := s.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune log records: %w", err)
	}
	s.logger.Info("log retention cleanup completed", "deleted", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	return n, nil
}

// SweepTick and CleanupTick adapt the passes to scheduler.Loop.
func (s *Sweeper) SweepTick(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("integrity sweep failed", "error", err)
	}
}

func (s *Sweeper) CleanupTick(ctx context.Context) {
	if _, err := s.Cleanup(ctx); err != nil {
		s.logger.Error("log retention cleanup failed", "error", err)
	}
}
