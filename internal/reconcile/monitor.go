package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

type CampaignCounter interface {
	CountByStatus(ctx context.Context) (map[model.Status]int64, error)
}

type EndpointCounter interface {
	Count(ctx context.Context) (int64, error)
}

type LogStatter interface {
	Stats(ctx context.Context, since time.Time) (model.LogStats, error)
}

type RegistrySizer interface {
	Len() int
}

// Monitor produces the periodic system report and the health view.
type Monitor struct {
	campaigns CampaignCounter
	endpoints EndpointCounter
	logs      LogStatter
	registry  RegistrySizer
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time
	started   time.Time
}

func NewMonitor(campaigns CampaignCounter, endpoints EndpointCounter, logs LogStatter, registry RegistrySizer, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		campaigns: campaigns,
		endpoints: endpoints,
		logs:      logs,
		registry:  registry,
		window:    24 * time.Hour,
		logger:    logger,
		now:       time.Now,
		started:   time.Now(),
	}
}

func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	if now != nil {
		m.now = now
		m.started = now()
	}
	return m
}

// SystemReport gathers campaign, endpoint and last-24h delivery figures and
// logs them.
func (m *Monitor) SystemReport(ctx context.Context) (model.SystemReport, error) {
	now := m.now()
	rep := model.SystemReport{GeneratedAt: now, Scheduled: m.registry.Len()}

	counts, err := m.campaigns.CountByStatus(ctx)
	if err != nil {
		return rep, fmt.Errorf("system report: %w", err)
	}
	for _, n := range counts {
		rep.Campaigns += n
	}
	rep.ActiveCampaigns = counts[model.StatusActive]

	if rep.Endpoints, err = m.endpoints.Count(ctx); err != nil {
		return rep, fmt.Errorf("system report: %w", err)
	}
	if rep.Window, err = m.logs.Stats(ctx, now.Add(-m.window)); err != nil {
		return rep, fmt.Errorf("system report: %w", err)
	}
	rep.SuccessRate = rep.Window.SuccessRate()

	m.logger.Info("system report",
		"campaigns", rep.Campaigns,
		"active_campaigns", rep.ActiveCampaigns,
		"scheduled", rep.Scheduled,
		"endpoints", rep.Endpoints,
		"sent_24h", rep.Window.Sent,
		"success_24h", rep.Window.Success,
		"errors_24h", rep.Window.Errors,
		"success_rate", fmt.Sprintf("%.1f", rep.SuccessRate),
		"log_records", rep.Window.AllTime,
	)
	return rep, nil
}

func (m *Monitor) ReportTick(ctx context.Context) {
	if _, err := m.SystemReport(ctx); err != nil {
		m.logger.Error("system report failed", "error", err)
	}
}

// Health probes the record store and reports process figures. A store
// failure yields an unhealthy result, not an error.
func (m *Monitor) Health(ctx context.Context) model.Health {
	now := m.now()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	h := model.Health{
		Healthy:     true,
		Database:    "connected",
		Scheduled:   m.registry.Len(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
		Uptime:      now.Sub(m.started).Truncate(time.Second).String(),
		CheckedAt:   now,
	}

	counts, err := m.campaigns.CountByStatus(ctx)
	if err != nil {
		m.logger.Warn("health check failed", "error", err)
		h.Healthy = false
		h.Database = "unreachable"
		h.Error = err.Error()
		return h
	}
	h.ActiveCampaigns = counts[model.StatusActive]
	return h
}
