package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/cache"
	"github.com/LeventeLantos/group-campaigns/internal/model"
)

var (
	ErrNoEndpointAvailable = errors.New("no endpoint available for sending")
	ErrNoConnectedEndpoint = errors.New("no connected endpoint found")
)

// IsEndpointFailure reports whether err means the run could not pick an
// endpoint at all.
func IsEndpointFailure(err error) bool {
	return errors.Is(err, ErrNoEndpointAvailable) || errors.Is(err, ErrNoConnectedEndpoint)
}

type Gateway interface {
	ListEndpoints(ctx context.Context) ([]model.Endpoint, error)
	ListGroups(ctx context.Context, endpoint string) ([]model.Group, error)
	SendText(ctx context.Context, endpoint, to, text string) error
	SendMedia(ctx context.Context, endpoint, to string, kind model.MediaKind, mediaURL, caption string) error
}

type CampaignStore interface {
	UpdateStatus(ctx context.Context, id string, status model.Status) error
	RecordSend(ctx context.Context, id string, at time.Time) error
}

type LogStore interface {
	Append(ctx context.Context, rec model.LogRecord) error
}

// Reporter is told about every run that reached the send loop.
type Reporter interface {
	SendReport(ctx context.Context, c model.Campaign, endpoint model.Endpoint, summary model.RunSummary) error
}

type ExecutorConfig struct {
	MediaBaseURL  string
	ThrottleDelay time.Duration
}

type Executor struct {
	gateway   Gateway
	campaigns CampaignStore
	logs      LogStore
	reporter  Reporter
	names     cache.GroupNames
	logger    *slog.Logger
	cfg       ExecutorConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(gateway Gateway, campaigns CampaignStore, logs LogStore, reporter Reporter, logger *slog.Logger, cfg ExecutorConfig) *Executor {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		gateway:   gateway,
		campaigns: campaigns,
		logs:      logs,
		reporter:  reporter,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// WithGroupNameCache enables the shared group-name cache.
func (e *Executor) WithGroupNameCache(names cache.GroupNames) *Executor {
	e.names = names
	return e
}

func (e *Executor) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Executor {
	if now != nil {
		e.now = now
	}
	if sleep != nil {
		e.sleep = sleep
	}
	return e
}

// Execute delivers c to each of its groups in order through the first
// connected endpoint. Per-group failures are recorded and do not stop the
// run. When no endpoint can be used the campaign is paused.
func (e *Executor) Execute(ctx context.Context, c model.Campaign) (model.RunSummary, error) {
	summary := model.RunSummary{
		CampaignID: c.ID,
		Groups:     len(c.Groups),
		StartedAt:  e.now(),
	}
	log := e.logger.With("campaign_id", c.ID, "campaign", c.Name)

	ep, err := e.pickEndpoint(ctx)
	if err != nil {
		campaignRunsCounter.WithLabelValues("endpoint_failure").Inc()
		log.Warn("campaign run aborted", "error", err)
		e.pause(ctx, c.ID, log)
		summary.FinishedAt = e.now()
		return summary, err
	}
	summary.Endpoint = ep.Name
	log = log.With("endpoint", ep.Name)
	log.Info("campaign run started", "groups", len(c.Groups))

	resolver := &nameResolver{gateway: e.gateway, cache: e.names, endpoint: ep.Name, logger: log}

	for i, groupID := range c.Groups {
		if i > 0 {
			if err := e.sleep(ctx, e.cfg.ThrottleDelay); err != nil {
				campaignRunsCounter.WithLabelValues("aborted").Inc()
				summary.FinishedAt = e.now()
				return summary, err
			}
		}

		at, ok := e.deliver(ctx, c, ep.Name, groupID, resolver, log)
		if ok {
			summary.Sent++
			summary.LastSent = &at
		} else {
			summary.Failed++
		}
	}

	summary.FinishedAt = e.now()
	campaignRunsCounter.WithLabelValues("completed").Inc()
	campaignRunDurationHist.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	log.Info("campaign run finished",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)

	if err := e.reporter.SendReport(ctx, c, ep, summary); err != nil {
		log.Warn("failed to send campaign report", "error", err)
	}
	return summary, nil
}

func (e *Executor) pickEndpoint(ctx context.Context) (model.Endpoint, error) {
	eps, err := e.gateway.ListEndpoints(ctx)
	if err != nil {
		return model.Endpoint{}, fmt.Errorf("%w: %v", ErrNoEndpointAvailable, err)
	}
	if len(eps) == 0 {
		return model.Endpoint{}, ErrNoEndpointAvailable
	}
	for _, ep := range eps {
		if ep.Connected() {
			return ep, nil
		}
	}
	return model.Endpoint{}, ErrNoConnectedEndpoint
}

func (e *Executor) pause(ctx context.Context, id string, log *slog.Logger) {
	if err := e.campaigns.UpdateStatus(ctx, id, model.StatusPaused); err != nil {
		log.Error("failed to pause campaign", "error", err)
		return
	}
	log.Info("campaign paused after endpoint failure")
}

// deliver sends to one group and always leaves a log record behind.
func (e *Executor) deliver(ctx context.Context, c model.Campaign, endpoint, groupID string, names *nameResolver, log *slog.Logger) (time.Time, bool) {
	name := names.name(ctx, groupID)
	sendErr := e.send(ctx, c, endpoint, groupID)
	at := e.now()

	outcome, msg := model.OutcomeSuccess, "message sent"
	if sendErr != nil {
		outcome, msg = model.OutcomeError, sendErr.Error()
	}
	groupSendsCounter.WithLabelValues(string(outcome)).Inc()

	if err := e.logs.Append(ctx, model.NewLogRecord(c.ID, groupID, name, outcome, msg, at)); err != nil {
		log.Error("failed to append log record", "group_id", groupID, "error", err)
	}

	if sendErr != nil {
		log.Warn("group send failed", "group_id", groupID, "group", name, "error", sendErr)
		return at, false
	}

	if err := e.campaigns.RecordSend(ctx, c.ID, at); err != nil {
		log.Error("failed to record send", "group_id", groupID, "error", err)
	}
	log.Debug("group send succeeded", "group_id", groupID, "group", name)
	return at, true
}

func (e *Executor) send(ctx context.Context, c model.Campaign, endpoint, groupID string) error {
	if !c.HasMedia() {
		return e.gateway.SendText(ctx, endpoint, groupID, c.Content)
	}
	return e.gateway.SendMedia(ctx, endpoint, groupID, c.Type.MediaKind(), e.mediaURL(c.MediaPath), c.Content)
}

func (e *Executor) mediaURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(e.cfg.MediaBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// nameResolver looks up group display names for one run. The gateway
// directory is fetched at most once.
type nameResolver struct {
	gateway  Gateway
	cache    cache.GroupNames
	endpoint string
	logger   *slog.Logger

	fetched bool
	dir     map[string]string
}

func (r *nameResolver) name(ctx context.Context, groupID string) string {
	if r.cache != nil {
		name, ok, err := r.cache.GroupName(ctx, r.endpoint, groupID)
		if err != nil {
			r.logger.Debug("group name cache lookup failed", "group_id", groupID, "error", err)
		}
		if ok {
			return name
		}
	}

	if !r.fetched {
		r.fetched = true
		r.load(ctx)
	}
	if name, ok := r.dir[groupID]; ok && name != "" {
		return name
	}
	return groupID
}

func (r *nameResolver) load(ctx context.Context) {
	groups, err := r.gateway.ListGroups(ctx, r.endpoint)
	if err != nil {
		r.logger.Warn("failed to fetch group directory", "error", err)
		return
	}

	r.dir = make(map[string]string, len(groups))
	for _, g := range groups {
		r.dir[g.ID] = g.Name
	}

	if r.cache != nil {
		if err := r.cache.StoreGroupNames(ctx, r.endpoint, groups); err != nil {
			r.logger.Debug("failed to cache group names", "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
