package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/cadence"
	"github.com/LeventeLantos/group-campaigns/internal/model"
)

const placeholderOwner = "0000000000000"

const reportTimeLayout = "02/01/2006 15:04:05"

type NopReporter struct{}

func (NopReporter) SendReport(context.Context, model.Campaign, model.Endpoint, model.RunSummary) error {
	return nil
}

type TextSender interface {
	SendText(ctx context.Context, endpoint, to, text string) error
}

type OwnerDirectory interface {
	Get(ctx context.Context, name string) (*model.EndpointRecord, error)
}

type SendCounter interface {
	CountSince(ctx context.Context, campaignID string, since time.Time) (int64, error)
}

// GatewayReporter sends a plain text run summary to the owner of the
// endpoint that carried the run.
type GatewayReporter struct {
	sender  TextSender
	owners  OwnerDirectory
	counts  SendCounter
	loc     *time.Location
	cronLoc *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

func NewGatewayReporter(sender TextSender, owners OwnerDirectory, counts SendCounter, loc *time.Location, logger *slog.Logger) *GatewayReporter {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayReporter{
		sender:  sender,
		owners:  owners,
		counts:  counts,
		loc:     loc,
		cronLoc: time.UTC,
		logger:  logger,
		now:     time.Now,
	}
}

func (r *GatewayReporter) SendReport(ctx context.Context, c model.Campaign, ep model.Endpoint, summary model.RunSummary) error {
	owner := r.ownerOf(ctx, ep)
	if owner == "" || owner == placeholderOwner {
		r.logger.Info("endpoint owner not configured, skipping report", "campaign_id", c.ID, "endpoint", ep.Name)
		return nil
	}

	now := r.now().In(r.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
	today, err := r.counts.CountSince(ctx, c.ID, midnight)
	if err != nil {
		r.logger.Warn("failed to count today's sends", "campaign_id", c.ID, "error", err)
	}

	lastSent := c.LastSent
	if summary.LastSent != nil {
		lastSent = summary.LastSent
	}
	next := "not scheduled"
	// cron fields are read in the scheduler's zone, then shown in the report zone
	if t, ok := cadence.Next(c.Cadence, lastSent, now.In(r.cronLoc)); ok {
		next = t.In(r.loc).Format(reportTimeLayout)
	}

	text := FormatReport(c, summary, today, now.Format(reportTimeLayout), next)
	if err := r.sender.SendText(ctx, ep.Name, owner, text); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	r.logger.Info("campaign report sent", "campaign_id", c.ID, "endpoint", ep.Name)
	return nil
}

func (r *GatewayReporter) ownerOf(ctx context.Context, ep model.Endpoint) string {
	if r.owners != nil {
		rec, err := r.owners.Get(ctx, ep.Name)
		switch {
		case err == nil && rec.OwnerPhone != "" && rec.OwnerPhone != placeholderOwner:
			return rec.OwnerPhone
		case err != nil && !errors.Is(err, model.ErrNotFound):
			r.logger.Warn("failed to look up endpoint owner", "endpoint", ep.Name, "error", err)
		}
	}
	return ep.Owner
}

func FormatReport(c model.Campaign, s model.RunSummary, today int64, sentAt, next string) string {
	var b strings.Builder
	b.WriteString("CAMPAIGN REPORT\n")
	b.WriteString("-----------------------\n")
	fmt.Fprintf(&b, "Campaign: %s\n", c.Name)
	fmt.Fprintf(&b, "Groups: %d\n", s.Groups)
	fmt.Fprintf(&b, "Sent at: %s\n", sentAt)
	fmt.Fprintf(&b, "Sends today: %d\n", today)
	fmt.Fprintf(&b, "Next execution: %s\n", next)
	fmt.Fprintf(&b, "Success: %d\n", s.Sent)
	fmt.Fprintf(&b, "Errors: %d\n", s.Failed)
	fmt.Fprintf(&b, "Success rate: %.1f%%", s.SuccessRate())
	return b.String()
}

// WithCronLocation sets the zone scheduled-time expressions are evaluated
// in. It must match the registry's clock.
func (r *GatewayReporter) WithCronLocation(loc *time.Location) *GatewayReporter {
	if loc != nil {
		r.cronLoc = loc
	}
	return r
}

func (r *GatewayReporter) WithClock(now func() time.Time) *GatewayReporter {
	if now != nil {
		r.now = now
	}
	return r
}
