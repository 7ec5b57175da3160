// Package status projects the live view of active campaigns.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/cadence"
	"github.com/LeventeLantos/group-campaigns/internal/model"
)

type CampaignLister interface {
	ListByStatus(ctx context.Context, status model.Status) ([]model.Campaign, error)
}

type Registry interface {
	IsScheduled(id string) bool
}

type Projector struct {
	campaigns CampaignLister
	registry  Registry
	now       func() time.Time
	cronLoc   *time.Location
}

func NewProjector(campaigns CampaignLister, registry Registry, now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	return &Projector{campaigns: campaigns, registry: registry, now: now}
}

// WithCronLocation evaluates scheduled-time expressions in loc, the zone
// the registry fires them in. Without it the clock's own zone is used.
func (p *Projector) WithCronLocation(loc *time.Location) *Projector {
	p.cronLoc = loc
	return p
}

// ActiveCampaignsInfo recomputes the next execution of every active
// campaign from its stored state on each call.
func (p *Projector) ActiveCampaignsInfo(ctx context.Context) ([]model.CampaignInfo, error) {
	active, err := p.campaigns.ListByStatus(ctx, model.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}

	now := p.now()
	if p.cronLoc != nil {
		now = now.In(p.cronLoc)
	}
	out := make([]model.CampaignInfo, 0, len(active))
	for _, c := range active {
		info := model.CampaignInfo{
			ID:        c.ID,
			Name:      c.Name,
			Status:    c.Status,
			Cadence:   c.Cadence.String(),
			LastSent:  c.LastSent,
			IsRunning: p.registry.IsScheduled(c.ID),
		}
		if next, ok := cadence.Next(c.Cadence, c.LastSent, now); ok {
			info.NextExecution = &next
		}
		out = append(out, info)
	}
	return out, nil
}
