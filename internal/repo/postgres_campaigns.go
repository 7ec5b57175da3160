package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/LeventeLantos/group-campaigns/internal/cadence"
	"github.com/LeventeLantos/group-campaigns/internal/model"
)

const campaignColumns = `id, name, type, content, media_path, groups, interval_seconds,
		       scheduled_time, endpoint, status, total_sent, last_sent, created_at, updated_at`

type PostgresCampaignRepo struct {
	db DB
}

func NewPostgresCampaignRepo(db DB) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{db: db}
}

func (r *PostgresCampaignRepo) Get(ctx context.Context, id string) (*model.Campaign, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id)

	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrCampaignNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

func (r *PostgresCampaignRepo) ListByStatus(ctx context.Context, status model.Status) ([]model.Campaign, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = $1
		ORDER BY created_at ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of campaigns per status.
func (r *PostgresCampaignRepo) CountByStatus(ctx context.Context) (map[model.Status]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM campaigns
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}
	defer rows.Close()

	out := make(map[model.Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan campaign count: %w", err)
		}
		out[model.Status(status)] = n
	}
	return out, rows.Err()
}

func (r *PostgresCampaignRepo) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE campaigns
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrCampaignNotFound(id)
	}
	return nil
}

func (r *PostgresCampaignRepo) RecordSend(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE campaigns
		SET total_sent = total_sent + 1,
		    last_sent = $2,
		    updated_at = $2
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrCampaignNotFound(id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row scanner) (model.Campaign, error) {
	var (
		c         model.Campaign
		typ       string
		status    string
		mediaPath *string
		endpoint  *string
		interval  *int32
		schedTime *string
		lastSent  *time.Time
	)

	if err := row.Scan(
		&c.ID,
		&c.Name,
		&typ,
		&c.Content,
		&mediaPath,
		&c.Groups,
		&interval,
		&schedTime,
		&endpoint,
		&status,
		&c.TotalSent,
		&lastSent,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return model.Campaign{}, err
	}

	c.Type = model.MessageType(typ)
	c.Status = model.Status(status)
	c.Cadence = cadence.FromStored(interval, schedTime)
	c.LastSent = lastSent
	if mediaPath != nil {
		c.MediaPath = *mediaPath
	}
	if endpoint != nil {
		c.Endpoint = *endpoint
	}
	return c, nil
}
