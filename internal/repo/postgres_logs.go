package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

type PostgresLogRepo struct {
	db DB
}

func NewPostgresLogRepo(db DB) *PostgresLogRepo {
	return &PostgresLogRepo{db: db}
}

func (r *PostgresLogRepo) Append(ctx context.Context, rec model.LogRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_logs (id, campaign_id, group_id, group_name, status, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.CampaignID, rec.GroupID, rec.GroupName, string(rec.Outcome), rec.Message, rec.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append log record: %w", err)
	}
	return nil
}

func (r *PostgresLogRepo) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]model.LogRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, campaign_id, group_id, group_name, status, message, sent_at
		FROM message_logs
		WHERE campaign_id = $1
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list log records: %w", err)
	}
	defer rows.Close()

	var out []model.LogRecord
	for rows.Next() {
		var rec model.LogRecord
		var outcome string
		if err := rows.Scan(
			&rec.ID,
			&rec.CampaignID,
			&rec.GroupID,
			&rec.GroupName,
			&outcome,
			&rec.Message,
			&rec.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan log record: %w", err)
		}
		rec.Outcome = model.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresLogRepo) CountSince(ctx context.Context, campaignID string, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM message_logs
		WHERE campaign_id = $1 AND sent_at >= $2
	`, campaignID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count log records: %w", err)
	}
	return n, nil
}

func (r *PostgresLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM message_logs
		WHERE sent_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old log records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresLogRepo) Stats(ctx context.Context, since time.Time) (model.LogStats, error) {
	st := model.LogStats{Since: since}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE sent_at >= $1),
		       COUNT(*) FILTER (WHERE sent_at >= $1 AND status = $2),
		       COUNT(*) FILTER (WHERE sent_at >= $1 AND status = $3),
		       COUNT(*)
		FROM message_logs
	`, since.UTC(), string(model.OutcomeSuccess), string(model.OutcomeError)).
		Scan(&st.Sent, &st.Success, &st.Errors, &st.AllTime)
	if err != nil {
		return model.LogStats{}, fmt.Errorf("failed to aggregate log records: %w", err)
	}
	return st, nil
}
