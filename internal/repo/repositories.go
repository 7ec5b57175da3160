package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

// DB is the subset of pgxpool.Pool the repositories need.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CampaignRepository only exposes targeted field updates so that concurrent
// writers never overwrite each other's columns.
type CampaignRepository interface {
	Get(ctx context.Context, id string) (*model.Campaign, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.Campaign, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) error
	RecordSend(ctx context.Context, id string, at time.Time) error
	CountByStatus(ctx context.Context) (map[model.Status]int64, error)
}

type LogRepository interface {
	Append(ctx context.Context, rec model.LogRecord) error
	ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]model.LogRecord, error)
	CountSince(ctx context.Context, campaignID string, since time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, since time.Time) (model.LogStats, error)
}

type EndpointRepository interface {
	Get(ctx context.Context, name string) (*model.EndpointRecord, error)
	Exists(ctx context.Context, name string) (bool, error)
	Count(ctx context.Context) (int64, error)
}
