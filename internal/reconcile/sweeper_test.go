package reconcile_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/group-campaigns/internal/cadence"
	"github.com/LeventeLantos/group-campaigns/internal/model"
	"github.com/LeventeLantos/group-campaigns/internal/reconcile"
	"github.com/LeventeLantos/group-campaigns/internal/repo/repotest"
	"github.com/LeventeLantos/group-campaigns/internal/scheduler"
)

type noopExecutor struct{}

func (noopExecutor) Execute(_ context.Context, c model.Campaign) (model.RunSummary, error) {
	return model.RunSummary{CampaignID: c.ID}, nil
}

type brokenDirectory struct{}

func (brokenDirectory) Exists(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

var sweepNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func campaign(id string, status model.Status) model.Campaign {
	return model.Campaign{
		ID:      id,
		Name:    id,
		Type:    model.TypeText,
		Cadence: cadence.Every(time.Hour),
		Status:  status,
	}
}

type fixture struct {
	campaigns *repotest.Campaigns
	endpoints *repotest.Endpoints
	logs      *repotest.Logs
	registry  *scheduler.Registry
	sweeper   *reconcile.Sweeper
}

func newFixture(t *testing.T, cs ...model.Campaign) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		campaigns: repotest.NewCampaigns(cs...),
		endpoints: repotest.NewEndpoints(model.EndpointRecord{Name: "ep-1"}),
		logs:      repotest.NewLogs(),
	}
	f.registry = scheduler.NewRegistry(f.campaigns, noopExecutor{}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.registry.Shutdown(ctx)
	})

	f.sweeper = reconcile.NewSweeper(f.campaigns, f.endpoints, f.logs, f.registry, reconcile.Config{
		StaleAfter: 7 * 24 * time.Hour,
		Retention:  30 * 24 * time.Hour,
	}, logger).WithClock(func() time.Time { return sweepNow })
	return f
}

func TestSweep_RestoresMissingTimer(t *testing.T) {
	f := newFixture(t, campaign("a", model.StatusActive), campaign("b", model.StatusActive))
	require.NoError(t, f.registry.Schedule(context.Background(), "a"))

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Rescheduled)
	assert.Equal(t, []string{"a", "b"}, f.registry.Scheduled())
}

func TestSweep_PausesCampaignWithNoUpcomingExecution(t *testing.T) {
	expired := campaign("once", model.StatusActive)
	expired.Cadence = cadence.At("2020-01-01T00:00:00Z")
	f := newFixture(t, expired)

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Checked: 1, Retired: 1}, res)
	assert.False(t, f.registry.IsScheduled("once"))

	stored, _ := f.campaigns.Snapshot("once")
	assert.Equal(t, model.StatusPaused, stored.Status)

	for i := 0; i < 2; i++ {
		res, err = f.sweeper.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, reconcile.Result{}, res, "pass %d", i+2)
	}
}

func TestSweep_StopsOrphanTimer(t *testing.T) {
	f := newFixture(t, campaign("a", model.StatusActive))
	ctx := context.Background()
	require.NoError(t, f.registry.Schedule(ctx, "a"))

	// paused out of band
	require.NoError(t, f.campaigns.UpdateStatus(ctx, "a", model.StatusPaused))

	res, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Orphaned)
	assert.False(t, f.registry.IsScheduled("a"))
}

func TestSweep_StopsTimerOfDeletedCampaign(t *testing.T) {
	f := newFixture(t, campaign("a", model.StatusActive))
	ctx := context.Background()
	require.NoError(t, f.registry.Schedule(ctx, "a"))
	f.campaigns.Delete("a")

	res, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Orphaned)
	assert.Equal(t, 0, f.registry.Len())
}

func TestSweep_DemotesCampaignWithMissingEndpoint(t *testing.T) {
	gone := campaign("gone", model.StatusActive)
	gone.Endpoint = "ep-deleted"
	ok := campaign("ok", model.StatusActive)
	ok.Endpoint = "ep-1"

	f := newFixture(t, gone, ok)
	ctx := context.Background()
	require.NoError(t, f.registry.Schedule(ctx, "gone"))

	res, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Demoted)
	stored, _ := f.campaigns.Snapshot("gone")
	assert.Equal(t, model.StatusPaused, stored.Status)
	assert.False(t, f.registry.IsScheduled("gone"))
	assert.True(t, f.registry.IsScheduled("ok"))
}

func TestSweep_EndpointLookupErrorKeepsCampaign(t *testing.T) {
	c := campaign("a", model.StatusActive)
	c.Endpoint = "ep-1"
	f := newFixture(t, c)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := reconcile.NewSweeper(f.campaigns, brokenDirectory{}, f.logs, f.registry, reconcile.Config{}, logger)

	res, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Demoted)
	stored, _ := f.campaigns.Snapshot("a")
	assert.Equal(t, model.StatusActive, stored.Status)
	assert.True(t, f.registry.IsScheduled("a"))
}

func TestSweep_FlagsStaleCampaigns(t *testing.T) {
	old := sweepNow.Add(-8 * 24 * time.Hour)
	recent := sweepNow.Add(-time.Hour)

	stale := campaign("stale", model.StatusActive)
	stale.LastSent = &old
	fresh := campaign("fresh", model.StatusActive)
	fresh.LastSent = &recent
	never := campaign("never", model.StatusActive)

	f := newFixture(t, stale, fresh, never)

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stale)

	// flagging only, nothing is paused
	s, _ := f.campaigns.Snapshot("stale")
	assert.Equal(t, model.StatusActive, s.Status)
}

func TestSweep_IsIdempotent(t *testing.T) {
	f := newFixture(t, campaign("a", model.StatusActive), campaign("p", model.StatusPaused))
	ctx := context.Background()

	_, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	res, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, reconcile.Result{Checked: 1}, res)
	assert.Equal(t, []string{"a"}, f.registry.Scheduled())
}

func TestCleanup_DeletesOldLogRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.logs.Append(ctx, model.NewLogRecord("c1", "g1", "g1", model.OutcomeSuccess, "ok", sweepNow.Add(-31*24*time.Hour))))
	require.NoError(t, f.logs.Append(ctx, model.NewLogRecord("c1", "g1", "g1", model.OutcomeSuccess, "ok", sweepNow.Add(-29*24*time.Hour))))

	n, err := f.sweeper.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, f.logs.Records(), 1)
}

func TestCleanup_DisabledRetention(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := reconcile.NewSweeper(f.campaigns, f.endpoints, f.logs, f.registry, reconcile.Config{}, logger)

	n, err := sweeper.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
