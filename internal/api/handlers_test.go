package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/model"
	"github.com/LeventeLantos/group-campaigns/internal/reconcile"
)

type fakeRegistry struct {
	scheduled   map[string]bool
	scheduleErr error
	reloadN     int
	reloadErr   error
	gotSchedule []string
}

func (f *fakeRegistry) Schedule(_ context.Context, id string) error {
	f.gotSchedule = append(f.gotSchedule, id)
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	f.scheduled[id] = true
	return nil
}

func (f *fakeRegistry) Stop(id string) bool {
	if !f.scheduled[id] {
		return false
	}
	delete(f.scheduled, id)
	return true
}

func (f *fakeRegistry) Reload(context.Context) (int, error) { return f.reloadN, f.reloadErr }
func (f *fakeRegistry) IsScheduled(id string) bool          { return f.scheduled[id] }

type fakeProjector struct {
	items []model.CampaignInfo
	err   error
}

func (f *fakeProjector) ActiveCampaignsInfo(context.Context) ([]model.CampaignInfo, error) {
	return f.items, f.err
}

type fakeLogs struct {
	// capture args
	gotCampaign string
	gotLimit    int
	gotOffset   int

	// behavior
	items []model.LogRecord
	err   error
}

func (f *fakeLogs) ListByCampaign(_ context.Context, campaignID string, limit, offset int) ([]model.LogRecord, error) {
	f.gotCampaign = campaignID
	f.gotLimit = limit
	f.gotOffset = offset
	return f.items, f.err
}

type fakeSweeper struct {
	res reconcile.Result
	err error
}

func (f *fakeSweeper) Sweep(context.Context) (reconcile.Result, error) { return f.res, f.err }

type fakeMonitor struct {
	health    model.Health
	report    model.SystemReport
	reportErr error
}

func (f *fakeMonitor) Health(context.Context) model.Health { return f.health }

func (f *fakeMonitor) SystemReport(context.Context) (model.SystemReport, error) {
	return f.report, f.reportErr
}

type testDeps struct {
	registry  *fakeRegistry
	projector *fakeProjector
	logs      *fakeLogs
	sweeper   *fakeSweeper
	monitor   *fakeMonitor
}

func newTestServer(t *testing.T) (*testDeps, http.Handler) {
	t.Helper()

	d := &testDeps{
		registry:  &fakeRegistry{scheduled: map[string]bool{}},
		projector: &fakeProjector{},
		logs:      &fakeLogs{},
		sweeper:   &fakeSweeper{},
		monitor:   &fakeMonitor{health: model.Health{Healthy: true, Database: "connected"}},
	}
	h := NewHandler(d.registry, d.projector, d.logs, d.sweeper, d.monitor)
	return d, Router(h)
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func do(mux http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	d, mux := newTestServer(t)
	d.monitor.health.ActiveCampaigns = 3
	d.monitor.health.Scheduled = 1

	rr := do(mux, http.MethodGet, "/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}

	body := decodeJSON(t, rr)
	if v, ok := body["healthy"].(bool); !ok || !v {
		t.Fatalf("expected healthy:true, got %v", body)
	}
	if body["database"] != "connected" || body["activeCampaigns"] != float64(3) || body["scheduled"] != float64(1) {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestHealth_UnhealthyReturns503(t *testing.T) {
	d, mux := newTestServer(t)
	d.monitor.health = model.Health{Healthy: false, Database: "unreachable", Error: "connection refused"}

	rr := do(mux, http.MethodGet, "/v1/health")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if body := decodeJSON(t, rr); body["error"] != "connection refused" {
		t.Fatalf("expected cause in body, got %v", body)
	}
}

func TestSystemReport(t *testing.T) {
	d, mux := newTestServer(t)
	d.monitor.report = model.SystemReport{
		Campaigns:       5,
		ActiveCampaigns: 2,
		Endpoints:       1,
		Window:          model.LogStats{Sent: 4, Success: 3, Errors: 1, AllTime: 40},
		SuccessRate:     75,
	}

	rr := do(mux, http.MethodGet, "/v1/maintenance/report")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	data, _ := body["data"].(map[string]any)
	window, _ := data["window"].(map[string]any)
	if data["campaigns"] != float64(5) || data["successRate"] != float64(75) || window["sent"] != float64(4) {
		t.Fatalf("unexpected report %v", body)
	}

	d.monitor.reportErr = errors.New("db down")
	if rr := do(mux, http.MethodGet, "/v1/maintenance/report"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestActiveCampaigns(t *testing.T) {
	d, mux := newTestServer(t)
	next := time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC)
	d.projector.items = []model.CampaignInfo{
		{ID: "a", Name: "A", Status: model.StatusActive, Cadence: "every 1m0s", NextExecution: &next, IsRunning: true},
	}

	rr := do(mux, http.MethodGet, "/v1/campaigns/active")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	body := decodeJSON(t, rr)
	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one item, got %v", body)
	}
	item := items[0].(map[string]any)
	if item["nextExecution"] != "2026-03-10T12:01:00Z" || item["isRunning"] != true {
		t.Fatalf("unexpected item %v", item)
	}
}

func TestActiveCampaigns_ErrorReturns500(t *testing.T) {
	d, mux := newTestServer(t)
	d.projector.err = errors.New("db down")

	rr := do(mux, http.MethodGet, "/v1/campaigns/active")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "db down") {
		t.Fatalf("expected error body to contain cause, got %q", rr.Body.String())
	}
}

func TestSchedule(t *testing.T) {
	d, mux := newTestServer(t)

	rr := do(mux, http.MethodPost, "/v1/campaigns/c1/schedule")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if len(d.registry.gotSchedule) != 1 || d.registry.gotSchedule[0] != "c1" {
		t.Fatalf("expected Schedule(c1), got %v", d.registry.gotSchedule)
	}

	body := decodeJSON(t, rr)
	if body["success"] != true || body["message"] != "campaign scheduled" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSchedule_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("campaign %q: %w", "c1", model.ErrNotFound), http.StatusNotFound},
		{"no cadence", fmt.Errorf("campaign %q: %w", "c1", model.ErrNoCadence), http.StatusUnprocessableEntity},
		{"store failure", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, mux := newTestServer(t)
			d.registry.scheduleErr = tc.err

			rr := do(mux, http.MethodPost, "/v1/campaigns/c1/schedule")
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d body=%q", tc.want, rr.Code, rr.Body.String())
			}
			body := decodeJSON(t, rr)
			if body["success"] != false {
				t.Fatalf("expected success=false, got %v", body)
			}
		})
	}
}

func TestStop(t *testing.T) {
	d, mux := newTestServer(t)
	d.registry.scheduled["c1"] = true

	rr := do(mux, http.MethodPost, "/v1/campaigns/c1/stop")
	body := decodeJSON(t, rr)
	if rr.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("expected successful stop, got %d %v", rr.Code, body)
	}

	// unknown id is a no-op
	rr = do(mux, http.MethodPost, "/v1/campaigns/c1/stop")
	body = decodeJSON(t, rr)
	if rr.Code != http.StatusOK || body["success"] != false {
		t.Fatalf("expected no-op stop, got %d %v", rr.Code, body)
	}
}

func TestReload(t *testing.T) {
	d, mux := newTestServer(t)
	d.registry.reloadN = 3

	rr := do(mux, http.MethodPost, "/v1/campaigns/reload")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeJSON(t, rr)
	data, _ := body["data"].(map[string]any)
	if data["scheduled"] != float64(3) {
		t.Fatalf("expected scheduled=3, got %v", body)
	}
}

func TestListLogs_DefaultsAndArgs(t *testing.T) {
	d, mux := newTestServer(t)
	d.logs.items = []model.LogRecord{
		model.NewLogRecord("c1", "g1", "Group", model.OutcomeSuccess, "message sent", time.Now()),
	}

	// No query params => defaults (limit=50, offset=0)
	rr := do(mux, http.MethodGet, "/v1/campaigns/c1/logs")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if d.logs.gotCampaign != "c1" || d.logs.gotLimit != 50 || d.logs.gotOffset != 0 {
		t.Fatalf("expected repo called with c1 limit=50 offset=0, got %s limit=%d offset=%d", d.logs.gotCampaign, d.logs.gotLimit, d.logs.gotOffset)
	}

	body := decodeJSON(t, rr)
	items, ok := body["items"].([]any)
	if !ok {
		t.Fatalf("expected items array, got %T %v", body["items"], body)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestListLogs_ParsesLimitOffset(t *testing.T) {
	d, mux := newTestServer(t)

	rr := do(mux, http.MethodGet, "/v1/campaigns/c1/logs?limit=10&offset=5")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if d.logs.gotLimit != 10 || d.logs.gotOffset != 5 {
		t.Fatalf("expected limit=10 offset=5, got limit=%d offset=%d", d.logs.gotLimit, d.logs.gotOffset)
	}

	body := decodeJSON(t, rr)
	if items, ok := body["items"].([]any); !ok || len(items) != 0 {
		t.Fatalf("expected empty items array, got %v", body)
	}
}

func TestListLogs_InvalidLimitOffsetFallsBackToDefaults(t *testing.T) {
	d, mux := newTestServer(t)

	rr := do(mux, http.MethodGet, "/v1/campaigns/c1/logs?limit=abc&offset=zzz")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if d.logs.gotLimit != 50 || d.logs.gotOffset != 0 {
		t.Fatalf("expected defaults limit=50 offset=0, got limit=%d offset=%d", d.logs.gotLimit, d.logs.gotOffset)
	}
}

func TestSweep(t *testing.T) {
	d, mux := newTestServer(t)
	d.sweeper.res = reconcile.Result{Checked: 4, Rescheduled: 1}

	rr := do(mux, http.MethodPost, "/v1/maintenance/sweep")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeJSON(t, rr)
	data, _ := body["data"].(map[string]any)
	if data["checked"] != float64(4) || data["rescheduled"] != float64(1) {
		t.Fatalf("unexpected sweep result %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	rr := do(mux, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus exposition, got %q", rr.Body.String())
	}
}

func TestRouterRoot(t *testing.T) {
	_, mux := newTestServer(t)

	rr := do(mux, http.MethodGet, "/")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "group-campaigns" {
		t.Fatalf("expected body %q, got %q", "group-campaigns", got)
	}
}
