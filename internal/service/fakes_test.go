package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

type sentMsg struct {
	Endpoint string
	To       string
	Text     string
	Kind     model.MediaKind
	MediaURL string
}

type fakeGateway struct {
	mu sync.Mutex

	endpoints    []model.Endpoint
	endpointsErr error
	groups       []model.Group
	groupsErr    error
	failFor      map[string]error

	groupCalls int
	sent       []sentMsg
}

func (g *fakeGateway) ListEndpoints(context.Context) ([]model.Endpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.endpoints, g.endpointsErr
}

func (g *fakeGateway) ListGroups(context.Context, string) ([]model.Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groupCalls++
	return g.groups, g.groupsErr
}

func (g *fakeGateway) SendText(_ context.Context, endpoint, to, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failFor[to]; err != nil {
		return err
	}
	g.sent = append(g.sent, sentMsg{Endpoint: endpoint, To: to, Text: text})
	return nil
}

func (g *fakeGateway) SendMedia(_ context.Context, endpoint, to string, kind model.MediaKind, mediaURL, caption string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failFor[to]; err != nil {
		return err
	}
	g.sent = append(g.sent, sentMsg{Endpoint: endpoint, To: to, Text: caption, Kind: kind, MediaURL: mediaURL})
	return nil
}

func (g *fakeGateway) Sent() []sentMsg {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMsg(nil), g.sent...)
}

type reportCall struct {
	Campaign model.Campaign
	Endpoint model.Endpoint
	Summary  model.RunSummary
}

type fakeReporter struct {
	mu    sync.Mutex
	calls []reportCall
	err   error
}

func (r *fakeReporter) SendReport(_ context.Context, c model.Campaign, ep model.Endpoint, s model.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reportCall{Campaign: c, Endpoint: ep, Summary: s})
	return r.err
}

type fakeNameCache struct {
	mu     sync.Mutex
	names  map[string]string
	stored []model.Group
}

func (c *fakeNameCache) GroupName(_ context.Context, _ string, groupID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.names[groupID]
	return n, ok, nil
}

func (c *fakeNameCache) StoreGroupNames(_ context.Context, _ string, groups []model.Group) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = append(c.stored, groups...)
	return nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
