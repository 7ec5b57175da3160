// Package repotest provides in-memory record stores for engine tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

type Campaigns struct {
	mu    sync.Mutex
	rows  map[string]model.Campaign
	gets  int
	GetFn func(id string) error
}

func NewCampaigns(cs ...model.Campaign) *Campaigns {
	s := &Campaigns{rows: make(map[string]model.Campaign)}
	for _, c := range cs {
		s.Put(c)
	}
	return s
}

func (s *Campaigns) Put(c model.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[c.ID] = clone(c)
}

func (s *Campaigns) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
}

// Snapshot returns the stored row without counting as a Get.
func (s *Campaigns) Snapshot(id string) (model.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	return clone(c), ok
}

func (s *Campaigns) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *Campaigns) Get(_ context.Context, id string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.GetFn != nil {
		if err := s.GetFn(id); err != nil {
			return nil, err
		}
	}
	c, ok := s.rows[id]
	if !ok {
		return nil, model.ErrCampaignNotFound(id)
	}
	c = clone(c)
	return &c, nil
}

func (s *Campaigns) ListByStatus(_ context.Context, status model.Status) ([]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Campaign
	for _, c := range s.rows {
		if c.Status == status {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Campaigns) UpdateStatus(_ context.Context, id string, status model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return model.ErrCampaignNotFound(id)
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	s.rows[id] = c
	return nil
}

func (s *Campaigns) RecordSend(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return model.ErrCampaignNotFound(id)
	}
	c.TotalSent++
	c.LastSent = &at
	c.UpdatedAt = at
	s.rows[id] = c
	return nil
}

func (s *Campaigns) CountByStatus(context.Context) (map[model.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.Status]int64)
	for _, c := range s.rows {
		out[c.Status]++
	}
	return out, nil
}

func clone(c model.Campaign) model.Campaign {
	if c.Groups != nil {
		c.Groups = append([]string(nil), c.Groups...)
	}
	if c.LastSent != nil {
		t := *c.LastSent
		c.LastSent = &t
	}
	return c
}

type Logs struct {
	mu       sync.Mutex
	records  []model.LogRecord
	AppendFn func(rec model.LogRecord) error
}

func NewLogs() *Logs {
	return &Logs{}
}

func (s *Logs) Records() []model.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LogRecord(nil), s.records...)
}

func (s *Logs) Append(_ context.Context, rec model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendFn != nil {
		if err := s.AppendFn(rec); err != nil {
			return err
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *Logs) ListByCampaign(_ context.Context, campaignID string, limit, offset int) ([]model.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LogRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].CampaignID == campaignID {
			out = append(out, s.records[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Logs) CountSince(_ context.Context, campaignID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.records {
		if r.CampaignID == campaignID && !r.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Logs) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var n int64
	for _, r := range s.records {
		if r.SentAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return n, nil
}

func (s *Logs) Stats(_ context.Context, since time.Time) (model.LogStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := model.LogStats{Since: since, AllTime: int64(len(s.records))}
	for _, r := range s.records {
		if r.SentAt.Before(since) {
			continue
		}
		st.Sent++
		switch r.Outcome {
		case model.OutcomeSuccess:
			st.Success++
		case model.OutcomeError:
			st.Errors++
		}
	}
	return st, nil
}

type Endpoints struct {
	mu   sync.Mutex
	rows map[string]model.EndpointRecord
}

func NewEndpoints(recs ...model.EndpointRecord) *Endpoints {
	s := &Endpoints{rows: make(map[string]model.EndpointRecord)}
	for _, r := range recs {
		s.rows[r.Name] = r
	}
	return s
}

func (s *Endpoints) Put(rec model.EndpointRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rec.Name] = rec
}

func (s *Endpoints) Get(_ context.Context, name string) (*model.EndpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[name]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &r, nil
}

func (s *Endpoints) Exists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[name]
	return ok, nil
}

func (s *Endpoints) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}
