package model

import "time"

// LogStats aggregates log records sent since a point in time.
type LogStats struct {
	Since   time.Time `json:"since"`
	Sent    int64     `json:"sent"`
	Success int64     `json:"success"`
	Errors  int64     `json:"errors"`
	// AllTime counts every stored record regardless of Since.
	AllTime int64 `json:"allTime"`
}

func (s LogStats) SuccessRate() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Sent) * 100
}

// SystemReport is the periodic overview of the whole engine.
type SystemReport struct {
	GeneratedAt     time.Time `json:"generatedAt"`
	Campaigns       int64     `json:"campaigns"`
	ActiveCampaigns int64     `json:"activeCampaigns"`
	Scheduled       int       `json:"scheduled"`
	Endpoints       int64     `json:"endpoints"`
	Window          LogStats  `json:"window"`
	SuccessRate     float64   `json:"successRate"`
}

type Health struct {
	Healthy         bool      `json:"healthy"`
	Database        string    `json:"database"`
	ActiveCampaigns int64     `json:"activeCampaigns"`
	Scheduled       int       `json:"scheduled"`
	Goroutines      int       `json:"goroutines"`
	HeapAllocMB     float64   `json:"heapAllocMb"`
	Uptime          string    `json:"uptime"`
	CheckedAt       time.Time `json:"checkedAt"`
	Error           string    `json:"error,omitempty"`
}
