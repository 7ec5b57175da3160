package model

import (
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeError   Outcome = "ERROR"
)

type LogRecord struct {
	ID         uuid.UUID `json:"id"`
	CampaignID string    `json:"campaignId"`
	GroupID    string    `json:"groupId"`
	GroupName  string    `json:"groupName"`
	Outcome    Outcome   `json:"status"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sentAt"`
}

func NewLogRecord(campaignID, groupID, groupName string, outcome Outcome, message string, at time.Time) LogRecord {
	return LogRecord{
		ID:         uuid.New(),
		CampaignID: campaignID,
		GroupID:    groupID,
		GroupName:  groupName,
		Outcome:    outcome,
		Message:    message,
		SentAt:     at,
	}
}

// RunSummary describes one execution of a campaign across its groups.
type RunSummary struct {
	CampaignID string
	Endpoint   string
	Groups     int
	Sent       int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
	// LastSent is the instant of the last successful send in this run.
	LastSent   *time.Time
}

// SuccessRate is the percentage of groups delivered in this run.
func (s RunSummary) SuccessRate() float64 {
	if s.Groups == 0 {
		return 0
	}
	return float64(s.Sent) / float64(s.Groups) * 100
}
