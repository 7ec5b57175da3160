package model

import (
	"time"

	"github.com/LeventeLantos/group-campaigns/internal/cadence"
)

type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusPaused Status = "PAUSED"
)

type MessageType string

const (
	TypeText     MessageType = "TEXT"
	TypeImage    MessageType = "IMAGE"
	TypeVideo    MessageType = "VIDEO"
	TypeAudio    MessageType = "AUDIO"
	TypeDocument MessageType = "DOCUMENT"
)

// MediaKind is the gateway's name for an attachment type.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// MediaKind maps a campaign type to the attachment kind the gateway expects.
// Unknown non-text types are sent as documents.
func (t MessageType) MediaKind() MediaKind {
	switch t {
	case TypeImage:
		return MediaImage
	case TypeVideo:
		return MediaVideo
	case TypeAudio:
		return MediaAudio
	default:
		return MediaDocument
	}
}

type Campaign struct {
	ID        string
	Name      string
	Type      MessageType
	Content   string
	MediaPath string
	Groups    []string
	Cadence   cadence.Cadence
	Endpoint  string
	Status    Status
	TotalSent int64
	LastSent  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Campaign) IsActive() bool {
	return c.Status == StatusActive
}

// HasMedia reports whether a run must go through the media send path.
func (c Campaign) HasMedia() bool {
	return c.Type != TypeText && c.Type != "" && c.MediaPath != ""
}

// CampaignInfo is the projected live view of an active campaign.
type CampaignInfo struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Status        Status     `json:"status"`
	Cadence       string     `json:"cadence"`
	LastSent      *time.Time `json:"lastSent"`
	NextExecution *time.Time `json:"nextExecution"`
	IsRunning     bool       `json:"isRunning"`
}
