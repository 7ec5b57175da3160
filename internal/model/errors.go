package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("resource not found")
	ErrNoCadence = errors.New("campaign has no interval or scheduled time")
)

// ErrCampaignNotFound wraps ErrNotFound with the missing id.
func ErrCampaignNotFound(id string) error {
	return fmt.Errorf("campaign %q: %w", id, ErrNotFound)
}
