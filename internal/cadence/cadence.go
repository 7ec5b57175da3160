// Package cadence describes when a campaign fires and computes its next
// execution instant from persisted state alone.
package cadence

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Kind int

const (
	KindNone Kind = iota
	KindInterval
	KindAt
)

func (k Kind) String() string {
	switch k {
	case KindInterval:
		return "interval"
	case KindAt:
		return "at"
	default:
		return "none"
	}
}

// Cadence is either a fixed interval or a scheduled-time expression. The
// zero value means "never auto-scheduled".
type Cadence struct {
	Kind       Kind
	Interval   time.Duration
	Expression string
}

var (
	ErrInvalidInterval   = errors.New("interval must be > 0")
	ErrInvalidExpression = errors.New("invalid scheduled time expression")
)

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Layouts accepted for one-shot instants. Layouts without a zone are read in
// the location of the reference time.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func Every(d time.Duration) Cadence {
	return Cadence{Kind: KindInterval, Interval: d}
}

func At(expr string) Cadence {
	return Cadence{Kind: KindAt, Expression: strings.TrimSpace(expr)}
}

// FromStored rebuilds a cadence from its two nullable columns. The interval
// wins when both are present.
func FromStored(intervalSeconds *int32, scheduledTime *string) Cadence {
	if intervalSeconds != nil && *intervalSeconds > 0 {
		return Every(time.Duration(*intervalSeconds) * time.Second)
	}
	if scheduledTime != nil && strings.TrimSpace(*scheduledTime) != "" {
		return At(*scheduledTime)
	}
	return Cadence{}
}

// Stored is the inverse of FromStored.
func (c Cadence) Stored() (intervalSeconds *int32, scheduledTime *string) {
	switch c.Kind {
	case KindInterval:
		s := int32(c.Interval / time.Second)
		return &s, nil
	case KindAt:
		e := c.Expression
		return nil, &e
	default:
		return nil, nil
	}
}

func (c Cadence) IsSet() bool {
	return c.Kind != KindNone
}

func (c Cadence) String() string {
	switch c.Kind {
	case KindInterval:
		return "every " + c.Interval.String()
	case KindAt:
		return "at " + c.Expression
	default:
		return "none"
	}
}

func (c Cadence) Validate() error {
	switch c.Kind {
	case KindNone:
		return nil
	case KindInterval:
		if c.Interval <= 0 {
			return ErrInvalidInterval
		}
		return nil
	case KindAt:
		if _, ok := parseInstant(c.Expression, time.UTC); ok {
			return nil
		}
		if _, err := parser.Parse(c.Expression); err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidExpression, c.Expression, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown cadence kind %d", c.Kind)
	}
}

// OneShot reports whether the cadence fires at most once.
func (c Cadence) OneShot() bool {
	if c.Kind != KindAt {
		return false
	}
	_, ok := parseInstant(c.Expression, time.UTC)
	return ok
}

// Next returns the next execution strictly after now, or false when the
// campaign will not fire again. Cron expressions are evaluated in now's
// location.
func Next(c Cadence, lastSent *time.Time, now time.Time) (time.Time, bool) {
	switch c.Kind {
	case KindInterval:
		if c.Interval <= 0 {
			return time.Time{}, false
		}
		anchor := now
		if lastSent != nil && !lastSent.IsZero() && !lastSent.After(now) {
			anchor = *lastSent
		}
		// Sub saturates for anchors centuries back; restart from now
		// rather than overflow the multiplication below.
		if now.Sub(anchor) > time.Duration(math.MaxInt64)-c.Interval {
			anchor = now
		}
		elapsed := now.Sub(anchor) / c.Interval
		return anchor.Add((elapsed + 1) * c.Interval), true

	case KindAt:
		if at, ok := parseInstant(c.Expression, now.Location()); ok {
			if at.After(now) {
				return at, true
			}
			return time.Time{}, false
		}
		sched, err := parser.Parse(c.Expression)
		if err != nil {
			return time.Time{}, false
		}
		next := sched.Next(now)
		if next.IsZero() {
			return time.Time{}, false
		}
		return next, true

	default:
		return time.Time{}, false
	}
}

func parseInstant(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
