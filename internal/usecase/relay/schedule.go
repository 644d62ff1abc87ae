package relay

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next activation after a given time.
// cron.Schedule satisfies it.
type Schedule interface {
	Next(time.Time) time.Time
}

// NewSchedule returns a cron schedule for expr when it is set, and a fixed
// interval otherwise. expr uses the standard five-field syntax and also accepts
// descriptors such as "@hourly" or "@every 90s".
func NewSchedule(interval time.Duration, expr string) (Schedule, error) {
	if expr != "" {
		s, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("parse poll schedule %q: %w", expr, err)
		}
		return s, nil
	}
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", interval)
	}
	return cron.Every(interval), nil
}
