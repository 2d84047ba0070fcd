package server

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// NewStatsReporter schedules ReportStats on spec, a standard cron expression
// or a descriptor such as "@every 1m". The returned scheduler is not started.
//
// Parameters:
//   - s: The server whose counters are reported
//   - spec: The schedule
//
// Returns:
//   - The cron scheduler; call Start and Stop on it
//   - An error if spec does not parse
func NewStatsReporter(s *Server, spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, s.ReportStats); err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", spec, err)
	}

	return c, nil
}
