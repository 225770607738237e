package bridge

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulingAdapter validates scheduling requests before delegating them.
// A "recurrence" config value must be a standard cron spec or descriptor
// (e.g. "0 9 * * MON" or "@every 24h"); the adapter adds the computed
// "nextRunAt" to both the delegated config and the returned data.
type SchedulingAdapter struct {
	next   Bridge
	parser cron.Parser
	now    func() time.Time
}

// NewSchedulingAdapter wraps next.
func NewSchedulingAdapter(next Bridge) *SchedulingAdapter {
	return &SchedulingAdapter{
		next:   next,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (a *SchedulingAdapter) WithClock(now func() time.Time) *SchedulingAdapter {
	a.now = now

	return a
}

// Invoke implements Bridge.
func (a *SchedulingAdapter) Invoke(ctx context.Context, capability Capability, config map[string]any, variables map[string]any) (Result, error) {
	recurrence, _ := config["recurrence"].(string)
	if recurrence == "" {
		return a.next.Invoke(ctx, capability, config, variables)
	}

	from := a.now()

	if raw, ok := config["startAt"].(string); ok && raw != "" {
		startAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Failed("invalid startAt %q: %v", raw, err), nil
		}

		from = startAt
	}

	schedule, err := a.parser.Parse(recurrence)
	if err != nil {
		return Failed("invalid recurrence %q: %v", recurrence, err), nil
	}

	nextRun := schedule.Next(from).UTC().Format(time.RFC3339)

	delegated := maps.Clone(config)
	delegated["nextRunAt"] = nextRun

	result, err := a.next.Invoke(ctx, capability, delegated, variables)
	if err != nil {
		return Result{}, fmt.Errorf("scheduling: %w", err)
	}

	if result.Success {
		if result.Data == nil {
			result.Data = map[string]any{}
		}

		if _, ok := result.Data["nextRunAt"]; !ok {
			result.Data["nextRunAt"] = nextRun
		}
	}

	return result, nil
}
