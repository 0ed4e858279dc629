package metrics

import (
	"context"
	"time"

	"github.com/bvweerd/battery-controller/core/events"
	coremetrics "github.com/bvweerd/battery-controller/core/metrics"
	"github.com/bvweerd/battery-controller/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// the controller's events. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
}

func record(sink coremetrics.Sink, ev eventbus.Event) {
	switch e := ev.(type) {
	case events.ScheduleEvent:
		s := e.Schedule
		_ = sink.RecordCycle(coremetrics.CycleResult{
			CycleID:         s.CycleID,
			StartedAt:       s.CreatedAt.Add(-e.Elapsed),
			FinishedAt:      s.CreatedAt,
			Steps:           len(s.Points),
			StartSoCWh:      s.StartSoCWh,
			TotalCostEUR:    s.Diagnostics.TotalCostEUR,
			BaselineCostEUR: s.Diagnostics.BaselineCostEUR,
			SavingsEUR:      s.Diagnostics.SavingsEUR,
			ShadowPriceEUR:  s.ShadowPrice.EURPerKWh,
			Succeeded:       true,
		})
	case events.CycleFailedEvent:
		_ = sink.RecordCycle(coremetrics.CycleResult{
			FinishedAt: e.Time,
			Succeeded:  false,
			Error:      e.Err.Error(),
		})
	case events.SetpointEvent:
		t := e.Time
		if t.IsZero() {
			t = time.Now().UTC()
		}
		_ = sink.RecordSetpoint(coremetrics.SetpointSample{
			TargetPowerW:  e.TargetPowerW,
			GridPowerW:    e.GridPowerW,
			BatteryPowerW: e.BatteryPowerW,
			SoCWh:         e.SoCWh,
			Mode:          e.Mode,
			Time:          t,
		})
	}
}
