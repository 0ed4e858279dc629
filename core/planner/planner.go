// Package planner drives the periodic planning cycle: it resolves the
// starting state of charge, fetches the forecast, runs the optimizer and
// publishes the resulting schedule atomically. A failed cycle never
// disturbs the schedule already in effect.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bvweerd/battery-controller/core/events"
	"github.com/bvweerd/battery-controller/core/logger"
	"github.com/bvweerd/battery-controller/core/model"
	"github.com/bvweerd/battery-controller/core/optimizer"
	"github.com/bvweerd/battery-controller/internal/eventbus"
)

// ErrCycleInFlight is returned when a cycle is requested while another is
// still running. The request is dropped, not queued.
var ErrCycleInFlight = errors.New("planning cycle already in flight")

// ForecastSource supplies the horizon inputs of a cycle. Acquisition
// happens strictly before the optimizer runs.
type ForecastSource interface {
	Forecast(ctx context.Context) (model.HorizonForecast, error)
}

// SoCSource supplies the live state of charge in Wh.
type SoCSource interface {
	SoC(ctx context.Context) (float64, error)
}

// Store persists the little state that survives restarts: the last
// observed SoC and the last published schedule.
type Store interface {
	LastSoC() (float64, bool)
	SaveSoC(socWh float64) error
	LoadSchedule() (*model.Schedule, bool)
	SaveSchedule(s *model.Schedule) error
}

// Publisher is the bus side the planner needs.
type Publisher interface {
	Publish(e eventbus.Event)
}

// Planner owns the active schedule. The tactical loop reads it as an
// immutable snapshot; the planning loop replaces it wholesale.
type Planner struct {
	opt       *optimizer.Optimizer
	forecasts ForecastSource
	soc       SoCSource
	store     Store
	bus       Publisher
	log       logger.Logger

	active   atomic.Pointer[model.Schedule]
	inflight atomic.Bool
}

// New builds a Planner. The store and bus may be nil, in which case
// persistence and event publication are skipped.
func New(opt *optimizer.Optimizer, forecasts ForecastSource, soc SoCSource, store Store, bus Publisher, log logger.Logger) *Planner {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Planner{opt: opt, forecasts: forecasts, soc: soc, store: store, bus: bus, log: log}
}

// Restore loads the persisted schedule, if any, as the active one. Called
// once at startup so the tactical loop has a plan before the first cycle
// completes.
func (p *Planner) Restore() {
	if p.store == nil {
		return
	}
	if s, ok := p.store.LoadSchedule(); ok {
		p.active.Store(s)
		p.log.Infof("restored schedule %s with %d steps", s.CycleID, len(s.Points))
	}
}

// Active returns the schedule currently in effect, or nil before the first
// successful cycle.
func (p *Planner) Active() *model.Schedule {
	return p.active.Load()
}

// CurrentPoint returns the schedule step covering now.
func (p *Planner) CurrentPoint(now time.Time) (model.SchedulePoint, bool) {
	s := p.Active()
	if s == nil || len(s.Points) == 0 || s.StepDuration <= 0 || now.Before(s.CreatedAt) {
		return model.SchedulePoint{}, false
	}
	idx := int(now.Sub(s.CreatedAt) / s.StepDuration)
	if idx >= len(s.Points) {
		return model.SchedulePoint{}, false
	}
	return s.Points[idx], true
}

// UpcomingDischarge reports whether any step after the one covering now
// still plans to discharge. The hybrid controller preserves capacity for
// such a step instead of balancing the house with it.
func (p *Planner) UpcomingDischarge(now time.Time) bool {
	s := p.Active()
	if s == nil || len(s.Points) == 0 || s.StepDuration <= 0 {
		return false
	}
	idx := int(now.Sub(s.CreatedAt) / s.StepDuration)
	if idx < 0 {
		idx = 0
	}
	for i := idx + 1; i < len(s.Points); i++ {
		if s.Points[i].Mode == model.ModeDischarging {
			return true
		}
	}
	return false
}

// RunCycle executes one planning cycle. At most one cycle runs at a time;
// a request arriving while one is in flight returns ErrCycleInFlight. On
// any failure the previous schedule is retained and a CycleFailedEvent is
// published.
func (p *Planner) RunCycle(ctx context.Context) (*model.Schedule, error) {
	if !p.inflight.CompareAndSwap(false, true) {
		return nil, ErrCycleInFlight
	}
	defer p.inflight.Store(false)

	started := time.Now()
	sched, err := p.cycle(ctx)
	if err != nil {
		p.log.Errorf("planning cycle failed, retaining previous schedule: %v", err)
		p.publish(events.CycleFailedEvent{Err: err, Time: time.Now().UTC()})
		return nil, err
	}

	p.active.Store(sched)
	if p.store != nil {
		if err := p.store.SaveSchedule(sched); err != nil {
			p.log.Warnf("persisting schedule %s: %v", sched.CycleID, err)
		}
	}
	p.publish(events.ScheduleEvent{Schedule: sched, Elapsed: time.Since(started)})
	p.log.Infof("schedule %s active: %d steps, expected savings %.2f EUR",
		sched.CycleID, len(sched.Points), sched.Diagnostics.SavingsEUR)
	return sched, nil
}

func (p *Planner) cycle(ctx context.Context) (*model.Schedule, error) {
	socWh, err := p.startSoC(ctx)
	if err != nil {
		return nil, err
	}
	forecast, err := p.forecasts.Forecast(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching forecast: %w", err)
	}
	sched, err := p.opt.Optimize(optimizer.Request{Forecast: forecast, StartSoCWh: socWh})
	if err != nil {
		return nil, err
	}
	// A cycle superseded mid-computation is discarded wholesale.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sched, nil
}

// startSoC resolves the cycle's starting state of charge: the live reading
// when available, otherwise the last value persisted across restarts.
func (p *Planner) startSoC(ctx context.Context) (float64, error) {
	socWh, err := p.soc.SoC(ctx)
	if err == nil {
		if p.store != nil {
			if serr := p.store.SaveSoC(socWh); serr != nil {
				p.log.Warnf("persisting soc: %v", serr)
			}
		}
		return socWh, nil
	}
	if p.store != nil {
		if last, ok := p.store.LastSoC(); ok {
			p.log.Warnf("live soc unavailable, falling back to last known %.0f Wh: %v", last, err)
			return last, nil
		}
	}
	return 0, fmt.Errorf("%w: no live soc and no last known value: %v", model.ErrSensorUnavailable, err)
}

func (p *Planner) publish(e eventbus.Event) {
	if p.bus != nil {
		p.bus.Publish(e)
	}
}
