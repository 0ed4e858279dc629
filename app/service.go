// Package app wires the controller together: configuration, telemetry,
// planning and tactical loops, persistence and observability.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bvweerd/battery-controller/config"
	"github.com/bvweerd/battery-controller/core/balancer"
	"github.com/bvweerd/battery-controller/core/battery"
	"github.com/bvweerd/battery-controller/core/events"
	"github.com/bvweerd/battery-controller/core/forecast"
	"github.com/bvweerd/battery-controller/core/model"
	"github.com/bvweerd/battery-controller/core/optimizer"
	"github.com/bvweerd/battery-controller/core/planner"
	"github.com/bvweerd/battery-controller/infra/logger"
	"github.com/bvweerd/battery-controller/infra/metrics"
	"github.com/bvweerd/battery-controller/infra/mqtt"
	"github.com/bvweerd/battery-controller/infra/store"
	"github.com/bvweerd/battery-controller/internal/eventbus"
)

// Service runs the two controller loops: the planning loop re-optimizes the
// schedule on its slow cadence, the tactical loop derives setpoints on its
// fast one. The loops share nothing but the atomically published schedule.
type Service struct {
	cfg  *config.Config
	log  logger.Logger
	bus  *eventbus.Bus
	cli  *mqtt.Client
	st   *store.FileStore
	plan *planner.Planner
	bal  *balancer.Balancer
	mode model.ControlMode
}

// New builds a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	batt, err := battery.New(cfg.Battery)
	if err != nil {
		return nil, fmt.Errorf("battery model: %w", err)
	}
	opt, err := optimizer.New(batt, cfg.Optimizer, logger.New("optimizer"))
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}
	bal, err := balancer.New(batt, cfg.Balancer, logger.New("balancer"))
	if err != nil {
		return nil, fmt.Errorf("balancer: %w", err)
	}
	cli, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	st, err := store.NewFileStore(cfg.StateFile, logger.New("store"))
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	bus := eventbus.New(32)
	src := forecast.FileSource{
		Path: cfg.Forecast.File,
		Step: time.Duration(cfg.Forecast.StepMinutes) * time.Minute,
	}
	pln := planner.New(opt, src, cli, st, bus, logger.New("planner"))

	return &Service{
		cfg:  cfg,
		log:  log,
		bus:  bus,
		cli:  cli,
		st:   st,
		plan: pln,
		bal:  bal,
		mode: cfg.Control.ControlMode(),
	}, nil
}

// Run starts both loops and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	sink, err := metrics.NewSink(s.cfg.Metrics, s.log)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	metrics.StartEventCollector(ctx, s.bus, sink)
	if s.cfg.Metrics.Prometheus.Enabled {
		go func() {
			addr := ":" + s.cfg.Metrics.Prometheus.Port
			if err := metrics.StartPromServer(ctx, addr, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	s.plan.Restore()
	go s.planningLoop(ctx)
	go s.tacticalLoop(ctx)

	s.log.Infof("controller running in %s mode", s.mode)
	<-ctx.Done()
	s.Close()
	return nil
}

// planningLoop runs a cycle immediately and then on every tick. Overlap is
// impossible: the planner drops requests while a cycle is in flight.
func (s *Service) planningLoop(ctx context.Context) {
	s.runCycle(ctx)
	ticker := time.NewTicker(s.cfg.Control.PlanningInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	if _, err := s.plan.RunCycle(ctx); err != nil && !errors.Is(err, planner.ErrCycleInFlight) && ctx.Err() == nil {
		s.log.Errorf("planning cycle: %v", err)
	}
}

// tacticalLoop derives and publishes a setpoint on every tick.
func (s *Service) tacticalLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Control.TacticalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tacticalTick(ctx)
		}
	}
}

func (s *Service) tacticalTick(ctx context.Context) {
	meas, telemetryOK := s.cli.Measurement()
	socWh, socErr := s.cli.SoC(ctx)
	socOK := socErr == nil
	if !socOK {
		// Guard against overshooting the SoC bounds with the persisted
		// value when the sensor is out.
		if last, ok := s.st.LastSoC(); ok {
			socWh, socOK = last, true
		}
	}
	now := time.Now()
	in := balancer.Input{
		Measurement: meas,
		TelemetryOK: telemetryOK,
		Mode:        s.mode,
		SoCWh:       socWh,
		SoCOK:       socOK,
	}
	if pt, ok := s.plan.CurrentPoint(now); ok {
		in.ScheduledPowerW = pt.PowerW
		in.ScheduledMode = pt.Mode
		in.BuyPriceEUR = pt.BuyPriceEUR
		in.FeedInPriceEUR = pt.FeedInPriceEUR
		in.UpcomingDischarge = s.plan.UpcomingDischarge(now)
	}

	target := s.bal.Target(in)
	if err := s.cli.PublishSetpoint(target, s.mode); err != nil {
		s.log.Errorf("publishing setpoint: %v", err)
		return
	}
	s.bus.Publish(events.SetpointEvent{
		TargetPowerW:  target,
		GridPowerW:    meas.GridPowerW,
		BatteryPowerW: meas.BatteryPowerW,
		SoCWh:         socWh,
		Mode:          s.mode,
		Time:          time.Now().UTC(),
	})
}

// Close releases the service's connections.
func (s *Service) Close() {
	s.bus.Close()
	s.cli.Close()
}
