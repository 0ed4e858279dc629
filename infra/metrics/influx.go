package metrics

import (
	"context"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/bvweerd/battery-controller/core/metrics"
	"github.com/bvweerd/battery-controller/infra/logger"
)

// InfluxSink writes controller activity to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails, so a missing database never takes the
// controller down.
func NewInfluxSinkWithFallback(cfg coremetrics.InfluxConfig) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCycle writes one planning cycle outcome.
func (s *InfluxSink) RecordCycle(r coremetrics.CycleResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("planning_cycle").
		AddTag("cycle_id", r.CycleID).
		AddTag("succeeded", boolTag(r.Succeeded)).
		AddField("steps", r.Steps).
		AddField("start_soc_wh", round3(r.StartSoCWh)).
		AddField("total_cost_eur", round3(r.TotalCostEUR)).
		AddField("baseline_cost_eur", round3(r.BaselineCostEUR)).
		AddField("savings_eur", round3(r.SavingsEUR)).
		AddField("shadow_price_eur_per_kwh", round3(r.ShadowPriceEUR)).
		AddField("duration_ms", r.FinishedAt.Sub(r.StartedAt).Milliseconds()).
		SetTime(r.FinishedAt)
	if r.Error != "" {
		p.AddTag("error", r.Error)
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSetpoint writes one tactical tick.
func (s *InfluxSink) RecordSetpoint(sp coremetrics.SetpointSample) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("setpoint").
		AddTag("mode", sp.Mode.String()).
		AddField("target_power_w", round3(sp.TargetPowerW)).
		AddField("grid_power_w", round3(sp.GridPowerW)).
		AddField("battery_power_w", round3(sp.BatteryPowerW)).
		AddField("soc_wh", round3(sp.SoCWh)).
		SetTime(sp.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
