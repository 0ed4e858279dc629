// Package metrics defines the observability contract of the controller.
// Concrete sinks live under infra/metrics.
package metrics

import (
	"time"

	"github.com/bvweerd/battery-controller/core/model"
)

// CycleResult summarises one planning cycle for recording.
type CycleResult struct {
	CycleID         string
	StartedAt       time.Time
	FinishedAt      time.Time
	Steps           int
	StartSoCWh      float64
	TotalCostEUR    float64
	BaselineCostEUR float64
	SavingsEUR      float64
	ShadowPriceEUR  float64
	Succeeded       bool
	Error           string
}

// SetpointSample is one tactical tick for recording.
type SetpointSample struct {
	TargetPowerW  float64
	GridPowerW    float64
	BatteryPowerW float64
	SoCWh         float64
	Mode          model.ControlMode
	Time          time.Time
}

// Sink records controller activity for observability purposes.
type Sink interface {
	RecordCycle(CycleResult) error
	RecordSetpoint(SetpointSample) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordCycle(CycleResult) error       { return nil }
func (NopSink) RecordSetpoint(SetpointSample) error { return nil }

// Config selects and parameterizes the metrics sinks.
type Config struct {
	Prometheus PrometheusConfig `json:"prometheus"`
	Influx     InfluxConfig     `json:"influx"`
}

// PrometheusConfig enables the Prometheus sink and its scrape endpoint.
type PrometheusConfig struct {
	Enabled bool   `json:"enabled"`
	Port    string `json:"port"`
}

// InfluxConfig enables the InfluxDB sink.
type InfluxConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
	Org     string `json:"org"`
	Bucket  string `json:"bucket"`
}
