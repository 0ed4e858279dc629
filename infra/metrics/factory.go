package metrics

import (
	coremetrics "github.com/bvweerd/battery-controller/core/metrics"
	"github.com/bvweerd/battery-controller/infra/logger"
)

// NewSink assembles the configured sinks. With nothing enabled a NopSink is
// returned, so callers never need a nil check.
func NewSink(cfg coremetrics.Config, log logger.Logger) (coremetrics.Sink, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	var sinks []coremetrics.Sink
	if cfg.Prometheus.Enabled {
		prom, err := NewPromSink()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, prom)
	}
	if cfg.Influx.Enabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg.Influx))
	}
	switch len(sinks) {
	case 0:
		log.Infof("no metrics sink configured")
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
