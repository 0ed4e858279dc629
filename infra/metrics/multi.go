package metrics

import coremetrics "github.com/bvweerd/battery-controller/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCycle forwards the record to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordCycle(r coremetrics.CycleResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordCycle(r); err != nil {
			return err
		}
	}
	return nil
}

// RecordSetpoint forwards the sample to all sinks.
func (m *MultiSink) RecordSetpoint(sp coremetrics.SetpointSample) error {
	for _, s := range m.Sinks {
		if err := s.RecordSetpoint(sp); err != nil {
			return err
		}
	}
	return nil
}
