package metrics

import "time"

// Noop satisfies Metrics when no statsd address is configured.
type Noop struct{}

func NewNoop() Metrics { return Noop{} }

func (Noop) Increment(string)               {}
func (Noop) Count(string, int)              {}
func (Noop) Duration(string, time.Duration) {}
func (Noop) Gauge(string, int)              {}
