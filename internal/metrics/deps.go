package metrics

import "time"

type Metrics interface {
	Increment(string)
	Count(string, int)
	Duration(string, time.Duration)
	Gauge(string, int)
}
