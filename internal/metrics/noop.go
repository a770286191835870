package metrics

import "time"

type Noop struct{}

func (Noop) Increment(string) {}

func (Noop) Duration(string, time.Duration) {}

func (Noop) Gauge(string, int) {}
