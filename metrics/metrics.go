// Package metrics defines the instrumentation hooks for the wallet.
// The wallet records payment lifecycle events and operation latency
// through a Recorder; NoopRecorder is the default, PrometheusRecorder
// exposes everything under the ember namespace.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
