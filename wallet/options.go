package wallet

import (
	"time"

	"github.com/emberpay/ember/logger"
	"github.com/emberpay/ember/metrics"
)

type Option func(*Wallet)

func WithLogger(l logger.Logger) Option {
	return func(w *Wallet) {
		w.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(w *Wallet) {
		w.metrics = r
	}
}

// WithConfirmTimeout overrides how long Pay waits for on-chain
// confirmation before reporting the payment as still pending.
func WithConfirmTimeout(d time.Duration) Option {
	return func(w *Wallet) {
		if d > 0 {
			w.confirmTimeout = d
		}
	}
}
