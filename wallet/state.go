package wallet

import (
	"fmt"
	"slices"
)

// ConnectionState tracks the wallet's link to the signing service.
// The service drives the actual passkey ceremony; the wallet only
// moves through these states and classifies terminal failures.
type ConnectionState string

const (
	StateNotCreated ConnectionState = "not-created"
	StateCreating   ConnectionState = "creating"
	StateConnecting ConnectionState = "connecting"
	StateConnected  ConnectionState = "connected"
	StateConnError  ConnectionState = "error"
)

var connectionTransitions = map[ConnectionState][]ConnectionState{
	StateNotCreated: {StateCreating},
	StateCreating:   {StateConnecting, StateConnError},
	StateConnecting: {StateConnected, StateConnError},
	StateConnected:  {StateNotCreated},
	StateConnError:  {StateCreating, StateNotCreated},
}

func (s ConnectionState) CanTransition(next ConnectionState) bool {
	return slices.Contains(connectionTransitions[s], next)
}

// PaymentState tracks a single payment through signing, submission
// and confirmation. failed and errored are terminal.
type PaymentState string

const (
	PaymentUnsigned   PaymentState = "unsigned"
	PaymentSigning    PaymentState = "signing"
	PaymentSubmitting PaymentState = "submitting"
	PaymentConfirming PaymentState = "confirming"
	PaymentConfirmed  PaymentState = "confirmed"
	PaymentFailed     PaymentState = "failed"
	PaymentErrored    PaymentState = "error"
)

var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentUnsigned:   {PaymentSigning, PaymentErrored},
	PaymentSigning:    {PaymentSubmitting, PaymentFailed, PaymentErrored},
	PaymentSubmitting: {PaymentConfirming, PaymentFailed, PaymentErrored},
	PaymentConfirming: {PaymentConfirmed, PaymentFailed, PaymentErrored},
	PaymentConfirmed:  {},
	PaymentFailed:     {},
	PaymentErrored:    {},
}

func (s PaymentState) CanTransition(next PaymentState) bool {
	return slices.Contains(paymentTransitions[s], next)
}

func (s PaymentState) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// transitionConnection advances the connection state, guarding
// against steps the machine does not allow.
func (w *Wallet) transitionConnection(next ConnectionState) error {
	w.mu.Lock()
	current := w.connState
	if !current.CanTransition(next) {
		w.mu.Unlock()
		return fmt.Errorf("invalid connection transition from %s to %s", current, next)
	}
	w.connState = next
	w.mu.Unlock()

	w.logger.Debug("connection state transition", map[string]any{
		"from": string(current),
		"to":   string(next),
	})
	return nil
}

// paymentTracker follows one payment through its lifecycle,
// reporting each step to logs and metrics. Pay drives it in a fixed
// order, so an invalid step is a bug: the tracker refuses it and
// warns rather than corrupting the state.
type paymentTracker struct {
	wallet *Wallet
	state  PaymentState
}

func (w *Wallet) newPaymentTracker() *paymentTracker {
	return &paymentTracker{wallet: w, state: PaymentUnsigned}
}

func (t *paymentTracker) transition(next PaymentState) {
	if !t.state.CanTransition(next) {
		t.wallet.logger.Warn("invalid payment state transition", map[string]any{
			"from": string(t.state),
			"to":   string(next),
		})
		return
	}
	t.wallet.logger.Debug("payment state transition", map[string]any{
		"from": string(t.state),
		"to":   string(next),
	})
	t.wallet.metrics.IncCounter("payment_"+string(next), map[string]string{"network": t.wallet.network})
	t.state = next
}
