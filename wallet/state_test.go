package wallet

import (
	"testing"

	"github.com/emberpay/ember/logger"
	"github.com/emberpay/ember/metrics"
)

func TestConnectionStateTransitions(t *testing.T) {
	tests := []struct {
		from    ConnectionState
		to      ConnectionState
		allowed bool
	}{
		{StateNotCreated, StateCreating, true},
		{StateCreating, StateConnecting, true},
		{StateCreating, StateConnError, true},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateConnError, true},
		{StateConnected, StateNotCreated, true},
		{StateConnError, StateCreating, true},
		{StateConnError, StateNotCreated, true},

		{StateNotCreated, StateConnected, false},
		{StateNotCreated, StateConnecting, false},
		{StateCreating, StateConnected, false},
		{StateConnecting, StateCreating, false},
		{StateConnected, StateCreating, false},
		{StateConnected, StateConnError, false},
		{StateConnError, StateConnected, false},
	}

	for _, test := range tests {
		allowed := test.from.CanTransition(test.to)
		if allowed != test.allowed {
			t.Errorf("transition %s -> %s: expected '%v' but got '%v' instead", test.from, test.to, test.allowed, allowed)
		}
	}
}

func TestPaymentStateTransitions(t *testing.T) {
	tests := []struct {
		from    PaymentState
		to      PaymentState
		allowed bool
	}{
		{PaymentUnsigned, PaymentSigning, true},
		{PaymentUnsigned, PaymentErrored, true},
		{PaymentSigning, PaymentSubmitting, true},
		{PaymentSigning, PaymentFailed, true},
		{PaymentSigning, PaymentErrored, true},
		{PaymentSubmitting, PaymentConfirming, true},
		{PaymentSubmitting, PaymentFailed, true},
		{PaymentConfirming, PaymentConfirmed, true},
		{PaymentConfirming, PaymentFailed, true},

		{PaymentUnsigned, PaymentSubmitting, false},
		{PaymentUnsigned, PaymentConfirmed, false},
		{PaymentSigning, PaymentConfirmed, false},
		{PaymentConfirmed, PaymentSigning, false},
		{PaymentConfirmed, PaymentFailed, false},
		{PaymentFailed, PaymentSigning, false},
		{PaymentErrored, PaymentSigning, false},
	}

	for _, test := range tests {
		allowed := test.from.CanTransition(test.to)
		if allowed != test.allowed {
			t.Errorf("transition %s -> %s: expected '%v' but got '%v' instead", test.from, test.to, test.allowed, allowed)
		}
	}
}

func TestPaymentStateTerminal(t *testing.T) {
	terminal := []PaymentState{PaymentConfirmed, PaymentFailed, PaymentErrored}
	for _, state := range terminal {
		if !state.Terminal() {
			t.Errorf("expected %s to be terminal", state)
		}
	}

	active := []PaymentState{PaymentUnsigned, PaymentSigning, PaymentSubmitting, PaymentConfirming}
	for _, state := range active {
		if state.Terminal() {
			t.Errorf("expected %s to not be terminal", state)
		}
	}
}

func TestPaymentTrackerRefusesInvalidSteps(t *testing.T) {
	w := &Wallet{logger: logger.NoopLogger{}, metrics: metrics.NoopRecorder{}, network: "devnet"}
	tracker := w.newPaymentTracker()

	tracker.transition(PaymentConfirmed)
	if tracker.state != PaymentUnsigned {
		t.Errorf("expected '%v' but got '%v' instead", PaymentUnsigned, tracker.state)
	}

	tracker.transition(PaymentSigning)
	if tracker.state != PaymentSigning {
		t.Errorf("expected '%v' but got '%v' instead", PaymentSigning, tracker.state)
	}

	tracker.transition(PaymentSubmitting)
	tracker.transition(PaymentConfirming)
	tracker.transition(PaymentConfirmed)
	if tracker.state != PaymentConfirmed {
		t.Errorf("expected '%v' but got '%v' instead", PaymentConfirmed, tracker.state)
	}

	// terminal, nothing moves it
	tracker.transition(PaymentSigning)
	if tracker.state != PaymentConfirmed {
		t.Errorf("expected '%v' but got '%v' instead", PaymentConfirmed, tracker.state)
	}
}
