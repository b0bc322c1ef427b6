// Package errors defines the error taxonomy shared by the wallet,
// the CLI and the payment codec.
//
// Every failure surfaced to a user funnels into a PaymentError
// carrying:
//   - Code: machine-readable kebab-case identifier
//   - Message: internal diagnostic text, never shown to users
//   - UserMessage: pre-authored text safe to display
//   - Recoverable: whether the UI should offer a retry
//   - Cause: underlying error, if any
//
// Expected local failures (malformed QR, bad user input) are
// constructed directly with New or Wrap. Opaque external failures
// (signing service, chain RPC) go through Classify, which maps
// message text onto a code. The user-facing strings are fixed and
// must not be reworded, the mobile apps display them verbatim.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a machine-readable error identifier.
type Code string

const (
	BiometricUnavailable Code = "biometric-unavailable"
	BiometricNotEnrolled Code = "biometric-not-enrolled"
	BiometricFailed      Code = "biometric-failed"
	UserCancelled        Code = "user-cancelled"
	ConnectionFailed     Code = "connection-failed"
	WalletNotConnected   Code = "wallet-not-connected"
	SessionExpired       Code = "session-expired"
	InsufficientBalance  Code = "insufficient-balance"
	InvalidAmount        Code = "invalid-amount"
	InvalidRecipient     Code = "invalid-recipient"
	SigningFailed        Code = "signing-failed"
	SubmissionFailed     Code = "submission-failed"
	ConfirmationTimeout  Code = "confirmation-timeout"
	NetworkError         Code = "network-error"
	RPCError             Code = "rpc-error"
	QRInvalid            Code = "qr-invalid"
	CameraPermission     Code = "camera-permission"
	Unknown              Code = "unknown"
)

// userMessages holds the literal strings shown to users, keyed by
// code. Changing any of these breaks message compatibility with the
// deployed apps.
var userMessages = map[Code]string{
	BiometricUnavailable: "Biometric authentication is not available on this device. Please set up Face ID or Touch ID in your device settings.",
	BiometricNotEnrolled: "No biometric credentials found. Please set up Face ID or Touch ID in your device settings first.",
	BiometricFailed:      "Biometric authentication failed. Please try again.",
	UserCancelled:        "Authentication was cancelled. Tap \"Get Started\" to try again.",
	ConnectionFailed:     "Could not connect to wallet service. Please check your internet connection and try again.",
	WalletNotConnected:   "Wallet is not connected. Please authenticate first.",
	SessionExpired:       "Your session has expired. Please authenticate again.",
	InsufficientBalance:  "Insufficient balance to complete this transaction. Please add funds to your wallet.",
	InvalidAmount:        "Invalid amount entered. Please enter a valid number between $0.01 and $10,000.",
	InvalidRecipient:     "Invalid recipient address. Please scan a valid payment QR code.",
	SigningFailed:        "Failed to sign the transaction. Please try again.",
	SubmissionFailed:     "Failed to submit the transaction to the network. Please try again.",
	ConfirmationTimeout:  "Transaction is taking longer than expected. It may still complete. Check your transaction history.",
	NetworkError:         "Network connection failed. Please check your internet connection.",
	RPCError:             "Could not connect to the network. Please try again later.",
	QRInvalid:            "This is not a valid payment QR code. Please scan a valid QR code.",
	CameraPermission:     "Camera permission is required to scan QR codes. Please enable camera access in your device settings.",
	Unknown:              "An unexpected error occurred. Please try again.",
}

// nonRecoverable lists the codes that dead-end the flow: the UI shows
// the message without a retry affordance.
var nonRecoverable = map[Code]bool{
	BiometricUnavailable: true,
	BiometricNotEnrolled: true,
	WalletNotConnected:   true,
}

// PaymentError is the single error type carried across the wallet,
// the CLI and the codec boundaries.
type PaymentError struct {
	Code        Code
	Message     string
	UserMessage string
	Recoverable bool
	Cause       error
}

func (e *PaymentError) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	default:
		return string(e.Code)
	}
}

// Unwrap returns the underlying cause, enabling error chain
// inspection.
func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// Is matches any *PaymentError carrying the same code, so
// errors.Is(err, &PaymentError{Code: SessionExpired}) works across
// wrapping.
func (e *PaymentError) Is(target error) bool {
	other, ok := target.(*PaymentError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// New creates a PaymentError with the given code and an internal
// diagnostic message. The user-facing message and recoverability are
// filled in from the code.
func New(code Code, message string) *PaymentError {
	return &PaymentError{
		Code:        code,
		Message:     message,
		UserMessage: messageFor(code),
		Recoverable: !nonRecoverable[code],
	}
}

// Wrap creates a PaymentError with the given code around an
// underlying cause.
func Wrap(code Code, cause error) *PaymentError {
	e := New(code, "")
	e.Cause = cause
	return e
}

// As reports whether err or any error in its chain is a
// *PaymentError, assigning it to target on match.
func As(err error, target **PaymentError) bool {
	return stderrors.As(err, target)
}

// CodeOf returns the code carried by err, or Unknown when err has
// not been classified.
func CodeOf(err error) Code {
	var classified *PaymentError
	if As(err, &classified) {
		return classified.Code
	}
	return Unknown
}

// UserMessage returns the display string for err, classifying it
// first if needed. It returns an empty string for a nil error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return Classify(err).UserMessage
}

// IsRecoverable reports whether the UI should offer a retry for err.
// A nil error has nothing to retry and reports false.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Recoverable
}

func messageFor(code Code) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	return userMessages[Unknown]
}
