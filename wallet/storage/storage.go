package storage

import "time"

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusConfirmed PaymentStatus = "confirmed"
	StatusFailed    PaymentStatus = "failed"
)

// Session is the persisted link to the wallet service. A wallet with
// no session, or an expired one, must authenticate before paying.
type Session struct {
	Address   string `json:"address"`
	Token     string `json:"token"`
	Network   string `json:"network"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s Session) Expired() bool {
	return time.Now().Unix() >= s.ExpiresAt
}

// Payment is a submitted transaction as kept in local history. Amount
// is in base units of Mint with the recorded decimal precision.
type Payment struct {
	Signature string        `json:"signature"`
	Recipient string        `json:"recipient"`
	Amount    uint64        `json:"amount"`
	Decimals  uint8         `json:"decimals"`
	Mint      string        `json:"mint"`
	Label     string        `json:"label,omitempty"`
	Memo      string        `json:"memo,omitempty"`
	Network   string        `json:"network"`
	Status    PaymentStatus `json:"status"`
	CreatedAt int64         `json:"created_at"`
}

type WalletDB interface {
	SaveSession(Session) error
	GetSession() *Session
	DeleteSession() error

	SavePayment(Payment) error
	GetPayments() []Payment
	GetPaymentBySignature(string) *Payment
	UpdatePaymentStatus(signature string, status PaymentStatus) error

	Close() error
}
