// Package solpay contains the core types and logic of the payment
// request format used by Ember: a Solana Pay style URI of the form
//
//	solana:<address>[?amount=<decimal>][&label=<text>][&memo=<text>][&spl-token=<mint>]
//
// A request is encoded for display as a QR code and decoded from
// scanned input. Decoding is strict about the recipient address and
// lenient about optional parameters: malformed amounts and token
// mints are dropped, unknown keys are ignored.
package solpay

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidScheme  = errors.New("missing payment scheme prefix")
	ErrInvalidAddress = errors.New("invalid recipient address")
	ErrInvalidQuery   = errors.New("malformed query string")
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Config carries the constants the codec and validator depend on.
// It is passed explicitly to constructors so tests can vary policy
// (different bounds, different scheme) without global state.
type Config struct {
	// Scheme is the URI prefix including the colon, e.g. "solana:".
	Scheme string `validate:"required,endswith=:"`
	// TokenParam is the query key carrying a token mint address.
	TokenParam string `validate:"required"`
	// DefaultMint is the asset requested when no token param is present.
	DefaultMint string `validate:"required"`
	// MintDecimals is the decimal precision of DefaultMint.
	MintDecimals uint8 `validate:"lte=18"`
	// MinAmount and MaxAmount bound a payable amount in human units.
	MinAmount float64 `validate:"gt=0"`
	MaxAmount float64 `validate:"gtfield=MinAmount"`
	// MinAddressLen and MaxAddressLen bound the base58 address length.
	MinAddressLen int `validate:"gt=0"`
	MaxAddressLen int `validate:"gtefield=MinAddressLen"`
}

// DefaultConfig returns the production configuration: Solana Pay
// scheme, USDC as the default asset and the app payment bounds.
func DefaultConfig() Config {
	return Config{
		Scheme:        "solana:",
		TokenParam:    "spl-token",
		DefaultMint:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		MintDecimals:  6,
		MinAmount:     0.01,
		MaxAmount:     10000,
		MinAddressLen: 32,
		MaxAddressLen: 44,
	}
}

func (c Config) Validate() error {
	return validate.Struct(c)
}

// Request is a decoded payment request. Address is always a valid
// chain address; every other field is optional. A nil Amount means
// the payer chooses the amount. An empty SplToken means the default
// asset from Config applies.
type Request struct {
	Address  string
	Amount   *float64
	Label    string
	Memo     string
	SplToken string
}

// Validator holds the address and amount validation rules.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}
	return &Validator{cfg: cfg}, nil
}

// ValidateAddress reports whether candidate is a well-formed chain
// address: length within the configured bounds and parseable as a
// base58 public key. It never panics, no matter the input.
func (v *Validator) ValidateAddress(candidate string) bool {
	if len(candidate) < v.cfg.MinAddressLen || len(candidate) > v.cfg.MaxAddressLen {
		return false
	}
	_, err := solana.PublicKeyFromBase58(candidate)
	return err == nil
}

// ValidateAmount reports whether amount is finite and within the
// configured [MinAmount, MaxAmount] bounds.
func (v *Validator) ValidateAmount(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return amount >= v.cfg.MinAmount && amount <= v.cfg.MaxAmount
}

// Codec encodes and decodes payment request URIs.
type Codec struct {
	cfg       Config
	validator *Validator
}

func NewCodec(cfg Config) (*Codec, error) {
	v, err := NewValidator(cfg)
	if err != nil {
		return nil, err
	}
	return &Codec{cfg: cfg, validator: v}, nil
}

// Encode serializes req into its URI form. Optional parameters are
// emitted in the fixed order amount, label, memo, token mint, and
// only when present: a nil, zero or negative amount is omitted, as
// are empty label and memo. The address is the caller's
// responsibility; Encode does not validate it.
func (c *Codec) Encode(req Request) string {
	var b strings.Builder
	b.WriteString(c.cfg.Scheme)
	b.WriteString(req.Address)

	params := make([]string, 0, 4)
	if req.Amount != nil && *req.Amount > 0 && !math.IsInf(*req.Amount, 0) {
		params = append(params, "amount="+strconv.FormatFloat(*req.Amount, 'f', -1, 64))
	}
	if req.Label != "" {
		params = append(params, "label="+escapeParam(req.Label))
	}
	if req.Memo != "" {
		params = append(params, "memo="+escapeParam(req.Memo))
	}
	if req.SplToken != "" {
		params = append(params, c.cfg.TokenParam+"="+req.SplToken)
	}

	if len(params) > 0 {
		b.WriteString("?")
		b.WriteString(strings.Join(params, "&"))
	}
	return b.String()
}

// Decode parses raw into a Request. It returns an error when the
// scheme prefix is missing, the address part is empty or invalid, or
// the query string cannot be parsed. Optional parameters never fail
// the decode: a non-positive or non-numeric amount and an invalid
// token mint are silently dropped, unknown keys are ignored. Decode
// never panics and never returns a partially filled Request.
func (c *Codec) Decode(raw string) (*Request, error) {
	if !strings.HasPrefix(raw, c.cfg.Scheme) {
		return nil, ErrInvalidScheme
	}

	// split on the first '?' only: a second '?' stays part of the query
	addressPart, queryPart, _ := strings.Cut(strings.TrimPrefix(raw, c.cfg.Scheme), "?")
	if addressPart == "" || !c.validator.ValidateAddress(addressPart) {
		return nil, ErrInvalidAddress
	}

	req := Request{Address: addressPart}
	if queryPart == "" {
		return &req, nil
	}

	values, err := url.ParseQuery(queryPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	if amountStr := values.Get("amount"); amountStr != "" {
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err == nil && amount > 0 && !math.IsInf(amount, 0) {
			req.Amount = &amount
		}
	}
	if label := values.Get("label"); label != "" {
		req.Label = label
	}
	if memo := values.Get("memo"); memo != "" {
		req.Memo = memo
	}
	if mint := values.Get(c.cfg.TokenParam); mint != "" && c.validator.ValidateAddress(mint) {
		req.SplToken = mint
	}

	return &req, nil
}

// IsValidPaymentURI reports whether raw carries the scheme prefix and
// decodes into a request whose address passes validation. The address
// is re-checked on top of Decode's own gate so the predicate stays
// safe even if Decode's internal contract changes.
func (c *Codec) IsValidPaymentURI(raw string) bool {
	if !strings.HasPrefix(raw, c.cfg.Scheme) {
		return false
	}
	req, err := c.Decode(raw)
	if err != nil {
		return false
	}
	return c.validator.ValidateAddress(req.Address)
}

// QueryEscape uses + for spaces; payment URIs expect %20.
func escapeParam(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
