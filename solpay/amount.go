package solpay

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrAmountEmpty      = errors.New("amount is empty")
	ErrAmountNotNumeric = errors.New("amount is not a number")
	ErrAmountNegative   = errors.New("amount cannot be negative")
)

// numericPrefix matches the leading numeric portion of a string the
// way a permissive text field parser would: optional sign, decimal
// digits with an optional fraction, optional exponent. Trailing
// garbage after the match is tolerated.
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// ParseAmountInput converts free-form text from an amount entry field
// into a float. It trims whitespace, parses the leading numeric
// portion ("12.5abc" yields 12.5) and rejects empty input, input with
// no leading number and negative values. Zero is accepted; range
// bounds are the validator's concern, not the parser's.
func ParseAmountInput(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, ErrAmountEmpty
	}

	numeric := numericPrefix.FindString(trimmed)
	if numeric == "" {
		return 0, ErrAmountNotNumeric
	}
	amount, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, ErrAmountNotNumeric
	}
	if amount < 0 {
		return 0, ErrAmountNegative
	}
	return amount, nil
}
