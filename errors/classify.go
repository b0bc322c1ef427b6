package errors

import "strings"

// classificationRule maps message substrings onto a code. Rules are
// checked in order and the first hit wins, so broad keywords like
// "balance" must come before narrower ones they would shadow.
type classificationRule struct {
	code     Code
	keywords []string
}

var classificationRules = []classificationRule{
	{InsufficientBalance, []string{"insufficient", "not enough", "balance"}},
	{NetworkError, []string{"network", "timeout", "connection"}},
	{UserCancelled, []string{"cancel", "abort", "user rejected"}},
	{InvalidRecipient, []string{"offcurve", "off curve", "tokenowneroffcurve"}},
}

// Classify turns an arbitrary failure into a *PaymentError. An error
// that already carries a PaymentError anywhere in its chain is
// returned as-is, making Classify idempotent. Anything else is
// matched case-insensitively against the rule table on its message
// text; no match falls back to Unknown. Classify never panics and
// returns nil only for a nil input.
func Classify(err error) *PaymentError {
	if err == nil {
		return nil
	}

	var classified *PaymentError
	if As(err, &classified) {
		return classified
	}

	message := strings.ToLower(err.Error())
	for _, rule := range classificationRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(message, keyword) {
				return Wrap(rule.code, err)
			}
		}
	}
	// the recipient rule needs both words, so it cannot live in the
	// keyword table
	if strings.Contains(message, "invalid") && strings.Contains(message, "address") {
		return Wrap(InvalidRecipient, err)
	}

	return Wrap(Unknown, err)
}
