package solpay

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

const (
	testRecipient = "Vote111111111111111111111111111111111111111"
	testMint      = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func amountPtr(f float64) *float64 {
	return &f
}

func testCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(DefaultConfig())
	if err != nil {
		t.Fatalf("error creating codec: %v", err)
	}
	return codec
}

func TestEncode(t *testing.T) {
	codec := testCodec(t)

	tests := []struct {
		name     string
		request  Request
		expected string
	}{
		{
			name:     "address only",
			request:  Request{Address: testRecipient},
			expected: "solana:" + testRecipient,
		},
		{
			name:     "amount only",
			request:  Request{Address: testRecipient, Amount: amountPtr(12.5)},
			expected: "solana:" + testRecipient + "?amount=12.5",
		},
		{
			name: "all params in fixed order",
			request: Request{
				Address:  testRecipient,
				Amount:   amountPtr(0.01),
				Label:    "Coffee Shop",
				Memo:     "table 9",
				SplToken: testMint,
			},
			expected: "solana:" + testRecipient + "?amount=0.01&label=Coffee%20Shop&memo=table%209&spl-token=" + testMint,
		},
		{
			name:     "nil amount omitted",
			request:  Request{Address: testRecipient, Label: "tip jar"},
			expected: "solana:" + testRecipient + "?label=tip%20jar",
		},
		{
			name:     "zero amount omitted",
			request:  Request{Address: testRecipient, Amount: amountPtr(0), Memo: "x"},
			expected: "solana:" + testRecipient + "?memo=x",
		},
		{
			name:     "negative amount omitted",
			request:  Request{Address: testRecipient, Amount: amountPtr(-5)},
			expected: "solana:" + testRecipient,
		},
		{
			name:     "reserved characters escaped",
			request:  Request{Address: testRecipient, Label: "a&b=c"},
			expected: "solana:" + testRecipient + "?label=a%26b%3Dc",
		},
		{
			name:     "unicode label escaped",
			request:  Request{Address: testRecipient, Label: "café"},
			expected: "solana:" + testRecipient + "?label=caf%C3%A9",
		},
		{
			name:     "whole amount has no trailing zeros",
			request:  Request{Address: testRecipient, Amount: amountPtr(10000)},
			expected: "solana:" + testRecipient + "?amount=10000",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			uri := codec.Encode(test.request)
			if uri != test.expected {
				t.Errorf("expected uri '%v' but got '%v' instead", test.expected, uri)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	codec := testCodec(t)

	tests := []struct {
		name     string
		uri      string
		expected Request
	}{
		{
			name:     "address only",
			uri:      "solana:" + testRecipient,
			expected: Request{Address: testRecipient},
		},
		{
			name: "all params",
			uri:  "solana:" + testRecipient + "?amount=12.5&label=Coffee%20Shop&memo=order%2042&spl-token=" + testMint,
			expected: Request{
				Address:  testRecipient,
				Amount:   amountPtr(12.5),
				Label:    "Coffee Shop",
				Memo:     "order 42",
				SplToken: testMint,
			},
		},
		{
			name: "params in any order",
			uri:  "solana:" + testRecipient + "?memo=m&spl-token=" + testMint + "&amount=5&label=l",
			expected: Request{
				Address:  testRecipient,
				Amount:   amountPtr(5),
				Label:    "l",
				Memo:     "m",
				SplToken: testMint,
			},
		},
		{
			name:     "non numeric amount dropped",
			uri:      "solana:" + testRecipient + "?amount=abc&label=ok",
			expected: Request{Address: testRecipient, Label: "ok"},
		},
		{
			name:     "zero amount dropped",
			uri:      "solana:" + testRecipient + "?amount=0",
			expected: Request{Address: testRecipient},
		},
		{
			name:     "negative amount dropped",
			uri:      "solana:" + testRecipient + "?amount=-5&memo=m",
			expected: Request{Address: testRecipient, Memo: "m"},
		},
		{
			name:     "invalid token mint dropped",
			uri:      "solana:" + testRecipient + "?amount=1&spl-token=notamint",
			expected: Request{Address: testRecipient, Amount: amountPtr(1)},
		},
		{
			name:     "unknown params ignored",
			uri:      "solana:" + testRecipient + "?reference=abc&foo=bar",
			expected: Request{Address: testRecipient},
		},
		{
			name:     "repeated key takes first value",
			uri:      "solana:" + testRecipient + "?amount=5&amount=9",
			expected: Request{Address: testRecipient, Amount: amountPtr(5)},
		},
		{
			name:     "second question mark stays in the query",
			uri:      "solana:" + testRecipient + "?label=a?b",
			expected: Request{Address: testRecipient, Label: "a?b"},
		},
		{
			name:     "scientific notation amount",
			uri:      "solana:" + testRecipient + "?amount=5e-3",
			expected: Request{Address: testRecipient, Amount: amountPtr(0.005)},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			request, err := codec.Decode(test.uri)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(*request, test.expected) {
				t.Errorf("expected request '%+v' but got '%+v' instead", test.expected, *request)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	codec := testCodec(t)

	tests := []struct {
		name        string
		uri         string
		expectedErr error
	}{
		{"empty string", "", ErrInvalidScheme},
		{"missing scheme", testRecipient, ErrInvalidScheme},
		{"wrong scheme", "bitcoin:" + testRecipient, ErrInvalidScheme},
		{"scheme only", "solana:", ErrInvalidAddress},
		{"empty address with query", "solana:?amount=5", ErrInvalidAddress},
		{"address too short", "solana:abc", ErrInvalidAddress},
		{"address too long", "solana:" + strings.Repeat("1", 45), ErrInvalidAddress},
		{"address not base58", "solana:" + strings.Repeat("0", 40), ErrInvalidAddress},
		{"address wrong key length", "solana:" + strings.Repeat("1", 44), ErrInvalidAddress},
		{"malformed query escape", "solana:" + testRecipient + "?label=%zz", ErrInvalidQuery},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			request, err := codec.Decode(test.uri)
			if !errors.Is(err, test.expectedErr) {
				t.Errorf("expected error '%v' but got '%v' instead", test.expectedErr, err)
			}
			if request != nil {
				t.Errorf("expected nil request on error but got '%+v'", *request)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	codec := testCodec(t)

	requests := []Request{
		{Address: testRecipient},
		{Address: testRecipient, Amount: amountPtr(12.5)},
		{
			Address:  testRecipient,
			Amount:   amountPtr(0.01),
			Label:    "Coffee Shop ☕",
			Memo:     "order #42 & tip",
			SplToken: testMint,
		},
		{Address: "11111111111111111111111111111111", Memo: "min length address"},
	}

	for _, request := range requests {
		decoded, err := codec.Decode(codec.Encode(request))
		if err != nil {
			t.Fatalf("error decoding encoded request: %v", err)
		}
		if !reflect.DeepEqual(*decoded, request) {
			t.Errorf("expected request '%+v' but got '%+v' instead", request, *decoded)
		}
	}
}

func TestDecodeNeverPanics(t *testing.T) {
	codec := testCodec(t)

	inputs := []string{
		"",
		"solana:",
		"solana:?",
		"solana:?amount=1",
		"solana:%",
		"solana:%zz",
		"solana:" + testRecipient + "?%zz=1",
		"solana:" + testRecipient + "?amount=%zz",
		"solana:" + testRecipient + "?amount=1e999",
		"solana:" + testRecipient + "?" + strings.Repeat("&", 1000),
		"solana:" + strings.Repeat("a", 10000),
		"solana:\x00\xff\xfe",
		strings.Repeat("?", 500),
	}

	for _, input := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("panic on input %q: %v", input, r)
				}
			}()
			codec.Decode(input)
			codec.IsValidPaymentURI(input)
		}()
	}
}

func TestIsValidPaymentURI(t *testing.T) {
	codec := testCodec(t)

	tests := []struct {
		uri      string
		expected bool
	}{
		{"solana:" + testRecipient, true},
		{"solana:" + testRecipient + "?amount=5&label=x", true},
		{"solana:" + testMint, true},
		{"", false},
		{testRecipient, false},
		{"http://example.com", false},
		{"solana:abc", false},
		{"solana:" + testRecipient + "?label=%zz", false},
	}

	for _, test := range tests {
		valid := codec.IsValidPaymentURI(test.uri)
		if valid != test.expected {
			t.Errorf("expected '%v' for uri '%v' but got '%v' instead", test.expected, test.uri, valid)
		}
	}
}

func TestValidateAddress(t *testing.T) {
	validator, err := NewValidator(DefaultConfig())
	if err != nil {
		t.Fatalf("error creating validator: %v", err)
	}

	tests := []struct {
		name     string
		address  string
		expected bool
	}{
		{"system program min length", "11111111111111111111111111111111", true},
		{"usdc mint max length", testMint, true},
		{"vote program", testRecipient, true},
		{"wrapped sol mint", "So11111111111111111111111111111111111111112", true},
		{"empty", "", false},
		{"too short", strings.Repeat("1", 31), false},
		{"too long", strings.Repeat("1", 45), false},
		{"not base58", strings.Repeat("0", 40), false},
		{"base58 but not 32 bytes", strings.Repeat("1", 44), false},
		{"whitespace", "   " + testRecipient, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			valid := validator.ValidateAddress(test.address)
			if valid != test.expected {
				t.Errorf("expected '%v' but got '%v' instead", test.expected, valid)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	validator, err := NewValidator(DefaultConfig())
	if err != nil {
		t.Fatalf("error creating validator: %v", err)
	}

	tests := []struct {
		amount   float64
		expected bool
	}{
		{0.01, true},
		{1, true},
		{9999.99, true},
		{10000, true},
		{0.009, false},
		{10000.01, false},
		{0, false},
		{-1, false},
		{math.NaN(), false},
		{math.Inf(1), false},
		{math.Inf(-1), false},
	}

	for _, test := range tests {
		valid := validator.ValidateAmount(test.amount)
		if valid != test.expected {
			t.Errorf("expected '%v' for amount '%v' but got '%v' instead", test.expected, test.amount, valid)
		}
	}
}

func TestParseAmountInput(t *testing.T) {
	tests := []struct {
		input       string
		expected    float64
		expectedErr error
	}{
		{"12.5", 12.5, nil},
		{"  3 ", 3, nil},
		{"0", 0, nil},
		{"0.009", 0.009, nil},
		{".5", 0.5, nil},
		{"12.", 12, nil},
		{"+2", 2, nil},
		{"1e2", 100, nil},
		{"12.5abc", 12.5, nil},
		{"7 dollars", 7, nil},
		{"", 0, ErrAmountEmpty},
		{"   ", 0, ErrAmountEmpty},
		{"abc", 0, ErrAmountNotNumeric},
		{"$5", 0, ErrAmountNotNumeric},
		{"-", 0, ErrAmountNotNumeric},
		{"-5", 0, ErrAmountNegative},
		{"-0.01", 0, ErrAmountNegative},
	}

	for _, test := range tests {
		amount, err := ParseAmountInput(test.input)
		if !errors.Is(err, test.expectedErr) {
			t.Errorf("expected error '%v' for input '%v' but got '%v' instead", test.expectedErr, test.input, err)
		}
		if amount != test.expected {
			t.Errorf("expected amount '%v' for input '%v' but got '%v' instead", test.expected, test.input, amount)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{"default config", func(c *Config) {}, false},
		{"missing scheme", func(c *Config) { c.Scheme = "" }, true},
		{"scheme without colon", func(c *Config) { c.Scheme = "solana" }, true},
		{"missing token param", func(c *Config) { c.TokenParam = "" }, true},
		{"missing default mint", func(c *Config) { c.DefaultMint = "" }, true},
		{"zero min amount", func(c *Config) { c.MinAmount = 0 }, true},
		{"max below min amount", func(c *Config) { c.MaxAmount = 0.001 }, true},
		{"zero min address length", func(c *Config) { c.MinAddressLen = 0 }, true},
		{"max below min address length", func(c *Config) { c.MaxAddressLen = 10 }, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(&cfg)
			_, err := NewCodec(cfg)
			if test.expectErr && err == nil {
				t.Errorf("expected error but got nil")
			}
			if !test.expectErr && err != nil {
				t.Errorf("expected no error but got '%v'", err)
			}
		})
	}
}
