package wallet

import (
	"math"
	"testing"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		amount   float64
		decimals uint8
		expected uint64
	}{
		{1, 6, 1000000},
		{0.01, 6, 10000},
		{12.34, 6, 12340000},
		{123.456789, 6, 123456789},
		{0.1, 9, 100000000},
		{10000, 6, 10000000000},
		{0, 6, 0},
		{1, 0, 1},
		// below one base unit, rounds to nearest
		{0.0000001, 6, 0},
		{0.0000009, 6, 1},
	}

	for _, test := range tests {
		base, err := ToBaseUnits(test.amount, test.decimals)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if base != test.expected {
			t.Errorf("ToBaseUnits(%v, %d): expected '%v' but got '%v' instead", test.amount, test.decimals, test.expected, base)
		}
	}
}

func TestToBaseUnitsErrors(t *testing.T) {
	tests := []struct {
		amount   float64
		decimals uint8
	}{
		{-1, 6},
		{math.NaN(), 6},
		{math.Inf(1), 6},
		{math.Inf(-1), 6},
		// overflows uint64
		{1e19, 6},
		{1e30, 0},
	}

	for _, test := range tests {
		if _, err := ToBaseUnits(test.amount, test.decimals); err == nil {
			t.Errorf("expected error for ToBaseUnits(%v, %d) but got nil", test.amount, test.decimals)
		}
	}
}

func TestFromBaseUnits(t *testing.T) {
	tests := []struct {
		base     uint64
		decimals uint8
		expected float64
	}{
		{1000000, 6, 1},
		{12340000, 6, 12.34},
		{10000, 6, 0.01},
		{1, 9, 1e-9},
		{0, 6, 0},
		{5, 0, 5},
	}

	for _, test := range tests {
		amount := FromBaseUnits(test.base, test.decimals)
		if amount != test.expected {
			t.Errorf("FromBaseUnits(%d, %d): expected '%v' but got '%v' instead", test.base, test.decimals, test.expected, amount)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		base     uint64
		decimals uint8
		expected string
	}{
		{12340000, 6, "12.34"},
		{1000000, 6, "1"},
		{1, 6, "0.000001"},
		{0, 6, "0"},
		{1500000000, 9, "1.5"},
		{42, 0, "42"},
	}

	for _, test := range tests {
		formatted := FormatAmount(test.base, test.decimals)
		if formatted != test.expected {
			t.Errorf("FormatAmount(%d, %d): expected '%v' but got '%v' instead", test.base, test.decimals, test.expected, formatted)
		}
	}
}
