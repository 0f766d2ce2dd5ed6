package core

import (
	"errors"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"12.34", 1234, true},
		{"12,34", 1234, true},
		{"12.345", 1235, true},
		{"12.344", 1234, true},
		{"0.01", 1, true},
		{"300", 30000, true},
		{" 7.5 ", 750, true},
		{"", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseDecimalToCents(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseDecimalToCents(%q) expected ErrInvalidAmount, got %d, %v", tc.in, got, err)
		}
	}
}

func TestMoneyString(t *testing.T) {
	if got := (Money{Cents: 1230}).String(); got != "12.30" {
		t.Fatalf("got %q", got)
	}
	if got := (Money{Cents: -5}).String(); got != "-0.05" {
		t.Fatalf("got %q", got)
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(Money{Cents: 1}, Money{}); got != 0 {
		t.Fatalf("expected 0 without budget, got %v", got)
	}
	if got := Percent(Money{Cents: 2}, Money{Cents: 3}); got != 66.67 {
		t.Fatalf("expected 66.67, got %v", got)
	}
}

func TestParseBudget(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr error
	}{
		{"0", 0, nil},
		{"0.00", 0, nil},
		{"400", 40000, nil},
		{"12,345", 1235, nil},
		{"-1", 0, ErrNegativeBudget},
		{"lots", 0, ErrInvalidAmount},
		{"", 0, ErrInvalidAmount},
	}
	for _, tc := range cases {
		got, err := ParseBudget(tc.in)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ParseBudget(%q) error = %v, want %v", tc.in, err, tc.wantErr)
			}
			continue
		}
		if err != nil || got.Cents != tc.want {
			t.Fatalf("ParseBudget(%q) = %d, %v; want %d", tc.in, got.Cents, err, tc.want)
		}
	}
}
