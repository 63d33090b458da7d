package core

import (
	"errors"
	"testing"
)

func TestParseSum(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCents int64
		wantErr   bool
	}{
		{name: "plain integer", input: "1000", wantCents: 100000},
		{name: "two decimals", input: "12.34", wantCents: 1234},
		{name: "comma separator", input: "12,34", wantCents: 1234},
		{name: "one decimal", input: "7.5", wantCents: 750},
		{name: "leading whitespace", input: " 3.00", wantCents: 300},
		{name: "zero rejected", input: "0", wantErr: true},
		{name: "zero with decimals rejected", input: "0.00", wantErr: true},
		{name: "negative rejected", input: "-5.00", wantErr: true},
		{name: "three decimals rejected", input: "1.234", wantErr: true},
		{name: "empty rejected", input: "", wantErr: true},
		{name: "garbage rejected", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseSum(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSum(%q) = %v, want error", tt.input, m)
				}
				if !errors.Is(err, ErrValidation) {
					t.Errorf("ParseSum(%q) error = %v, want ErrValidation", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSum(%q): %v", tt.input, err)
			}
			if m.Cents != tt.wantCents {
				t.Errorf("ParseSum(%q) = %d cents, want %d", tt.input, m.Cents, tt.wantCents)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{70000, "700.00"},
		{1234, "12.34"},
		{5, "0.05"},
		{-30000, "-300.00"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).String(); got != tt.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
