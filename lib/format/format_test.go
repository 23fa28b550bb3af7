package format

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestUSD(t *testing.T) {
	tests := []struct {
		name  string
		price string
		want  string
	}{
		{"large price keeps two decimals and separators", "96450", "96,450.00"},
		{"mid price keeps two decimals", "106.5", "106.50"},
		{"ladder boundary", "1.2", "1.20"},
		{"sub-dollar price gets six decimals", "0.25", "0.250000"},
		{"dust price gets eight decimals", "0.0000042", "0.00000420"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := USD(decimal.RequireFromString(tt.price))
			if got != tt.want {
				t.Errorf("USD(%s) = %q, want %q", tt.price, got, tt.want)
			}
		})
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		change string
		want   string
	}{
		{"5.23", "5.23"},
		{"-6", "6.00"},
		{"0.055", "0.06"},
		{"1000", "1000.00"},
	}

	for _, tt := range tests {
		got := Percent(decimal.RequireFromString(tt.change))
		if got != tt.want {
			t.Errorf("Percent(%s) = %q, want %q", tt.change, got, tt.want)
		}
	}
}

func TestRelTime(t *testing.T) {
	if got := RelTime(time.Time{}); got != "never" {
		t.Errorf("RelTime(zero) = %q, want %q", got, "never")
	}
	if got := RelTime(time.Now().Add(-3 * time.Minute)); got == "never" || got == "" {
		t.Errorf("RelTime(recent) = %q, want a relative phrase", got)
	}
}
