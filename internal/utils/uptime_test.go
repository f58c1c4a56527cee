package utils

import (
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0 seconds"},
		{"seconds only", 42 * time.Second, "42 seconds"},
		{"just under a minute", 59 * time.Second, "59 seconds"},
		{"minutes and seconds", 5*time.Minute + 7*time.Second, "5 minutes, 7 seconds"},
		{"exact minute", time.Minute, "1 minutes, 0 seconds"},
		{"hours and minutes", 3*time.Hour + 25*time.Minute + 59*time.Second, "3 hours, 25 minutes"},
		{"exact hour", time.Hour, "1 hours, 0 minutes"},
		{"multi-day", 49*time.Hour + 30*time.Minute, "49 hours, 30 minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatUptime(tt.d); got != tt.want {
				t.Errorf("FormatUptime(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}
