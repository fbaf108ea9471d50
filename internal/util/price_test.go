package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		tick float64
		want float64
	}{
		{"penny tick", 1.2345, 0.01, 1.23},
		{"rounds up", 1.236, 0.01, 1.24},
		{"nickel tick", 452.37, 0.05, 452.35},
		{"zero tick passthrough", 1.2345, 0, 1.2345},
		{"negative tick passthrough", 1.2345, -0.05, 1.2345},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToTick(tt.x, tt.tick)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RoundToTick(%v, %v) = %v, want %v", tt.x, tt.tick, got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(1.5, 0, 1); got != 1 {
		t.Errorf("Clamp above hi = %v, want 1", got)
	}
	if got := Clamp(-0.5, 0, 1); got != 0 {
		t.Errorf("Clamp below lo = %v, want 0", got)
	}
	if got := Clamp(0.42, 0, 1); got != 0.42 {
		t.Errorf("Clamp in range = %v, want 0.42", got)
	}
}

func TestNormalizeCapped(t *testing.T) {
	if got := NormalizeCapped(2.5, 5); got != 0.5 {
		t.Errorf("mid-range = %v, want 0.5", got)
	}
	if got := NormalizeCapped(7, 5); got != 1 {
		t.Errorf("above cap = %v, want 1", got)
	}
	if got := NormalizeCapped(-1, 5); got != 0 {
		t.Errorf("negative input = %v, want 0", got)
	}
	if got := NormalizeCapped(1, 0); got != 0 {
		t.Errorf("zero cap = %v, want 0", got)
	}
}
