package store

import "testing"

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{100, 100},
		{100.006, 100.01},
		{100.001, 100.0},
		{0.1 + 0.2, 0.3},
		{-5.556, -5.56},
	}

	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v)=%v, expected %v", tt.in, got, tt.want)
		}
	}
}
