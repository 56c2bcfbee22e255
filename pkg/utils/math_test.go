package utils

import "testing"

func TestClamp(t *testing.T) {
	tests := []struct{ v, lo, hi, want float64 }{
		{0.1, 0.25, 4, 0.25},
		{5, 0.25, 4, 4},
		{1.5, 0.25, 4, 1.5},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
	if ClampInt(0, 1, 9) != 1 || ClampInt(12, 1, 9) != 9 || ClampInt(4, 1, 9) != 4 {
		t.Error("ClampInt")
	}
}

func TestSnap(t *testing.T) {
	if got := Snap(1.3, 0.25); got != 1.25 {
		t.Errorf("Snap(1.3) = %v", got)
	}
	if got := Snap(1.4, 0.25); got != 1.5 {
		t.Errorf("Snap(1.4) = %v", got)
	}
	if got := Snap(1.3, 0); got != 1.3 {
		t.Errorf("Snap with zero step = %v", got)
	}
}

func TestMod(t *testing.T) {
	if Mod(-1, 3) != 2 || Mod(3, 3) != 0 || Mod(4, 3) != 1 || Mod(1, 0) != 0 {
		t.Error("Mod")
	}
}
