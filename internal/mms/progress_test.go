package mms

import "testing"

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name     string
		consumed int64
		total    int64
		want     int32
		wantOK   bool
	}{
		{"unknown total", 5, unknownCount, 0, false},
		{"zero total", 5, 0, 0, false},
		{"nothing yet", 0, 10, 0, true},
		{"floor", 1, 3, 33, true},
		{"two thirds", 2, 3, 66, true},
		{"forty two", 42, 100, 42, true},
		{"complete", 10, 10, 100, true},
		{"overshoot clamps", 12, 10, 100, true},
		{"large counts", 1 << 40, 1 << 41, 50, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := computeProgress(tt.consumed, tt.total)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("computeProgress(%d, %d) = (%d, %t), want (%d, %t)",
					tt.consumed, tt.total, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
