package spectrum

import (
	"math"
	"testing"
)

func TestScaleBlockAveraging(t *testing.T) {
	// 1024 magnitudes into 64 bars: each bar is the mean of its
	// 16-element block.
	raw := make([]float64, 1024)
	for i := range raw {
		raw[i] = float64(i)
	}

	got := Scale(raw, 64)
	if len(got) != 64 {
		t.Fatalf("expected 64 bars, got %d", len(got))
	}

	for i := range got {
		start := i * 16
		var sum float64
		for j := start; j < start+16; j++ {
			sum += raw[j]
		}
		want := sum / 16
		if math.Abs(got[i]-want) > 1e-9 {
			t.Fatalf("bar %d: expected %f, got %f", i, want, got[i])
		}
	}
}

func TestScaleOutputLength(t *testing.T) {
	for _, rawLen := range []int{1, 3, 64, 100, 1024, 4096} {
		raw := make([]float64, rawLen)
		for _, bars := range []int{1, 2, 7, 64, 200} {
			if got := Scale(raw, bars); len(got) != bars {
				t.Fatalf("raw %d bars %d: expected length %d, got %d",
					rawLen, bars, bars, len(got))
			}
		}
	}
}

func TestScaleMoreBarsThanInput(t *testing.T) {
	raw := []float64{1, 2, 3, 4}
	got := Scale(raw, 8)
	if len(got) != 8 {
		t.Fatalf("expected 8 bars, got %d", len(got))
	}
	// The first len(raw) bars map one to one.
	for i := 0; i < 4; i++ {
		if got[i] != raw[i] {
			t.Fatalf("bar %d: expected %f, got %f", i, raw[i], got[i])
		}
	}
	// Bars whose block starts past the input stay zero.
	for i := 4; i < 8; i++ {
		if got[i] != 0 {
			t.Fatalf("bar %d: expected 0 beyond input, got %f", i, got[i])
		}
	}
}

func TestScaleEmptyInput(t *testing.T) {
	got := Scale(nil, 16)
	if len(got) != 16 {
		t.Fatalf("expected 16 bars, got %d", len(got))
	}
	for i, v := range got {
		if v != 0 {
			t.Fatalf("bar %d: expected 0, got %f", i, v)
		}
	}
}

func TestScaleInvalidBarCount(t *testing.T) {
	if got := Scale([]float64{1, 2}, 0); got != nil {
		t.Fatalf("expected nil for zero bars, got %v", got)
	}
	if got := Scale([]float64{1, 2}, -3); got != nil {
		t.Fatalf("expected nil for negative bars, got %v", got)
	}
}

func TestScaleSingleBar(t *testing.T) {
	raw := []float64{1, 2, 3, 4, 5}
	got := Scale(raw, 1)
	if math.Abs(got[0]-3) > 1e-9 {
		t.Fatalf("expected overall mean 3, got %f", got[0])
	}
}
