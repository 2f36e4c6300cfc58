package spectrum

import (
	"math"
	"testing"
)

func TestSmootherFactorOneReturnsInput(t *testing.T) {
	s := NewSmoother(1)
	in := []float64{0.1, 0.5, 0.9}
	got := s.Apply(in)
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("element %d: expected %f, got %f", i, in[i], got[i])
		}
	}
}

func TestSmootherFactorZeroFreezesMemory(t *testing.T) {
	s := NewSmoother(0)
	first := s.Apply([]float64{0.4, 0.8})

	snapshot := make([]float64, len(first))
	copy(snapshot, first)

	// With factor 0 the memory never moves, so repeated calls return
	// identical values.
	for i := 0; i < 5; i++ {
		got := s.Apply([]float64{0.9, 0.1})
		for j := range got {
			if got[j] != snapshot[j] {
				t.Fatalf("call %d element %d: expected %f, got %f",
					i, j, snapshot[j], got[j])
			}
		}
	}
}

func TestSmootherConvergesMonotonically(t *testing.T) {
	for _, factor := range []float64{0.1, 0.3, 0.5, 1.0} {
		s := NewSmoother(factor)
		target := []float64{1.0, 0.25}

		prevDist := math.Inf(1)
		var last []float64
		for i := 0; i < 50; i++ {
			out := s.Apply(target)
			var dist float64
			for j := range out {
				dist += math.Abs(out[j] - target[j])
			}
			if dist > prevDist+1e-12 {
				t.Fatalf("factor %f iteration %d: distance grew from %g to %g",
					factor, i, prevDist, dist)
			}
			prevDist = dist
			last = out
		}

		for j := range last {
			if math.Abs(last[j]-target[j]) > 0.01 && factor > 0.05 {
				t.Fatalf("factor %f: element %d did not converge, got %f want %f",
					factor, j, last[j], target[j])
			}
		}
	}
}

func TestSmootherReallocatesOnLengthChange(t *testing.T) {
	s := NewSmoother(0.5)
	s.Apply([]float64{1, 1, 1, 1})

	got := s.Apply([]float64{1, 1})
	if len(got) != 2 {
		t.Fatalf("expected length 2 after target change, got %d", len(got))
	}
	// Fresh memory starts from zeros, so the first blended value is
	// scaled*factor.
	for i, v := range got {
		if math.Abs(v-0.5) > 1e-9 {
			t.Fatalf("element %d: expected 0.5 from zeroed memory, got %f", i, v)
		}
	}
}

func TestSmootherMutatesInPlace(t *testing.T) {
	s := NewSmoother(0.5)
	a := s.Apply([]float64{1, 1})
	b := s.Apply([]float64{1, 1})
	if &a[0] != &b[0] {
		t.Fatal("expected the smoothing memory to be reused between calls")
	}
}

func TestSmootherFactorClamped(t *testing.T) {
	s := NewSmoother(2.5)
	if s.Factor() != 1 {
		t.Fatalf("expected factor clamped to 1, got %f", s.Factor())
	}
	s.SetFactor(-1)
	if s.Factor() != 0 {
		t.Fatalf("expected factor clamped to 0, got %f", s.Factor())
	}
}

func TestSmootherReset(t *testing.T) {
	s := NewSmoother(0.5)
	s.Apply([]float64{1, 1})
	s.Reset()

	got := s.Apply([]float64{1, 1})
	for i, v := range got {
		if math.Abs(v-0.5) > 1e-9 {
			t.Fatalf("element %d: expected reset memory, got %f", i, v)
		}
	}
}
