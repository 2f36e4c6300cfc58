package spectrum

// Smoother applies temporal exponential smoothing over successive
// scaled frames. The previous-frame array doubles as the smoothing
// memory: it is mutated in place and reallocated only when the target
// length changes. Not safe for concurrent use; the pipeline serializes
// access.
type Smoother struct {
	factor float64
	prev   []float64
}

func NewSmoother(factor float64) *Smoother {
	return &Smoother{factor: clamp01(factor)}
}

// SetFactor updates the smoothing factor, clamped to [0,1].
func (s *Smoother) SetFactor(factor float64) {
	s.factor = clamp01(factor)
}

func (s *Smoother) Factor() float64 {
	return s.factor
}

// Apply blends scaled into the smoothing memory and returns the
// memory itself. A length change drops the old memory and restarts
// from zeros.
func (s *Smoother) Apply(scaled []float64) []float64 {
	if len(s.prev) != len(scaled) {
		s.prev = make([]float64, len(scaled))
	}
	f := s.factor
	for i, v := range scaled {
		s.prev[i] = s.prev[i]*(1-f) + v*f
	}
	return s.prev
}

// Reset drops the smoothing memory so a fresh capture does not blend
// against stale energy.
func (s *Smoother) Reset() {
	s.prev = nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
