package spectrum

// Scale downsamples raw magnitudes into bars contiguous blocks by
// arithmetic mean. Block boundaries use the float ratio len(raw)/bars,
// min-clamped to one element, truncated to indices. When bars exceeds
// the input length the first len(raw) bars map one to one and the rest
// stay zero.
func Scale(raw []float64, bars int) []float64 {
	if bars <= 0 {
		return nil
	}
	out := make([]float64, bars)
	if len(raw) == 0 {
		return out
	}

	block := float64(len(raw)) / float64(bars)
	if block < 1 {
		block = 1
	}
	for i := range out {
		start := int(float64(i) * block)
		if start >= len(raw) {
			break
		}
		end := int(float64(i+1) * block)
		if end <= start {
			end = start + 1
		}
		if end > len(raw) {
			end = len(raw)
		}

		var sum float64
		for _, v := range raw[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}
