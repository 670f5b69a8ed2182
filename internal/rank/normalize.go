package rank

// minMaxNormalize rescales values to [0,1] across the candidate set. A
// constant vector normalizes to all ones so a uniform signal neither
// rewards nor penalizes anyone. Applying the function twice yields the
// same vector.
func minMaxNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(values))
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}

	span := max - min
	for i, v := range values {
		out[i] = (v - min) / span
	}
	return out
}
