package pool

import (
	"math/rand"

	"github.com/caresearch/medrank/internal/corpus"
)

// sample draws up to k practitioners from eligible without replacement,
// in draw order.
func sample(rng *rand.Rand, eligible []*corpus.Practitioner, k int) []*corpus.Practitioner {
	if k > len(eligible) {
		k = len(eligible)
	}
	if k <= 0 {
		return nil
	}
	out := make([]*corpus.Practitioner, 0, k)
	for _, idx := range rng.Perm(len(eligible))[:k] {
		out = append(out, eligible[idx])
	}
	return out
}

// excludeIDs returns the candidates whose id is not in exclude,
// preserving order.
func excludeIDs(candidates []*corpus.Practitioner, exclude map[string]bool) []*corpus.Practitioner {
	out := make([]*corpus.Practitioner, 0, len(candidates))
	for _, p := range candidates {
		if !exclude[p.ID] {
			out = append(out, p)
		}
	}
	return out
}
