package rank

import "math"

// document is one candidate prepared for scoring.
type document struct {
	text     string
	termFreq map[string]int
	length   int
}

// index holds per-candidate term statistics for one scoring pass. It is
// built per request over the filtered candidate set, so document
// frequencies reflect the candidates actually in play.
type index struct {
	docs    []document
	docFreq map[string]int
	avgLen  float64
}

// buildIndex tokenizes the weighted blob of every candidate and collects
// term and document frequencies.
func buildIndex(texts []string) *index {
	ix := &index{
		docs:    make([]document, len(texts)),
		docFreq: make(map[string]int),
	}

	totalLen := 0
	for i, text := range texts {
		tokens := Tokenize(text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			ix.docFreq[term]++
		}
		ix.docs[i] = document{text: text, termFreq: tf, length: len(tokens)}
		totalLen += len(tokens)
	}
	if len(texts) > 0 {
		ix.avgLen = float64(totalLen) / float64(len(texts))
	}
	return ix
}

// idf computes the clamped inverse document frequency for term:
//
//	idf(t) = max(0, log((N - df + 0.5) / (df + 0.5) + 1))
//
// The clamp keeps terms present in most documents from contributing
// negative scores.
func (ix *index) idf(term string) float64 {
	n := float64(len(ix.docs))
	df := float64(ix.docFreq[term])
	v := math.Log((n-df+0.5)/(df+0.5) + 1)
	if v < 0 {
		return 0
	}
	return v
}

// score computes the BM25 sum for document i over the query terms:
//
//	Σ idf(t) × tf × (k1 + 1) / (tf + k1 × (1 - b + b × len/avgLen))
func (ix *index) score(i int, queryTerms []string, k1, b float64) float64 {
	doc := &ix.docs[i]
	if doc.length == 0 || len(queryTerms) == 0 {
		return 0
	}

	lenNorm := 1.0
	if ix.avgLen > 0 {
		lenNorm = 1 - b + b*float64(doc.length)/ix.avgLen
	}

	var sum float64
	for _, term := range queryTerms {
		tf := float64(doc.termFreq[term])
		if tf == 0 {
			continue
		}
		sum += ix.idf(term) * tf * (k1 + 1) / (tf + k1*lenNorm)
	}
	return sum
}
