package pool

import (
	"sort"
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/rank"
)

// keywordOverlap ranks candidates by how many distinct query tokens
// appear in a flat text bag of their profile and returns the top n with
// at least one hit. Ties keep corpus order.
func keywordOverlap(candidates []*corpus.Practitioner, query string, n int) []*corpus.Practitioner {
	terms := dedupeTokens(rank.Tokenize(query))
	if len(terms) == 0 || n <= 0 {
		return nil
	}

	type overlap struct {
		p     *corpus.Practitioner
		count int
	}
	hits := make([]overlap, 0, len(candidates))
	for _, p := range candidates {
		bag := textBag(p)
		count := 0
		for _, t := range terms {
			if bag[t] {
				count++
			}
		}
		if count > 0 {
			hits = append(hits, overlap{p: p, count: count})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].count > hits[j].count
	})
	if len(hits) > n {
		hits = hits[:n]
	}

	out := make([]*corpus.Practitioner, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out
}

// textBag tokenizes the profile fields a patient's words could plausibly
// hit. Unlike Stage A's weighted blob, every field counts once.
func textBag(p *corpus.Practitioner) map[string]bool {
	var b strings.Builder
	join := func(s string) {
		if s != "" {
			b.WriteString(s)
			b.WriteByte(' ')
		}
	}
	join(p.Name)
	join(p.Specialty)
	join(p.SpecialtyDescription)
	for _, s := range p.Subspecialties {
		join(s)
	}
	for _, g := range p.ProcedureGroups {
		join(g.Name)
	}
	join(p.ClinicalExpertise)
	join(p.Description)

	bag := make(map[string]bool)
	for _, t := range rank.Tokenize(b.String()) {
		bag[t] = true
	}
	return bag
}

func dedupeTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
