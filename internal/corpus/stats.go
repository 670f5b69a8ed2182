package corpus

import "sort"

// Stats summarizes a corpus snapshot for status surfaces.
type Stats struct {
	Total               int      `json:"total"`
	Verified            int      `json:"verified"`
	Blacklisted         int      `json:"blacklisted"`
	WithNHS             int      `json:"with_nhs"`
	WithProcedures      int      `json:"with_procedures"`
	StructuredExpertise int      `json:"structured_expertise"`
	Specialties         int      `json:"specialties"`
	TopSpecialties      []string `json:"top_specialties,omitempty"`
}

// Stats computes summary statistics over the snapshot.
func (c *Corpus) Stats() Stats {
	s := Stats{Total: len(c.practitioners)}
	specialtyCounts := make(map[string]int)

	for _, p := range c.practitioners {
		if p.Verified {
			s.Verified++
		}
		if p.Blacklisted {
			s.Blacklisted++
		}
		if p.HasNHS() {
			s.WithNHS++
		}
		if len(p.ProcedureGroups) > 0 {
			s.WithProcedures++
		}
		if ParseExpertise(p.ClinicalExpertise).Structured {
			s.StructuredExpertise++
		}
		if p.Specialty != "" {
			specialtyCounts[p.Specialty]++
		}
	}

	s.Specialties = len(specialtyCounts)
	s.TopSpecialties = topK(specialtyCounts, 5)
	return s
}

// topK returns the k highest-count keys, most frequent first. Ties break
// alphabetically so output is stable across runs.
func topK(counts map[string]int, k int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > k {
		keys = keys[:k]
	}
	return keys
}
