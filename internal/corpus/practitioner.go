// Package corpus holds the in-memory practitioner corpus: the record model,
// the loader, and the file watcher that swaps in a fresh corpus between
// requests. Records are immutable after load; every consumer gets the same
// shared slice and must not mutate it.
package corpus

import "strings"

// ProcedureGroup is a named procedure with its yearly admission volume.
type ProcedureGroup struct {
	Name           string `json:"name"`
	AdmissionCount int    `json:"admission_count"`
}

// InsuranceProvider is one accepted insurer. CanonicalName is the normalized
// insurer name produced at ingest; RawName preserves the source spelling.
type InsuranceProvider struct {
	CanonicalName string `json:"canonical_name"`
	RawName       string `json:"raw_name,omitempty"`
	InsurerID     string `json:"insurer_id,omitempty"`
}

// Practitioner is a single corpus record. The JSON field names mirror the
// enrichment pipeline's output files, which is also the benchmark on-disk
// schema, so records round-trip unchanged.
type Practitioner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`

	Specialty            string   `json:"specialty,omitempty"`
	SpecialtyDescription string   `json:"specialty_description,omitempty"`
	Subspecialties       []string `json:"subspecialties,omitempty"`

	Description             string `json:"description,omitempty"`
	About                   string `json:"about,omitempty"`
	ClinicalExpertise       string `json:"clinical_expertise,omitempty"`
	Qualifications          string `json:"qualifications,omitempty"`
	ProfessionalMemberships string `json:"professional_memberships,omitempty"`

	AddressLocality string `json:"address_locality,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
	ProfileURL      string `json:"profile_url,omitempty"`

	ProcedureGroups    []ProcedureGroup    `json:"procedure_groups,omitempty"`
	InsuranceProviders []InsuranceProvider `json:"insuranceProviders,omitempty"`
	PatientAgeGroups   []string            `json:"patient_age_group,omitempty"`
	Languages          []string            `json:"languages,omitempty"`

	Gender   string `json:"gender,omitempty"`
	NHSBase  string `json:"nhs_base,omitempty"`
	NHSPosts string `json:"nhs_posts,omitempty"`

	RatingValue     float64 `json:"rating_value,omitempty"`
	ReviewCount     int     `json:"review_count,omitempty"`
	YearsExperience int     `json:"years_experience,omitempty"`
	Verified        bool    `json:"verified,omitempty"`

	// Distance in miles from the requested location. Never present in the
	// corpus file; the location filter sets it on per-request copies.
	Distance *float64 `json:"distance,omitempty"`

	Blacklisted bool `json:"blacklisted,omitempty"`
}

// HasNHS reports whether the practitioner holds any NHS affiliation.
func (p *Practitioner) HasNHS() bool {
	return strings.TrimSpace(p.NHSBase) != "" || strings.TrimSpace(p.NHSPosts) != ""
}

// GenderNormalized returns "male", "female", or "" for unknown.
// Only the explicit field is consulted here; title and pronoun inference
// belong to the gender filter.
func (p *Practitioner) GenderNormalized() string {
	switch strings.ToLower(strings.TrimSpace(p.Gender)) {
	case "male", "m":
		return "male"
	case "female", "f":
		return "female"
	default:
		return ""
	}
}

// WithDistance returns a shallow copy of the practitioner with Distance set.
// The corpus record itself is never mutated; ranking operates on the copy so
// concurrent requests with different locations do not race.
func (p *Practitioner) WithDistance(miles float64) *Practitioner {
	cp := *p
	cp.Distance = &miles
	return &cp
}

// Validate reports whether the record is usable by the engine.
func (p *Practitioner) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errMissingID
	}
	if strings.TrimSpace(p.Name) == "" {
		return errMissingName
	}
	return nil
}
