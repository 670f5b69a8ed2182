package rank

import (
	"fmt"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

// FieldWeights controls how many times each practitioner field is
// repeated in the searchable blob. Weights above 1 round to integer
// repetitions; weights at or below 1 contribute a single repetition.
type FieldWeights struct {
	ClinicalExpertise    float64 `json:"clinical_expertise" yaml:"clinical_expertise"`
	ProcedureGroups      float64 `json:"procedure_groups" yaml:"procedure_groups"`
	Specialty            float64 `json:"specialty" yaml:"specialty"`
	SpecialtyDescription float64 `json:"specialty_description" yaml:"specialty_description"`
	Description          float64 `json:"description" yaml:"description"`
	About                float64 `json:"about" yaml:"about"`
	Name                 float64 `json:"name" yaml:"name"`
	Memberships          float64 `json:"memberships" yaml:"memberships"`
	AddressLocality      float64 `json:"address_locality" yaml:"address_locality"`
	Title                float64 `json:"title" yaml:"title"`
	InsuranceProviders   float64 `json:"insurance_providers" yaml:"insurance_providers"`
}

// DefaultFieldWeights returns the production field weighting.
func DefaultFieldWeights() FieldWeights {
	return FieldWeights{
		ClinicalExpertise:    3.0,
		ProcedureGroups:      2.8,
		Specialty:            2.5,
		SpecialtyDescription: 2.0,
		Description:          1.5,
		About:                1.0,
		Name:                 1.0,
		Memberships:          0.8,
		AddressLocality:      0.5,
		Title:                0.3,
		InsuranceProviders:   0.3,
	}
}

// Config carries every tunable of the two-stage ranker. Merge order is
// defaults, then a named weights variant, then request overrides.
type Config struct {
	K1 float64 `json:"k1" yaml:"k1"`
	B  float64 `json:"b" yaml:"b"`

	IntentTermWeight   float64 `json:"intent_term_weight" yaml:"intent_term_weight"`
	AnchorPhraseWeight float64 `json:"anchor_phrase_weight" yaml:"anchor_phrase_weight"`
	// AnchorCap bounds the total anchor delta; zero means uncapped.
	AnchorCap float64 `json:"anchor_cap" yaml:"anchor_cap"`

	Negative1 float64 `json:"negative_1" yaml:"negative_1"`
	Negative2 float64 `json:"negative_2" yaml:"negative_2"`
	Negative4 float64 `json:"negative_4" yaml:"negative_4"`

	SubspecialtyFactor float64 `json:"subspecialty_factor" yaml:"subspecialty_factor"`
	SubspecialtyCap    float64 `json:"subspecialty_cap" yaml:"subspecialty_cap"`

	SafeLane1       float64 `json:"safe_lane_1" yaml:"safe_lane_1"`
	SafeLane2       float64 `json:"safe_lane_2" yaml:"safe_lane_2"`
	SafeLane3OrMore float64 `json:"safe_lane_3_or_more" yaml:"safe_lane_3_or_more"`

	StageATopN           int  `json:"stage_a_top_n" yaml:"stage_a_top_n"`
	StageAIntentTermsCap int  `json:"stage_a_intent_terms_cap" yaml:"stage_a_intent_terms_cap"`
	IntentTermsInBM25    bool `json:"intent_terms_in_bm25" yaml:"intent_terms_in_bm25"`

	// EquivalenceNormalization appends bounded alias expansions to the
	// Stage A query. Legacy ranking ignores it and uses the keyword
	// expansion map instead.
	EquivalenceNormalization bool `json:"equivalence_normalization" yaml:"equivalence_normalization"`

	FieldWeights FieldWeights `json:"field_weights" yaml:"field_weights"`
}

// maxIntentTermsCap is the hard ceiling on intent terms appended to the
// Stage A query, whatever the config asks for.
const maxIntentTermsCap = 20

// DefaultConfig returns the production ranking configuration.
func DefaultConfig() Config {
	return Config{
		K1:                       1.5,
		B:                        0.75,
		IntentTermWeight:         0.3,
		AnchorPhraseWeight:       0.5,
		AnchorCap:                0,
		Negative1:                -1.0,
		Negative2:                -2.0,
		Negative4:                -3.0,
		SubspecialtyFactor:       0.3,
		SubspecialtyCap:          0.5,
		SafeLane1:                1.0,
		SafeLane2:                2.0,
		SafeLane3OrMore:          3.0,
		StageATopN:               100,
		StageAIntentTermsCap:     10,
		IntentTermsInBM25:        false,
		EquivalenceNormalization: true,
		FieldWeights:             DefaultFieldWeights(),
	}
}

// WeightsVariant resolves a named rescoring-weights variant on top of the
// defaults. Known variants: "default" (or empty) and "v2", which softens
// anchors to 0.25 with a 0.75 cap.
func WeightsVariant(name string) (Config, error) {
	cfg := DefaultConfig()
	switch name {
	case "", "default":
		return cfg, nil
	case "v2":
		cfg.AnchorPhraseWeight = 0.25
		cfg.AnchorCap = 0.75
		return cfg, nil
	default:
		return Config{}, rankerr.New(rankerr.ErrCodeVariantUnknown,
			fmt.Sprintf("unknown ranking weights variant %q", name), nil).
			WithSuggestion("Known variants: default, v2")
	}
}

// Overrides carries request-level config overrides. Nil fields keep the
// base value; unknown keys in the source document are ignored upstream.
type Overrides struct {
	K1                   *float64 `json:"k1,omitempty" yaml:"k1,omitempty"`
	B                    *float64 `json:"b,omitempty" yaml:"b,omitempty"`
	IntentTermWeight     *float64 `json:"intent_term_weight,omitempty" yaml:"intent_term_weight,omitempty"`
	AnchorPhraseWeight   *float64 `json:"anchor_phrase_weight,omitempty" yaml:"anchor_phrase_weight,omitempty"`
	AnchorCap            *float64 `json:"anchor_cap,omitempty" yaml:"anchor_cap,omitempty"`
	Negative1            *float64 `json:"negative_1,omitempty" yaml:"negative_1,omitempty"`
	Negative2            *float64 `json:"negative_2,omitempty" yaml:"negative_2,omitempty"`
	Negative4            *float64 `json:"negative_4,omitempty" yaml:"negative_4,omitempty"`
	SubspecialtyFactor   *float64 `json:"subspecialty_factor,omitempty" yaml:"subspecialty_factor,omitempty"`
	SubspecialtyCap      *float64 `json:"subspecialty_cap,omitempty" yaml:"subspecialty_cap,omitempty"`
	SafeLane1            *float64 `json:"safe_lane_1,omitempty" yaml:"safe_lane_1,omitempty"`
	SafeLane2            *float64 `json:"safe_lane_2,omitempty" yaml:"safe_lane_2,omitempty"`
	SafeLane3OrMore      *float64 `json:"safe_lane_3_or_more,omitempty" yaml:"safe_lane_3_or_more,omitempty"`
	StageATopN           *int     `json:"stage_a_top_n,omitempty" yaml:"stage_a_top_n,omitempty"`
	StageAIntentTermsCap *int     `json:"stage_a_intent_terms_cap,omitempty" yaml:"stage_a_intent_terms_cap,omitempty"`
	IntentTermsInBM25    *bool    `json:"intent_terms_in_bm25,omitempty" yaml:"intent_terms_in_bm25,omitempty"`
}

// Apply returns a copy of c with non-nil overrides applied.
func (c Config) Apply(o *Overrides) Config {
	if o == nil {
		return c
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat(&c.K1, o.K1)
	setFloat(&c.B, o.B)
	setFloat(&c.IntentTermWeight, o.IntentTermWeight)
	setFloat(&c.AnchorPhraseWeight, o.AnchorPhraseWeight)
	setFloat(&c.AnchorCap, o.AnchorCap)
	setFloat(&c.Negative1, o.Negative1)
	setFloat(&c.Negative2, o.Negative2)
	setFloat(&c.Negative4, o.Negative4)
	setFloat(&c.SubspecialtyFactor, o.SubspecialtyFactor)
	setFloat(&c.SubspecialtyCap, o.SubspecialtyCap)
	setFloat(&c.SafeLane1, o.SafeLane1)
	setFloat(&c.SafeLane2, o.SafeLane2)
	setFloat(&c.SafeLane3OrMore, o.SafeLane3OrMore)
	if o.StageATopN != nil {
		c.StageATopN = *o.StageATopN
	}
	if o.StageAIntentTermsCap != nil {
		c.StageAIntentTermsCap = *o.StageAIntentTermsCap
	}
	if o.IntentTermsInBM25 != nil {
		c.IntentTermsInBM25 = *o.IntentTermsInBM25
	}
	return c
}

// Validate rejects values outside sanity bounds. It is called at request
// parse time so a bad override fails fast instead of skewing a ranking.
func (c Config) Validate() error {
	if c.K1 <= 0 {
		return outOfRange("k1", c.K1, "must be > 0")
	}
	if c.B < 0 || c.B > 1 {
		return outOfRange("b", c.B, "must be in [0,1]")
	}
	if c.StageATopN <= 0 {
		return outOfRange("stage_a_top_n", float64(c.StageATopN), "must be > 0")
	}
	if c.StageAIntentTermsCap < 0 {
		return outOfRange("stage_a_intent_terms_cap", float64(c.StageAIntentTermsCap), "must be >= 0")
	}
	if c.AnchorCap < 0 {
		return outOfRange("anchor_cap", c.AnchorCap, "must be >= 0")
	}
	if c.SubspecialtyCap < 0 {
		return outOfRange("subspecialty_cap", c.SubspecialtyCap, "must be >= 0")
	}
	for name, w := range map[string]float64{
		"clinical_expertise":    c.FieldWeights.ClinicalExpertise,
		"procedure_groups":      c.FieldWeights.ProcedureGroups,
		"specialty":             c.FieldWeights.Specialty,
		"specialty_description": c.FieldWeights.SpecialtyDescription,
		"description":           c.FieldWeights.Description,
		"about":                 c.FieldWeights.About,
		"name":                  c.FieldWeights.Name,
		"memberships":           c.FieldWeights.Memberships,
		"address_locality":      c.FieldWeights.AddressLocality,
		"title":                 c.FieldWeights.Title,
		"insurance_providers":   c.FieldWeights.InsuranceProviders,
	} {
		if w < 0 {
			return rankerr.New(rankerr.ErrCodeWeightsInvalid,
				fmt.Sprintf("field weight %s is negative (%.2f)", name, w), nil)
		}
	}
	return nil
}

func outOfRange(field string, value float64, constraint string) error {
	return rankerr.New(rankerr.ErrCodeConfigOutOfRange,
		fmt.Sprintf("ranking config %s=%g %s", field, value, constraint), nil)
}

// intentTermsCap returns the effective cap on intent terms in the Stage A
// query.
func (c Config) intentTermsCap() int {
	limit := c.StageAIntentTermsCap
	if limit > maxIntentTermsCap {
		limit = maxIntentTermsCap
	}
	return limit
}
