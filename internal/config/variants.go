package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/rank"
)

// LoadWeights reads a ranking-weights JSON file into overrides. Unknown
// keys are rejected so a typo in an experiment file fails loudly instead
// of silently running the defaults.
func LoadWeights(path string) (*rank.Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rankerr.New(rankerr.ErrCodeWeightsInvalid,
			fmt.Sprintf("read weights file %s", path), err)
	}

	var o rank.Overrides
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		return nil, rankerr.New(rankerr.ErrCodeWeightsInvalid,
			fmt.Sprintf("parse weights file %s", path), err).
			WithSuggestion("Known keys match the ranking config fields, snake_case")
	}
	return &o, nil
}

// ResolveWeights builds the effective ranking config: the named weights
// variant, then the weights file overrides when one is configured.
func (c *Config) ResolveWeights() (rank.Config, error) {
	base, err := rank.WeightsVariant(c.Ranking.Weights)
	if err != nil {
		return rank.Config{}, err
	}
	if c.Ranking.WeightsFile == "" {
		return base, nil
	}
	overrides, err := LoadWeights(c.Ranking.WeightsFile)
	if err != nil {
		return rank.Config{}, err
	}
	cfg := base.Apply(overrides)
	if err := cfg.Validate(); err != nil {
		return rank.Config{}, err
	}
	return cfg, nil
}
