package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/caresearch/medrank/internal/config"
	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/llm"
	"github.com/caresearch/medrank/internal/semantic"
	"github.com/caresearch/medrank/internal/telemetry"
)

// RunAll runs every preflight check against the effective configuration.
// Network checks (LLM, embedder) are skipped in offline mode.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config, projectPath string) []CheckResult {
	if cfg == nil {
		// Nothing else is checkable without a configuration.
		return []CheckResult{c.CheckConfig(nil)}
	}

	dataDir := c.dataDir
	if dataDir == "" {
		dataDir = config.DataDir()
	}

	results := []CheckResult{
		c.CheckConfig(cfg),
		c.CheckCorpus(cfg.Corpus.Path),
		c.CheckWritePermissions("data_dir", dataDir),
		c.CheckDiskSpace(dataDir),
		c.CheckMetricsStore(),
	}

	if cfg.Corpus.OutcodeTable != "" {
		results = append(results, c.CheckOutcodeTable(cfg.Corpus.OutcodeTable))
	}

	if !c.offline {
		results = append(results, c.CheckLLM(ctx, cfg))
		if cfg.Semantic.Enabled && cfg.Semantic.Provider == "ollama" {
			results = append(results, c.CheckEmbedder(ctx, cfg))
		}
	}

	return results
}

// CheckConfig validates the effective configuration, including weights
// resolution when a weights file is configured.
func (c *Checker) CheckConfig(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "config",
		Required: true,
	}

	if cfg == nil {
		result.Status = StatusFail
		result.Message = "no configuration loaded"
		return result
	}
	if err := cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	if _, err := cfg.ResolveWeights(); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("ranking weights: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("variant %s, weights %s", cfg.Ranking.Variant, cfg.Ranking.Weights)
	return result
}

// CheckCorpus verifies the practitioner corpus loads and is non-empty.
func (c *Checker) CheckCorpus(path string) CheckResult {
	result := CheckResult{
		Name:     "corpus",
		Required: true,
	}

	if _, err := os.Stat(path); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("corpus not found at %s", path)
		result.Details = "Set corpus.path in .medrank.yaml or MEDRANK_CORPUS"
		return result
	}

	corp, err := corpus.Load(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d practitioners", corp.Len())
	result.Details = path
	return result
}

// CheckMetricsStore verifies the pure-Go SQLite driver works on this
// platform by opening an in-memory database.
func (c *Checker) CheckMetricsStore() CheckResult {
	result := CheckResult{
		Name:     "sqlite",
		Required: true,
	}

	store, err := telemetry.NewSQLiteStore(":memory:")
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	_ = store.Close()

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckOutcodeTable verifies a configured outcode override table parses.
func (c *Checker) CheckOutcodeTable(path string) CheckResult {
	result := CheckResult{
		Name:     "outcode_table",
		Required: false,
	}

	table, err := filters.LoadOutcodeTable(path)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot load %s: %v", path, err)
		result.Details = "Location radius filtering falls back to the built-in table"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d outcodes", len(table))
	return result
}

// CheckLLM probes the chat model endpoint. A miss is a warning: query
// understanding degrades to keyword fallbacks, ranking still works.
func (c *Checker) CheckLLM(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "llm",
		Required: false,
	}

	client := llm.NewOllamaClient(llm.Config{
		Host:    cfg.LLM.Host,
		Model:   cfg.LLM.Model,
		Timeout: 5 * time.Second,
	})
	if !client.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s unreachable", cfg.LLM.Host)
		result.Details = "Query understanding will use keyword fallbacks until the model server is up"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s at %s", cfg.LLM.Model, cfg.LLM.Host)
	return result
}

// CheckEmbedder probes the embedding endpoint when semantic scoring is
// enabled with the ollama provider.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	embedder := semantic.NewOllamaEmbedder(semantic.OllamaConfig{
		Host:  cfg.SemanticHost(),
		Model: cfg.Semantic.Model,
	})
	if !embedder.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s unreachable", cfg.SemanticHost())
		result.Details = "Semantic scoring is skipped while the embedder is down"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s at %s", cfg.Semantic.Model, cfg.SemanticHost())
	return result
}
