// Package config loads and validates medrank configuration. Precedence,
// lowest to highest: compiled defaults, the user config at
// ~/.config/medrank/config.yaml, the project .medrank.yaml, then
// MEDRANK_* environment overrides plus the benchmark variables
// (CANDIDATE_POOL_STRATEGY, WORKERS, TRIAL_TIMEOUT, STUDY_TIMEOUT,
// LLM_MODEL).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

// Pipeline variants selectable per request; Ranking.Variant is the
// default when a request does not choose.
const (
	VariantLegacy   = "legacy"
	VariantTwoStage = "two-stage"
	VariantV5       = "v5"
	VariantV6       = "v6"
)

// Config is the complete medrank configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Corpus      CorpusConfig      `yaml:"corpus" json:"corpus"`
	LLM         LLMConfig         `yaml:"llm" json:"llm"`
	Semantic    SemanticConfig    `yaml:"semantic" json:"semantic"`
	Ranking     RankingConfig     `yaml:"ranking" json:"ranking"`
	Progressive ProgressiveConfig `yaml:"progressive" json:"progressive"`
	Daemon      DaemonConfig      `yaml:"daemon" json:"daemon"`
	Bench       BenchConfig       `yaml:"bench" json:"bench"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" json:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// CorpusConfig locates the practitioner corpus.
type CorpusConfig struct {
	// Path is the corpus file (JSON array or JSONL).
	Path string `yaml:"path" json:"path"`
	// Watch reloads the corpus when the file changes (serve/daemon).
	Watch bool `yaml:"watch" json:"watch"`
	// OutcodeTable optionally overrides the built-in outcode centroid
	// table used by the location filter.
	OutcodeTable string `yaml:"outcode_table" json:"outcode_table"`
}

// LLMConfig configures the chat-completion client used by query
// understanding and progressive fit evaluation.
type LLMConfig struct {
	Host              string  `yaml:"host" json:"host"`
	Model             string  `yaml:"model" json:"model"`
	Timeout           string  `yaml:"timeout" json:"timeout"`
	MaxRetries        int     `yaml:"max_retries" json:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// SemanticConfig configures the optional semantic score provider.
type SemanticConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Provider is "ollama" or "static". Static is the deterministic
	// hash embedder used when no model server is available.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	Host     string `yaml:"host" json:"host"`
	// Weight mixes normalized semantic scores into Stage A.
	Weight float64 `yaml:"weight" json:"weight"`
	// TopK is how many nearest profiles one query scores.
	TopK int `yaml:"top_k" json:"top_k"`
	// CachePath is the SQLite embedding cache; empty uses
	// <data_dir>/embeddings.db.
	CachePath string `yaml:"cache_path" json:"cache_path"`
	// IndexPath persists the HNSW index between runs; empty rebuilds
	// from the corpus at startup.
	IndexPath string `yaml:"index_path" json:"index_path"`
}

// RankingConfig sets ranking defaults. Per-request overrides ride on the
// request itself; this only picks the starting point.
type RankingConfig struct {
	// Variant is the default pipeline variant: legacy, two-stage, v5
	// or v6.
	Variant string `yaml:"variant" json:"variant"`
	// Weights names the compiled weights variant (default, v2).
	Weights string `yaml:"weights" json:"weights"`
	// WeightsFile loads experimental weights from a
	// ranking-weights*.json file on top of the named variant.
	WeightsFile string `yaml:"weights_file" json:"weights_file"`
	// ShortlistSize is the default shortlist length.
	ShortlistSize int `yaml:"shortlist_size" json:"shortlist_size"`
}

// ProgressiveConfig bounds the v6 controller.
type ProgressiveConfig struct {
	TargetTopK          int    `yaml:"target_top_k" json:"target_top_k"`
	BatchSize           int    `yaml:"batch_size" json:"batch_size"`
	MaxIterations       int    `yaml:"max_iterations" json:"max_iterations"`
	MaxProfilesReviewed int    `yaml:"max_profiles_reviewed" json:"max_profiles_reviewed"`
	FetchStrategy       string `yaml:"fetch_strategy" json:"fetch_strategy"`
}

// DaemonConfig configures the unix-socket rank service.
type DaemonConfig struct {
	// SocketPath is the unix domain socket; empty uses
	// <data_dir>/daemon.sock.
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	// PIDPath stores the daemon process id; empty uses
	// <data_dir>/daemon.pid.
	PIDPath string `yaml:"pid_path" json:"pid_path"`
	// Timeout bounds one client call.
	Timeout string `yaml:"timeout" json:"timeout"`
	// ShutdownGrace is how long shutdown waits for in-flight requests.
	ShutdownGrace string `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// BenchConfig configures benchmark pool generation and evaluation runs.
type BenchConfig struct {
	// Workers bounds concurrent benchmark cases; the WORKERS
	// environment variable overrides it.
	Workers int `yaml:"workers" json:"workers"`
	// PoolStrategy picks the candidate pool composition;
	// CANDIDATE_POOL_STRATEGY overrides it.
	PoolStrategy string `yaml:"pool_strategy" json:"pool_strategy"`
	// TrialTimeout bounds one benchmark case; TRIAL_TIMEOUT overrides.
	TrialTimeout string `yaml:"trial_timeout" json:"trial_timeout"`
	// StudyTimeout bounds a whole run; STUDY_TIMEOUT overrides.
	StudyTimeout string `yaml:"study_timeout" json:"study_timeout"`
	// ContextCache is the session-context cache file shared across
	// workers; empty uses benchmark-session-context-cache.json next to
	// the cases file.
	ContextCache string `yaml:"context_cache" json:"context_cache"`
}

// TelemetryConfig configures local rank metrics. No external reporting.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// DBPath is the SQLite sink; empty uses <data_dir>/metrics.db,
	// ":memory:" keeps metrics in memory only.
	DBPath        string `yaml:"db_path" json:"db_path"`
	FlushInterval string `yaml:"flush_interval" json:"flush_interval"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File is the JSON log file; empty uses
	// ~/.medrank/logs/medrank.log.
	File string `yaml:"file" json:"file"`
	// Stderr mirrors logs to stderr for interactive use.
	Stderr bool `yaml:"stderr" json:"stderr"`
}

// NewConfig returns the compiled defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Corpus: CorpusConfig{
			Path:  "practitioners.json",
			Watch: false,
		},
		LLM: LLMConfig{
			Host:              "http://localhost:11434",
			Model:             "llama3.1:8b",
			Timeout:           "20s",
			MaxRetries:        2,
			RequestsPerSecond: 0, // unthrottled
			Burst:             1,
		},
		Semantic: SemanticConfig{
			Enabled:  false,
			Provider: "static",
			Model:    "nomic-embed-text",
			Host:     "", // empty uses the LLM host
			Weight:   0.3,
			TopK:     100,
		},
		Ranking: RankingConfig{
			Variant:       VariantTwoStage,
			Weights:       "default",
			ShortlistSize: 12,
		},
		Progressive: ProgressiveConfig{
			TargetTopK:          3,
			BatchSize:           12,
			MaxIterations:       5,
			MaxProfilesReviewed: 30,
			FetchStrategy:       "stage-b",
		},
		Daemon: DaemonConfig{
			Timeout:       "60s",
			ShutdownGrace: "10s",
		},
		Bench: BenchConfig{
			Workers:      4,
			PoolStrategy: "hybrid_bm25",
			TrialTimeout: "60s",
			StudyTimeout: "30m",
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			FlushInterval: "60s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Stderr: false,
		},
	}
}

// DataDir returns the medrank data directory (~/.medrank), falling back
// to the temp directory when no home is available.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".medrank")
	}
	return filepath.Join(home, ".medrank")
}

// GetUserConfigPath returns the user configuration path, honoring
// XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "medrank", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "medrank", "config.yaml")
	}
	return filepath.Join(home, ".config", "medrank", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user config.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// SocketPath resolves the daemon socket path.
func (c *Config) SocketPath() string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return filepath.Join(DataDir(), "daemon.sock")
}

// PIDPath resolves the daemon pidfile path.
func (c *Config) PIDPath() string {
	if c.Daemon.PIDPath != "" {
		return c.Daemon.PIDPath
	}
	return filepath.Join(DataDir(), "daemon.pid")
}

// EmbeddingCachePath resolves the semantic embedding cache path.
func (c *Config) EmbeddingCachePath() string {
	if c.Semantic.CachePath != "" {
		return c.Semantic.CachePath
	}
	return filepath.Join(DataDir(), "embeddings.db")
}

// MetricsDBPath resolves the telemetry sink path.
func (c *Config) MetricsDBPath() string {
	if c.Telemetry.DBPath != "" {
		return c.Telemetry.DBPath
	}
	return filepath.Join(DataDir(), "metrics.db")
}

// SemanticHost resolves the embedding endpoint, defaulting to the LLM
// host so a single Ollama serves both.
func (c *Config) SemanticHost() string {
	if c.Semantic.Host != "" {
		return c.Semantic.Host
	}
	return c.LLM.Host
}

// Duration accessors. Values were validated at load, so parse failures
// here only happen for hand-assembled configs and fall back to defaults.

// LLMTimeout returns the per-completion timeout.
func (c *Config) LLMTimeout() time.Duration {
	return parseDurationOr(c.LLM.Timeout, 20*time.Second)
}

// DaemonTimeout returns the client call timeout.
func (c *Config) DaemonTimeout() time.Duration {
	return parseDurationOr(c.Daemon.Timeout, 60*time.Second)
}

// DaemonShutdownGrace returns the shutdown grace period.
func (c *Config) DaemonShutdownGrace() time.Duration {
	return parseDurationOr(c.Daemon.ShutdownGrace, 10*time.Second)
}

// TrialTimeout returns the per-case benchmark timeout.
func (c *Config) TrialTimeout() time.Duration {
	return parseDurationOr(c.Bench.TrialTimeout, 60*time.Second)
}

// StudyTimeout returns the whole-run benchmark timeout.
func (c *Config) StudyTimeout() time.Duration {
	return parseDurationOr(c.Bench.StudyTimeout, 30*time.Minute)
}

// TelemetryFlushInterval returns the metrics flush cadence.
func (c *Config) TelemetryFlushInterval() time.Duration {
	return parseDurationOr(c.Telemetry.FlushInterval, time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Load builds the effective configuration for a project directory:
// defaults, then user config, then the project .medrank.yaml, then
// environment overrides, validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadUserConfig loads ~/.config/medrank/config.yaml when present.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile merges .medrank.yaml (or .yml) from dir when present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".medrank.yaml", ".medrank.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML parses a config file and merges its non-zero values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return rankerr.New(rankerr.ErrCodeConfigNotFound,
			fmt.Sprintf("read config file %s", path), err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return rankerr.New(rankerr.ErrCodeConfigInvalid,
			fmt.Sprintf("parse config file %s", path), err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other. Booleans merge only
// when a sibling field shows the section was present, since YAML cannot
// distinguish "false" from "unset".
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Corpus.Path != "" {
		c.Corpus.Path = other.Corpus.Path
		c.Corpus.Watch = other.Corpus.Watch
	}
	if other.Corpus.OutcodeTable != "" {
		c.Corpus.OutcodeTable = other.Corpus.OutcodeTable
	}

	if other.LLM.Host != "" {
		c.LLM.Host = other.LLM.Host
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.Timeout != "" {
		c.LLM.Timeout = other.LLM.Timeout
	}
	if other.LLM.MaxRetries != 0 {
		c.LLM.MaxRetries = other.LLM.MaxRetries
	}
	if other.LLM.RequestsPerSecond != 0 {
		c.LLM.RequestsPerSecond = other.LLM.RequestsPerSecond
	}
	if other.LLM.Burst != 0 {
		c.LLM.Burst = other.LLM.Burst
	}

	if other.Semantic.Provider != "" {
		c.Semantic.Provider = other.Semantic.Provider
		c.Semantic.Enabled = other.Semantic.Enabled
	}
	if other.Semantic.Model != "" {
		c.Semantic.Model = other.Semantic.Model
	}
	if other.Semantic.Host != "" {
		c.Semantic.Host = other.Semantic.Host
	}
	if other.Semantic.Weight != 0 {
		c.Semantic.Weight = other.Semantic.Weight
	}
	if other.Semantic.TopK != 0 {
		c.Semantic.TopK = other.Semantic.TopK
	}
	if other.Semantic.CachePath != "" {
		c.Semantic.CachePath = other.Semantic.CachePath
	}
	if other.Semantic.IndexPath != "" {
		c.Semantic.IndexPath = other.Semantic.IndexPath
	}

	if other.Ranking.Variant != "" {
		c.Ranking.Variant = other.Ranking.Variant
	}
	if other.Ranking.Weights != "" {
		c.Ranking.Weights = other.Ranking.Weights
	}
	if other.Ranking.WeightsFile != "" {
		c.Ranking.WeightsFile = other.Ranking.WeightsFile
	}
	if other.Ranking.ShortlistSize != 0 {
		c.Ranking.ShortlistSize = other.Ranking.ShortlistSize
	}

	if other.Progressive.TargetTopK != 0 {
		c.Progressive.TargetTopK = other.Progressive.TargetTopK
	}
	if other.Progressive.BatchSize != 0 {
		c.Progressive.BatchSize = other.Progressive.BatchSize
	}
	if other.Progressive.MaxIterations != 0 {
		c.Progressive.MaxIterations = other.Progressive.MaxIterations
	}
	if other.Progressive.MaxProfilesReviewed != 0 {
		c.Progressive.MaxProfilesReviewed = other.Progressive.MaxProfilesReviewed
	}
	if other.Progressive.FetchStrategy != "" {
		c.Progressive.FetchStrategy = other.Progressive.FetchStrategy
	}

	if other.Daemon.SocketPath != "" {
		c.Daemon.SocketPath = other.Daemon.SocketPath
	}
	if other.Daemon.PIDPath != "" {
		c.Daemon.PIDPath = other.Daemon.PIDPath
	}
	if other.Daemon.Timeout != "" {
		c.Daemon.Timeout = other.Daemon.Timeout
	}
	if other.Daemon.ShutdownGrace != "" {
		c.Daemon.ShutdownGrace = other.Daemon.ShutdownGrace
	}

	if other.Bench.Workers != 0 {
		c.Bench.Workers = other.Bench.Workers
	}
	if other.Bench.PoolStrategy != "" {
		c.Bench.PoolStrategy = other.Bench.PoolStrategy
	}
	if other.Bench.TrialTimeout != "" {
		c.Bench.TrialTimeout = other.Bench.TrialTimeout
	}
	if other.Bench.StudyTimeout != "" {
		c.Bench.StudyTimeout = other.Bench.StudyTimeout
	}
	if other.Bench.ContextCache != "" {
		c.Bench.ContextCache = other.Bench.ContextCache
	}

	if other.Telemetry.DBPath != "" {
		c.Telemetry.DBPath = other.Telemetry.DBPath
		c.Telemetry.Enabled = other.Telemetry.Enabled
	}
	if other.Telemetry.FlushInterval != "" {
		c.Telemetry.FlushInterval = other.Telemetry.FlushInterval
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
		c.Logging.Stderr = other.Logging.Stderr
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies MEDRANK_* variables plus the benchmark
// variables that keep their historical unprefixed names.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEDRANK_CORPUS"); v != "" {
		c.Corpus.Path = v
	}
	if v := os.Getenv("MEDRANK_LLM_HOST"); v != "" {
		c.LLM.Host = v
	}
	if v := os.Getenv("MEDRANK_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	// LLM_MODEL is the older name the benchmark driver exports.
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("MEDRANK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MEDRANK_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Semantic.Weight = w
		}
	}
	if v := os.Getenv("MEDRANK_VARIANT"); v != "" {
		c.Ranking.Variant = v
	}

	if v := os.Getenv("CANDIDATE_POOL_STRATEGY"); v != "" {
		c.Bench.PoolStrategy = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.Bench.Workers = n
		}
	}
	if v := os.Getenv("TRIAL_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			c.Bench.TrialTimeout = v
		}
	}
	if v := os.Getenv("STUDY_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			c.Bench.StudyTimeout = v
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Ranking.Variant {
	case VariantLegacy, VariantTwoStage, VariantV5, VariantV6:
	default:
		return rankerr.ConfigError(
			fmt.Sprintf("ranking.variant must be legacy, two-stage, v5 or v6, got %q", c.Ranking.Variant), nil)
	}

	if c.Ranking.ShortlistSize < 0 {
		return rankerr.ConfigError(
			fmt.Sprintf("ranking.shortlist_size must be non-negative, got %d", c.Ranking.ShortlistSize), nil)
	}

	if c.Semantic.Weight < 0 || c.Semantic.Weight > 1 {
		return rankerr.ConfigError(
			fmt.Sprintf("semantic.weight must be in [0,1], got %g", c.Semantic.Weight), nil)
	}
	switch strings.ToLower(c.Semantic.Provider) {
	case "", "ollama", "static":
	default:
		return rankerr.ConfigError(
			fmt.Sprintf("semantic.provider must be ollama or static, got %q", c.Semantic.Provider), nil)
	}

	switch c.Progressive.FetchStrategy {
	case "", "stage-a", "stage-b":
	default:
		return rankerr.ConfigError(
			fmt.Sprintf("progressive.fetch_strategy must be stage-a or stage-b, got %q", c.Progressive.FetchStrategy), nil)
	}

	switch c.Bench.PoolStrategy {
	case "", "ranking_only", "hybrid_bm25", "hybrid_random", "multi_source":
	default:
		return rankerr.ConfigError(
			fmt.Sprintf("bench.pool_strategy must be ranking_only, hybrid_bm25, hybrid_random or multi_source, got %q", c.Bench.PoolStrategy), nil)
	}
	if c.Bench.Workers < 0 {
		return rankerr.ConfigError(
			fmt.Sprintf("bench.workers must be non-negative, got %d", c.Bench.Workers), nil)
	}

	for field, value := range map[string]string{
		"llm.timeout":              c.LLM.Timeout,
		"daemon.timeout":           c.Daemon.Timeout,
		"daemon.shutdown_grace":    c.Daemon.ShutdownGrace,
		"bench.trial_timeout":      c.Bench.TrialTimeout,
		"bench.study_timeout":      c.Bench.StudyTimeout,
		"telemetry.flush_interval": c.Telemetry.FlushInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return rankerr.ConfigError(
				fmt.Sprintf("%s is not a duration: %q", field, value), err)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return rankerr.ConfigError(
			fmt.Sprintf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level), nil)
	}

	return nil
}

// MergeNewDefaults fills fields an older config file predates with the
// current defaults and reports which were added. Used by `medrank config
// upgrade` so user files keep working across releases.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.LLM.Timeout == "" {
		c.LLM.Timeout = defaults.LLM.Timeout
		added = append(added, "llm.timeout")
	}
	if c.LLM.Burst == 0 {
		c.LLM.Burst = defaults.LLM.Burst
		added = append(added, "llm.burst")
	}
	if c.Semantic.Provider == "" {
		c.Semantic.Provider = defaults.Semantic.Provider
		added = append(added, "semantic.provider")
	}
	if c.Semantic.Weight == 0 {
		c.Semantic.Weight = defaults.Semantic.Weight
		added = append(added, "semantic.weight")
	}
	if c.Semantic.TopK == 0 {
		c.Semantic.TopK = defaults.Semantic.TopK
		added = append(added, "semantic.top_k")
	}
	if c.Ranking.Variant == "" {
		c.Ranking.Variant = defaults.Ranking.Variant
		added = append(added, "ranking.variant")
	}
	if c.Ranking.ShortlistSize == 0 {
		c.Ranking.ShortlistSize = defaults.Ranking.ShortlistSize
		added = append(added, "ranking.shortlist_size")
	}
	if c.Progressive.TargetTopK == 0 {
		c.Progressive.TargetTopK = defaults.Progressive.TargetTopK
		added = append(added, "progressive.target_top_k")
	}
	if c.Progressive.BatchSize == 0 {
		c.Progressive.BatchSize = defaults.Progressive.BatchSize
		added = append(added, "progressive.batch_size")
	}
	if c.Progressive.MaxIterations == 0 {
		c.Progressive.MaxIterations = defaults.Progressive.MaxIterations
		added = append(added, "progressive.max_iterations")
	}
	if c.Progressive.MaxProfilesReviewed == 0 {
		c.Progressive.MaxProfilesReviewed = defaults.Progressive.MaxProfilesReviewed
		added = append(added, "progressive.max_profiles_reviewed")
	}
	if c.Bench.Workers == 0 {
		c.Bench.Workers = defaults.Bench.Workers
		added = append(added, "bench.workers")
	}
	if c.Bench.PoolStrategy == "" {
		c.Bench.PoolStrategy = defaults.Bench.PoolStrategy
		added = append(added, "bench.pool_strategy")
	}
	if c.Telemetry.FlushInterval == "" {
		c.Telemetry.FlushInterval = defaults.Telemetry.FlushInterval
		added = append(added, "telemetry.flush_interval")
	}

	return added
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return rankerr.ConfigError("marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return rankerr.ConfigError(fmt.Sprintf("write config file %s", path), err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .medrank.yaml or
// a .git directory; it returns startDir when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", startDir, err)
	}

	current := absDir
	for {
		if fileExists(filepath.Join(current, ".medrank.yaml")) ||
			fileExists(filepath.Join(current, ".medrank.yml")) ||
			dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
