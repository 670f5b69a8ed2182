// Package llm provides the chat-completion client used by query
// understanding and progressive fit evaluation. The production client
// speaks the Ollama /api/chat protocol over raw HTTP; tests inject a
// ScriptedClient so classification stays deterministic.
package llm

import (
	"context"
	"strings"
	"time"
)

// Default client configuration values.
const (
	DefaultHost        = "http://localhost:11434"
	DefaultModel       = "llama3.1:8b"
	DefaultTimeout     = 20 * time.Second
	DefaultTemperature = 0.1
)

// Request is a single chat completion. Prompt is the user turn; System is
// optional. JSONMode asks the model for a JSON object response, which
// every medrank prompt relies on.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Client is the minimal chat interface the ranking core depends on.
// Complete must honor ctx deadlines and cancellation. Implementations
// must be safe for concurrent use: query understanding issues three
// completions in parallel per request.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Available(ctx context.Context) bool
	ModelName() string
}

// Config holds connection settings for the HTTP client.
type Config struct {
	// Host is the API base URL (default http://localhost:11434).
	Host string
	// Model is the chat model name. The LLM_MODEL environment variable
	// overrides it at config load.
	Model string
	// Timeout bounds a single completion when the caller's context
	// carries no earlier deadline.
	Timeout time.Duration
	// MaxRetries is the number of retry attempts on transient failures.
	MaxRetries int
	// RequestsPerSecond throttles outbound calls; zero disables
	// throttling.
	RequestsPerSecond float64
	// Burst is the limiter burst size when throttling is enabled.
	Burst int
}

// DefaultClientConfig returns production defaults.
func DefaultClientConfig() Config {
	return Config{
		Host:              DefaultHost,
		Model:             DefaultModel,
		Timeout:           DefaultTimeout,
		MaxRetries:        2,
		RequestsPerSecond: 8,
		Burst:             4,
	}
}

// ExtractJSON trims a model response down to the outermost JSON object.
// Models in JSON mode still occasionally wrap the object in code fences
// or prose; callers parse the returned slice directly.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
		if i := strings.LastIndex(response, "```"); i >= 0 {
			response = response[:i]
		}
		response = strings.TrimSpace(response)
	}

	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}
