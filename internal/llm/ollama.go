package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

// OllamaClient talks to an Ollama-compatible /api/chat endpoint with raw
// net/http. Calls run through a rate limiter and a circuit breaker so a
// struggling endpoint sheds load instead of stacking timeouts.
type OllamaClient struct {
	client  *http.Client
	config  Config
	limiter *limiter
	breaker *rankerr.CircuitBreaker
}

var _ Client = (*OllamaClient)(nil)

// chatRequest is the Ollama /api/chat request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// chatResponse is the non-streaming /api/chat response body.
type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// NewOllamaClient creates a client with cfg, applying defaults for unset
// fields.
func NewOllamaClient(cfg Config) *OllamaClient {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	// No http.Client.Timeout: per-call contexts carry the deadline so a
	// request-level deadline shorter than the default wins.
	return &OllamaClient{
		client:  &http.Client{},
		config:  cfg,
		limiter: newLimiter(cfg.RequestsPerSecond, cfg.Burst),
		breaker: rankerr.NewCircuitBreaker("llm",
			rankerr.WithMaxFailures(5),
			rankerr.WithResetTimeout(30*time.Second)),
	}
}

// ModelName returns the configured chat model.
func (c *OllamaClient) ModelName() string {
	return c.config.Model
}

// Complete runs one chat completion. The call waits on the rate limiter,
// checks the circuit breaker, then retries transient failures with
// backoff inside the caller's deadline.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", rankerr.New(rankerr.ErrCodeInvalidInput, "empty prompt", nil)
	}

	if err := c.limiter.wait(ctx); err != nil {
		return "", err
	}
	if !c.breaker.Allow() {
		return "", rankerr.New(rankerr.ErrCodeLLMBusy,
			"llm circuit breaker open", rankerr.ErrCircuitOpen).
			WithSuggestion("The LLM endpoint is failing; requests fall back to default intent")
	}

	retryCfg := rankerr.LLMRetryConfig()
	retryCfg.MaxRetries = c.config.MaxRetries

	response, err := rankerr.RetryWithResult(ctx, retryCfg, func() (string, error) {
		return c.doComplete(ctx, req)
	})
	if err != nil {
		c.breaker.RecordFailure()
		return "", err
	}
	c.breaker.RecordSuccess()
	return response, nil
}

// doComplete performs a single HTTP round trip. The request runs in a
// goroutine so cancellation unblocks the caller immediately rather than
// waiting out the HTTP timeout.
func (c *OllamaClient) doComplete(ctx context.Context, req Request) (string, error) {
	callCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   false,
		Options:  &chatOptions{Temperature: temperature, NumPredict: req.MaxTokens},
	}
	if req.JSONMode {
		body.Format = "json"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", rankerr.New(rankerr.ErrCodeInternal, "marshal chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.config.Host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", rankerr.New(rankerr.ErrCodeInternal, "create chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	type result struct {
		content string
		err     error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := c.client.Do(httpReq)
		if err != nil {
			resultCh <- result{"", rankerr.New(rankerr.ErrCodeLLMUnavailable, "llm request failed", err)}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			code := rankerr.ErrCodeLLMUnavailable
			if resp.StatusCode == http.StatusTooManyRequests {
				code = rankerr.ErrCodeLLMBusy
			}
			resultCh <- result{"", rankerr.New(code,
				fmt.Sprintf("llm returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)}
			return
		}

		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			resultCh <- result{"", rankerr.New(rankerr.ErrCodeLLMMalformed, "decode chat response", err)}
			return
		}
		resultCh <- result{parsed.Message.Content, nil}
	}()

	select {
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", rankerr.New(rankerr.ErrCodeLLMTimeout, "llm call timed out", callCtx.Err())
	case r := <-resultCh:
		return r.content, r.err
	}
}

// Available reports whether the endpoint answers /api/tags.
func (c *OllamaClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
