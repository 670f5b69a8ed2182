package daemon

import (
	"fmt"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

// JSON-RPC 2.0 method names.
const (
	MethodRank     = "rank"
	MethodStatus   = "status"
	MethodPing     = "ping"
	MethodShutdown = "shutdown"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for daemon-specific errors.
const (
	// ErrCodeRankFailed marks a rank request that was accepted but did
	// not complete.
	ErrCodeRankFailed = -32001
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error. It implements error so clients
// can hand wire failures straight back to callers.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries ranking error detail across the wire.
type ErrorData struct {
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != nil && e.Data.Code != "" {
		return fmt.Sprintf("daemon: [%s] %s", e.Data.Code, e.Message)
	}
	return fmt.Sprintf("daemon: %s (code %d)", e.Message, e.Code)
}

// errorFrom maps an engine error onto the wire. Validation and
// configuration failures surface as invalid params so callers know the
// request itself was at fault; everything else is a rank failure.
func errorFrom(err error) *Error {
	re, ok := err.(*rankerr.RankError)
	if !ok {
		return &Error{Code: ErrCodeRankFailed, Message: err.Error()}
	}
	code := ErrCodeRankFailed
	if re.Category == rankerr.CategoryValidation || re.Category == rankerr.CategoryConfig {
		code = ErrCodeInvalidParams
	}
	return &Error{
		Code:    code,
		Message: re.Message,
		Data: &ErrorData{
			Code:       re.Code,
			Suggestion: re.Suggestion,
			Retryable:  re.Retryable,
		},
	}
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running        bool   `json:"running"`
	PID            int    `json:"pid"`
	Uptime         string `json:"uptime"`
	CorpusSize     int    `json:"corpus_size"`
	CorpusPath     string `json:"corpus_path,omitempty"`
	IntentCacheLen int    `json:"intent_cache_len"`
	RequestsServed int64  `json:"requests_served"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}

// ShutdownResult acknowledges a shutdown request before the daemon
// stops accepting connections.
type ShutdownResult struct {
	Stopping bool `json:"stopping"`
}
