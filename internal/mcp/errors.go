// Package mcp implements the Model Context Protocol (MCP) server for medrank.
package mcp

import (
	"context"
	"errors"
	"fmt"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

// Custom MCP error codes for medrank.
const (
	// ErrCodeCorpusUnavailable indicates the practitioner corpus could not be used.
	ErrCodeCorpusUnavailable = -32001

	// ErrCodeRankFailed indicates the ranking pipeline failed.
	ErrCodeRankFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeLLMUnavailable indicates the language model backend is unreachable.
	ErrCodeLLMUnavailable = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
// It maps known error types to appropriate MCP error codes and messages.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	// Check for RankError first
	var rankErr *rankerr.RankError
	if errors.As(err, &rankErr) {
		return mapRankError(rankErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapRankError converts a RankError to an MCPError.
func mapRankError(re *rankerr.RankError) *MCPError {
	// Build message with suggestion if available
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s %s", re.Message, re.Suggestion)
	}

	// Map category to MCP error code
	switch re.Category {
	case rankerr.CategoryValidation, rankerr.CategoryConfig:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	case rankerr.CategoryCorpus:
		return &MCPError{
			Code:    ErrCodeCorpusUnavailable,
			Message: message,
		}
	case rankerr.CategoryLLM:
		if re.Code == rankerr.ErrCodeLLMTimeout {
			return &MCPError{
				Code:    ErrCodeTimeout,
				Message: message,
			}
		}
		return &MCPError{
			Code:    ErrCodeLLMUnavailable,
			Message: message,
		}
	default: // CategoryInternal and unknown
		return &MCPError{
			Code:    ErrCodeRankFailed,
			Message: message,
		}
	}
}
