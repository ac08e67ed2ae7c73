package evaluations

import (
	"context"
	"errors"
	"strings"

	"insight-backend/internal/llm"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmptyInput = errors.New("input text is empty")
	ErrNotRunning = errors.New("evaluation is not running")
	// ErrCancelled marks a caller-initiated abort. It is a distinct terminal
	// kind, never folded into generic backend failures.
	ErrCancelled = errors.New("evaluation cancelled")
)

const (
	ErrorCodeChunking           = "CHUNKING_ERROR"
	ErrorCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrorCodeBackendProtocol    = "BACKEND_PROTOCOL_ERROR"
	ErrorCodeCancelled          = "CANCELLED"
	ErrorCodeStorage            = "STORAGE_ERROR"
	ErrorCodeInternal           = "INTERNAL_ERROR"
)

func classifyFailure(err error) string {
	switch {
	case err == nil:
		return ErrorCodeInternal
	case errors.Is(err, ErrCancelled):
		return ErrorCodeCancelled
	case errors.Is(err, context.Canceled):
		return ErrorCodeCancelled
	case errors.Is(err, ErrEmptyInput):
		return ErrorCodeChunking
	case errors.Is(err, llm.ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeBackendUnavailable
	case errors.Is(err, llm.ErrBackendProtocol):
		return ErrorCodeBackendProtocol
	default:
		return ErrorCodeInternal
	}
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
