package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

var (
	ErrNotConfigured = errors.New("llm: endpoint not configured")
	ErrProtocol      = errors.New("llm: malformed response")
	ErrEmptyReply    = errors.New("llm: empty reply")
)

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm: upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("llm: upstream status %d: %s", e.StatusCode, e.Message)
}

type ErrorClass string

const (
	ErrorClassTimeout        ErrorClass = "timeout"
	ErrorClassCanceled       ErrorClass = "canceled"
	ErrorClassNetwork        ErrorClass = "network"
	ErrorClassUpstreamStatus ErrorClass = "upstream_status"
	ErrorClassRateLimited    ErrorClass = "rate_limited"
	ErrorClassProtocol       ErrorClass = "protocol"
	ErrorClassNotConfigured  ErrorClass = "not_configured"
	ErrorClassUnknown        ErrorClass = "unknown"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassCanceled
	}
	if errors.Is(err, ErrNotConfigured) {
		return ErrorClassNotConfigured
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == 429 {
			return ErrorClassRateLimited
		}
		return ErrorClassUpstreamStatus
	}
	if errors.Is(err, ErrProtocol) || errors.Is(err, ErrEmptyReply) {
		return ErrorClassProtocol
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &netErr) {
		return ErrorClassNetwork
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "connection") || strings.Contains(s, "no such host") || strings.Contains(s, "eof") {
		return ErrorClassNetwork
	}
	return ErrorClassUnknown
}

const (
	timeoutMessage = "I'm sorry, the assistant is taking longer than usual to respond. Please try again in a moment."
	busyMessage    = "I'm sorry, the assistant is busy right now. Please wait a few seconds and try again."
	genericMessage = "I'm sorry, I ran into a problem while preparing a response. Please try again."
)

// UserMessage is the apology shown to the user in place of a model reply.
func UserMessage(err error) string {
	switch ClassifyError(err) {
	case ErrorClassTimeout:
		return timeoutMessage
	case ErrorClassRateLimited:
		return busyMessage
	default:
		return genericMessage
	}
}
