package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrEmptyResponse is a retryable failure: the backend answered with neither
// text nor a function call.
var ErrEmptyResponse = errors.New("empty response from model")

// ErrExhausted matches every ExhaustedError.
var ErrExhausted = errors.New("all credentials and models failed")

// ErrAllCooling is reported by Engine.Check while every credential is in
// its cooldown window.
var ErrAllCooling = errors.New("every credential is cooling down")

// UserMessage is shown to users when generation is exhausted.
const UserMessage = "😵 A IA está sobrecarregada agora. Tenta de novo daqui a alguns minutos."

// StatusError is a non-200 answer from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// ExhaustedError is the single terminal failure of Engine.Generate.
type ExhaustedError struct {
	Rounds   int
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d rounds (%d attempts): %v", ErrExhausted, e.Rounds, e.Attempts, e.Last)
}

// Unwrap exposes both ErrExhausted and the last attempt error.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}

func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsRateLimit reports a quota or rate limit answer.
func IsRateLimit(err error) bool {
	return statusCode(err) == http.StatusTooManyRequests
}

// IsAuth reports a rejected credential.
func IsAuth(err error) bool {
	code := statusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsTransient reports timeouts and connectivity failures, which say nothing
// about quota.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	code := statusCode(err)
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}
