// Package oracle defines the text-generation client contract and its
// backends. Clients make exactly one request per call: every retry decision
// belongs to the caller, which classifies failures with Classify.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// Client is a stateless prompt-in/text-out generation service.
type Client interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f ClientFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// TransientError is a failure worth another attempt: timeouts, rate limits,
// 5xx responses and dropped connections.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError means the client cannot work for the whole task: missing
// credentials, rejected authentication, unknown model or endpoint.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }

// StatusError carries a non-2xx HTTP response from a backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("status %d: %s", e.Code, body)
}

// Transient wraps err as a TransientError.
func Transient(reason string, err error) error {
	return &TransientError{Reason: reason, Err: err}
}

// Fatal wraps err as a FatalError.
func Fatal(reason string, err error) error {
	return &FatalError{Reason: reason, Err: err}
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

var statusCodePattern = regexp.MustCompile(`(?:status(?: code)?:?|error) (\d{3})\b`)

var fatalPatterns = []string{
	"unauthorized",
	"forbidden",
	"invalid api key",
	"api key not valid",
	"permission denied",
	"permission_denied",
	"unauthenticated",
	"not configured",
}

var transientPatterns = []string{
	"timeout",
	"connection",
	"network",
	"temporary",
	"rate limit",
	"resource exhausted",
	"resource_exhausted",
	"unavailable",
	"overloaded",
	"deadline exceeded",
	"eof",
}

// Classify maps any client error onto the taxonomy. Already-typed errors are
// returned unchanged; anything unrecognized is transient. Rate limits and
// 5xx responses are always transient; otherwise a credential complaint in
// the message wins over the status code, since providers report a bad key
// as a plain 400.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var te *TransientError
	var fe *FatalError
	if errors.As(err, &te) || errors.As(err, &fe) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient("oracle call timed out", err)
	}

	msg := strings.ToLower(err.Error())
	code := statusCode(err, msg)
	if code == 429 || code >= 500 {
		return classifyStatus(code, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient("network error", err)
	}

	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return Fatal("oracle rejected configuration", err)
		}
	}
	if code > 0 {
		return classifyStatus(code, err)
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return Transient("oracle unavailable", err)
		}
	}
	return Transient("oracle call failed", err)
}

// statusCode extracts an HTTP status from a typed error or the message text.
func statusCode(err error, msg string) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	var ae genai.APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	return 0
}

func classifyStatus(code int, err error) error {
	switch {
	case code == 401 || code == 403:
		return Fatal(fmt.Sprintf("oracle rejected credentials (HTTP %d)", code), err)
	case code == 404:
		return Fatal("oracle endpoint or model not found (HTTP 404)", err)
	case code == 429:
		return Transient("oracle rate limited (HTTP 429)", err)
	case code >= 500:
		return Transient(fmt.Sprintf("oracle server error (HTTP %d)", code), err)
	default:
		return Transient(fmt.Sprintf("oracle request failed (HTTP %d)", code), err)
	}
}
