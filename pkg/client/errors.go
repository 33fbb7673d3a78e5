package client

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Ghostified/autoexpress-dashboard/pkg/auth"
	"github.com/rs/zerolog"
)

// ErrorKind is the closed classification set for failed attempts.
type ErrorKind string

const (
	// KindAuthError maps HTTP 401; observing it clears the stored token.
	KindAuthError ErrorKind = "AUTH_ERROR"

	// KindForbidden maps HTTP 403.
	KindForbidden ErrorKind = "FORBIDDEN"

	// KindNotFound maps HTTP 404.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindRateLimit maps HTTP 429.
	KindRateLimit ErrorKind = "RATE_LIMIT"

	// KindServerError maps HTTP 500.
	KindServerError ErrorKind = "SERVER_ERROR"

	// KindNetworkError maps HTTP 502/503/504 and transport connect failures.
	KindNetworkError ErrorKind = "NETWORK_ERROR"

	// KindTimeout maps an attempt deadline that elapsed before a response.
	KindTimeout ErrorKind = "TIMEOUT"

	// KindParseError maps a body that could not be decoded.
	KindParseError ErrorKind = "PARSE_ERROR"

	// KindHTTPError maps any other non-2xx status.
	KindHTTPError ErrorKind = "HTTP_ERROR"

	// KindUnknownError maps anything uncategorized.
	KindUnknownError ErrorKind = "UNKNOWN_ERROR"
)

// ErrParse marks a body-decode failure for classification.
var ErrParse = errors.New("response body decode failed")

// ErrorRecord is the normalized terminal error surfaced to callers. It is
// immutable once constructed and carries the correlation id of the attempt
// that produced it, not of the original call.
type ErrorRecord struct {
	Kind          ErrorKind
	HTTPStatus    int
	Message       string
	CorrelationID string
	Cause         error
}

// Error implements the error interface.
func (e *ErrorRecord) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("[%s] %s error (status %d): %s",
			e.CorrelationID, e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("[%s] %s error: %s", e.CorrelationID, e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ErrorRecord) Unwrap() error {
	return e.Cause
}

// Is matches two ErrorRecords by kind.
func (e *ErrorRecord) Is(target error) bool {
	if other, ok := target.(*ErrorRecord); ok {
		return e.Kind == other.Kind
	}
	return false
}

// ErrorClassifier maps a failed attempt to one ErrorKind. Classifying
// AUTH_ERROR clears the token store and fires the auth-required callback;
// this is the sole point where classification has a side effect.
type ErrorClassifier struct {
	tokens         *auth.TokenStore
	onAuthRequired func()
	logger         zerolog.Logger
}

// NewErrorClassifier creates a classifier bound to a token store. The
// onAuthRequired callback may be nil.
func NewErrorClassifier(tokens *auth.TokenStore, onAuthRequired func(), logger zerolog.Logger) *ErrorClassifier {
	return &ErrorClassifier{
		tokens:         tokens,
		onAuthRequired: onAuthRequired,
		logger:         logger.With().Str("component", "error-classifier").Logger(),
	}
}

// Classify maps a non-2xx HTTP status (status > 0) or a transport-level
// failure (status == 0, cause != nil) to an ErrorKind.
func (c *ErrorClassifier) Classify(ctx context.Context, status int, cause error) ErrorKind {
	kind := c.kindOf(status, cause)

	c.logger.Debug().
		Str("kind", string(kind)).
		Int("status", status).
		Msg("Error classified")

	if kind == KindAuthError {
		if err := c.tokens.Clear(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Failed to clear token after auth error")
		}
		if c.onAuthRequired != nil {
			c.onAuthRequired()
		}
	}

	return kind
}

func (c *ErrorClassifier) kindOf(status int, cause error) ErrorKind {
	if status > 0 {
		switch status {
		case 401:
			return KindAuthError
		case 403:
			return KindForbidden
		case 404:
			return KindNotFound
		case 429:
			return KindRateLimit
		case 500:
			return KindServerError
		case 502, 503, 504:
			return KindNetworkError
		default:
			return KindHTTPError
		}
	}

	switch {
	case cause == nil:
		return KindUnknownError
	case errors.Is(cause, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(cause, ErrParse):
		return KindParseError
	case isNetworkError(cause):
		return KindNetworkError
	default:
		return KindUnknownError
	}
}

// isNetworkError reports whether cause is a transport-level failure
// (connection refused/reset, DNS failure, net-level timeout).
func isNetworkError(cause error) bool {
	var netErr net.Error
	if errors.As(cause, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(cause, &opErr)
}
