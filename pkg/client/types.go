package client

import (
	"context"
	"encoding/json"
	"time"
)

// TransportMode selects how requests are executed. The mode is resolved once
// at construction time and never re-queried mid-session.
type TransportMode string

const (
	// ModeLive executes requests against the configured backend.
	ModeLive TransportMode = "live"

	// ModeMock satisfies requests from local deterministic fixtures.
	ModeMock TransportMode = "mock"
)

// MockBaseURL is the sentinel base address meaning "no backend"; resolving
// it selects ModeMock.
const MockBaseURL = "mock://"

// ContentKind tags how a response body was decoded.
type ContentKind string

const (
	// ContentJSON marks a structured JSON body.
	ContentJSON ContentKind = "json"

	// ContentText marks a plain-text body.
	ContentText ContentKind = "text"

	// ContentBinary marks an opaque binary body.
	ContentBinary ContentKind = "binary"
)

// RequestDescriptor describes a single attempt of a logical call. It is
// immutable per attempt; a retry derives a new descriptor with Attempt+1.
type RequestDescriptor struct {
	// Endpoint is the request path, e.g. "/opportunities".
	Endpoint string

	// Method is the HTTP method (GET, POST, PUT, PATCH, DELETE).
	Method string

	// Body is an optional structured payload, JSON-encoded before sending.
	Body any

	// Headers are caller-supplied headers merged over the client defaults.
	Headers map[string]string

	// Timeout bounds this attempt. Zero means the client default.
	Timeout time.Duration

	// Attempt counts prior attempts of this logical call, starting at 0.
	Attempt int

	// Retryable opts this call in to the retry policy.
	Retryable bool
}

// nextAttempt derives the descriptor for the following attempt.
func (d RequestDescriptor) nextAttempt() RequestDescriptor {
	d.Attempt++
	return d
}

// ResponseEnvelope is the decoded response payload plus the content
// classification used to decode it. Exactly one of JSON, Text, or Binary is
// populated, per Kind.
type ResponseEnvelope struct {
	Kind   ContentKind
	Status int

	JSON   json.RawMessage
	Text   string
	Binary []byte
}

// DecodeJSON unmarshals a ContentJSON envelope into v.
func (e *ResponseEnvelope) DecodeJSON(v any) error {
	return json.Unmarshal(e.JSON, v)
}

// JSONEnvelope wraps raw JSON in a successful envelope.
func JSONEnvelope(raw []byte) *ResponseEnvelope {
	return &ResponseEnvelope{Kind: ContentJSON, Status: 200, JSON: raw}
}

// Router answers the live endpoint contract from an alternate data source.
// Implementations match on method and path only; query strings are ignored.
type Router interface {
	Route(ctx context.Context, method, path string, payload any) (*ResponseEnvelope, error)
}
