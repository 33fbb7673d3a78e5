// Package storage provides durable key-value persistence for client-side
// state: the auth token, the mock-mode flag, and the user-preference object.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = errors.New("storage: key not found")
)

// Well-known keys for persisted client state.
const (
	// KeyAuthToken holds the current authentication token.
	KeyAuthToken = "autoexpress:auth_token"

	// KeyMockMode holds the persisted mock-mode preference ("true"/"false").
	KeyMockMode = "autoexpress:mock_mode"

	// KeyUserPreferences holds the serialized user-preference object.
	KeyUserPreferences = "autoexpress:user_preferences"
)

// Store is a durable key-value store. Values are opaque strings; callers
// serialize structured state (JSON) before storing it.
type Store interface {
	// Get retrieves the value for key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
