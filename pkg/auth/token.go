// Package auth implements the authentication-token lifecycle: one token at
// a time, persisted in durable storage, with token-changed notifications.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Ghostified/autoexpress-dashboard/pkg/storage"
	"github.com/rs/zerolog"
)

// ChangeListener is invoked after every token transition. hasToken is true
// after Set and false after Clear.
type ChangeListener func(hasToken bool)

// TokenStore owns the current authentication credential. It holds at most
// one token at a time and persists it under storage.KeyAuthToken so the
// credential survives process restarts. The store never touches the network.
type TokenStore struct {
	store  storage.Store
	logger zerolog.Logger

	mu        sync.RWMutex
	token     string
	hasToken  bool
	listeners []ChangeListener
}

// NewTokenStore creates a TokenStore backed by the given storage and hydrates
// any previously persisted token.
func NewTokenStore(ctx context.Context, store storage.Store, logger zerolog.Logger) (*TokenStore, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	s := &TokenStore{
		store:  store,
		logger: logger.With().Str("component", "token-store").Logger(),
	}

	value, err := store.Get(ctx, storage.KeyAuthToken)
	switch {
	case err == nil:
		s.token = value
		s.hasToken = true
		s.logger.Debug().Msg("Restored persisted token")
	case errors.Is(err, storage.ErrNotFound):
		// No persisted token, start unauthenticated.
	default:
		return nil, fmt.Errorf("load persisted token: %w", err)
	}

	return s, nil
}

// Get returns the current token. The second return value is false when no
// token is held. Reads never mutate state.
func (s *TokenStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.hasToken
}

// Set persists token and notifies listeners with hasToken=true.
func (s *TokenStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if err := s.store.Set(ctx, storage.KeyAuthToken, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.hasToken = true
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Info().Msg("Token set")
	for _, fn := range listeners {
		fn(true)
	}
	return nil
}

// Clear removes the persisted token and notifies listeners with
// hasToken=false.
func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, storage.KeyAuthToken); err != nil {
		return fmt.Errorf("remove persisted token: %w", err)
	}

	s.mu.Lock()
	s.token = ""
	s.hasToken = false
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Info().Msg("Token cleared")
	for _, fn := range listeners {
		fn(false)
	}
	return nil
}

// OnChange registers a listener for token transitions. Listeners are scoped
// to this instance and invoked synchronously, once per transition.
func (s *TokenStore) OnChange(fn ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
