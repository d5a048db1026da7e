// Package store persists the session's tokens and cached profile across restarts.
// It holds no validation or expiry logic; see internal/session for that.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"commenthub/pkg/logger"
	"commenthub/pkg/models"
)

// Fixed keys under which the session is persisted
const (
	KeyAccessToken  = "auth_access_token"
	KeyRefreshToken = "auth_refresh_token"
	KeyUser         = "auth_user"
)

// Backend is a durable string key/value map. Set must not return before the
// value is durable.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Store exposes typed accessors over a Backend
type Store struct {
	backend Backend
}

// New wraps a backend
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// AccessToken returns the persisted access token, or "" when none is stored
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

// SetAccessToken
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	return s.backend.Set(ctx, KeyAccessToken, token)
}

// RefreshToken returns the persisted refresh token, or "" when none is stored
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

// SetRefreshToken
func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	return s.backend.Set(ctx, KeyRefreshToken, token)
}

// User returns the cached profile, or nil when none is stored
func (s *Store) User(ctx context.Context) (*models.User, error) {
	raw, err := s.get(ctx, KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}
	return &u, nil
}

// SetUser
func (s *Store) SetUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	return s.backend.Set(ctx, KeyUser, string(data))
}

// Record is the whole persisted session
type Record struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

// Save writes rec. If a write fails the previous record is put back, so the
// store never pairs tokens or a profile from two different sessions.
func (s *Store) Save(ctx context.Context, rec Record) error {
	var prev Record
	var err error
	if prev.AccessToken, err = s.AccessToken(ctx); err != nil {
		return err
	}
	if prev.RefreshToken, err = s.RefreshToken(ctx); err != nil {
		return err
	}
	// an unreadable profile is not worth restoring
	prev.User, _ = s.User(ctx)

	if err := s.write(ctx, rec); err != nil {
		if rerr := s.write(ctx, prev); rerr != nil {
			logger.Warnf("Restoring previous session failed, clearing store: %v", rerr)
			if cerr := s.Clear(ctx); cerr != nil {
				logger.Errorf("Failed to clear store: %v", cerr)
			}
		}
		return err
	}
	return nil
}

func (s *Store) write(ctx context.Context, rec Record) error {
	if err := s.setOrDelete(ctx, KeyAccessToken, rec.AccessToken); err != nil {
		return err
	}
	if err := s.setOrDelete(ctx, KeyRefreshToken, rec.RefreshToken); err != nil {
		return err
	}
	if rec.User == nil {
		return s.backend.Delete(ctx, KeyUser)
	}
	return s.SetUser(ctx, rec.User)
}

func (s *Store) setOrDelete(ctx context.Context, key, value string) error {
	if value == "" {
		return s.backend.Delete(ctx, key)
	}
	return s.backend.Set(ctx, key, value)
}

// Clear removes the tokens and the cached profile
func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyUser)
}

// HasTokens reports whether both an access and a refresh token are stored
func (s *Store) HasTokens(ctx context.Context) (bool, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return false, err
	}
	refresh, err := s.RefreshToken(ctx)
	if err != nil {
		return false, err
	}
	return access != "" && refresh != "", nil
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}
