// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/tombee/reviewdesk/internal/credentials"
	rderrors "github.com/tombee/reviewdesk/pkg/errors"
)

// Session reads and writes the stored tokens and identity. It satisfies
// httpclient.TokenSource.
type Session struct {
	store credentials.Store

	mu     sync.RWMutex
	access string
	cached bool
}

// NewSession creates a session over store.
func NewSession(store credentials.Store) *Session {
	return &Session{store: store}
}

// AccessToken returns the stored access token, or "" when signed out.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.cached {
		token := s.access
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	token, err := s.get(ctx, credentials.KeyAccessToken)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.access = token
	s.cached = true
	s.mu.Unlock()
	return token, nil
}

// RefreshToken returns the stored refresh token, or "" when none is stored.
func (s *Session) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, credentials.KeyRefreshToken)
}

// SetAccessToken persists a new access token and updates the cache.
func (s *Session) SetAccessToken(ctx context.Context, token string) error {
	if err := s.store.Set(ctx, credentials.KeyAccessToken, token); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	s.mu.Lock()
	s.access = token
	s.cached = true
	s.mu.Unlock()
	return nil
}

// Save persists a token pair and the identity. A nil identity is derived
// from the access token claims when possible.
func (s *Session) Save(ctx context.Context, tok *oauth2.Token, identity *Identity) error {
	if tok == nil || tok.AccessToken == "" {
		return &rderrors.ValidationError{Field: "access", Message: "token response has no access token"}
	}

	if identity == nil {
		if claims, err := ParseClaims(tok.AccessToken); err == nil {
			identity = claims.Identity()
		}
	}

	if tok.RefreshToken != "" {
		if err := s.store.Set(ctx, credentials.KeyRefreshToken, tok.RefreshToken); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
	}
	if identity != nil {
		raw, err := json.Marshal(identity)
		if err != nil {
			return fmt.Errorf("failed to encode identity: %w", err)
		}
		if err := s.store.Set(ctx, credentials.KeyUser, string(raw)); err != nil {
			return fmt.Errorf("failed to store identity: %w", err)
		}
	}
	return s.SetAccessToken(ctx, tok.AccessToken)
}

// Rotate stores the result of a refresh. The identity is left alone and
// the refresh token is replaced only when the server issued a new one.
func (s *Session) Rotate(ctx context.Context, tok *oauth2.Token) error {
	if tok.RefreshToken != "" {
		if err := s.store.Set(ctx, credentials.KeyRefreshToken, tok.RefreshToken); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
	}
	return s.SetAccessToken(ctx, tok.AccessToken)
}

// Identity returns the cached identity.
func (s *Session) Identity(ctx context.Context) (*Identity, error) {
	raw, err := s.get(ctx, credentials.KeyUser)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, &rderrors.NotFoundError{Resource: "session"}
	}

	var identity Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, fmt.Errorf("stored identity is corrupted: %w", err)
	}
	return &identity, nil
}

// Token returns the stored pair as an oauth2 token with the expiry taken
// from the access token claims.
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, &rderrors.NotFoundError{Resource: "session"}
	}
	refresh, err := s.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if claims, err := ParseClaims(access); err == nil {
		tok.Expiry = claims.Expiry()
	}
	return tok, nil
}

// Clear removes the tokens and identity. Every key is attempted even when
// an earlier removal fails.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.access = ""
	s.cached = true
	s.mu.Unlock()

	var errs []error
	for _, key := range []string{credentials.KeyAccessToken, credentials.KeyRefreshToken, credentials.KeyUser} {
		if err := s.store.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) get(ctx context.Context, key string) (string, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, credentials.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}
