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
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tombee/reviewdesk/internal/credentials"
	rderrors "github.com/tombee/reviewdesk/pkg/errors"
)

func TestSession_SignedOut(t *testing.T) {
	s := NewSession(credentials.NewMemoryStore())
	ctx := context.Background()

	token, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	_, err = s.Identity(ctx)
	var nf *rderrors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = s.Token(ctx)
	assert.True(t, errors.As(err, &nf))
}

func TestSession_SaveDerivesIdentity(t *testing.T) {
	store := credentials.NewMemoryStore()
	s := NewSession(store)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signToken(t, jwt.MapClaims{"user_id": 3, "username": "rui", "exp": exp.Unix()})
	require.NoError(t, s.Save(ctx, &oauth2.Token{AccessToken: access, RefreshToken: "r-1"}, nil))

	id, err := s.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", id.ID)
	assert.Equal(t, "rui", id.Username)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, access, tok.AccessToken)
	assert.Equal(t, "r-1", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(exp))

	stored, err := store.Get(ctx, credentials.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "r-1", stored)
}

func TestSession_SaveExplicitIdentity(t *testing.T) {
	s := NewSession(credentials.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &oauth2.Token{AccessToken: "opaque", RefreshToken: "r"}, &Identity{ID: "9", Username: "mo"}))

	id, err := s.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mo", id.Username)
}

func TestSession_SaveRequiresAccessToken(t *testing.T) {
	s := NewSession(credentials.NewMemoryStore())
	err := s.Save(context.Background(), &oauth2.Token{RefreshToken: "r"}, nil)

	var ve *rderrors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestSession_RotateKeepsIdentity(t *testing.T) {
	store := credentials.NewMemoryStore()
	s := NewSession(store)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &oauth2.Token{AccessToken: "a-1", RefreshToken: "r-1"}, &Identity{ID: "1", Username: "ana"}))

	require.NoError(t, s.Rotate(ctx, &oauth2.Token{AccessToken: "a-2"}))

	token, _ := s.AccessToken(ctx)
	assert.Equal(t, "a-2", token)
	refresh, _ := s.RefreshToken(ctx)
	assert.Equal(t, "r-1", refresh)
	id, err := s.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana", id.Username)

	require.NoError(t, s.Rotate(ctx, &oauth2.Token{AccessToken: "a-3", RefreshToken: "r-2"}))
	refresh, _ = s.RefreshToken(ctx)
	assert.Equal(t, "r-2", refresh)
}

func TestSession_Clear(t *testing.T) {
	store := credentials.NewMemoryStore()
	s := NewSession(store)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}, &Identity{ID: "1"}))

	require.NoError(t, s.Clear(ctx))

	for _, key := range []string{credentials.KeyAccessToken, credentials.KeyRefreshToken, credentials.KeyUser} {
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, credentials.ErrNotFound, key)
	}
	token, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	// Clearing twice is harmless.
	assert.NoError(t, s.Clear(ctx))
}

func TestSession_StoreFailure(t *testing.T) {
	boom := errors.New("keychain locked")
	s := NewSession(&failingStore{err: boom})

	_, err := s.AccessToken(context.Background())
	assert.ErrorIs(t, err, boom)

	err = s.Clear(context.Background())
	assert.ErrorIs(t, err, boom)
}

type failingStore struct{ err error }

func (f *failingStore) Get(context.Context, string) (string, error) { return "", f.err }
func (f *failingStore) Set(context.Context, string, string) error   { return f.err }
func (f *failingStore) Remove(context.Context, string) error        { return f.err }
