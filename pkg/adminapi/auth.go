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

package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/tombee/reviewdesk/pkg/auth"
	rderrors "github.com/tombee/reviewdesk/pkg/errors"
	"github.com/tombee/reviewdesk/pkg/httpclient"
)

// AuthService signs the operator in and out.
type AuthService struct {
	doer    Doer
	session *auth.Session
	path    string
	route   string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges credentials for a token pair and stores it with the
// identity decoded from the access token. A rejected login never triggers
// a token refresh.
func (s *AuthService) Login(ctx context.Context, username, password string) (*auth.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &rderrors.ValidationError{Field: "username", Message: "is required"}
	}
	if password == "" {
		return nil, &rderrors.ValidationError{Field: "password", Message: "is required"}
	}

	var pair tokenPair
	err := s.doer.DoJSON(ctx, &httpclient.Request{
		Method:      http.MethodPost,
		Path:        s.path,
		Body:        loginRequest{Username: username, Password: password},
		SkipAuth:    true,
		SkipRefresh: true,
		Route:       s.route,
		Action:      "login",
	}, &pair)
	if err != nil {
		return nil, err
	}
	if pair.Access == "" {
		return nil, fmt.Errorf("login response: %w", ErrEmptyResponse)
	}

	identity := &auth.Identity{Username: username}
	if claims, err := auth.ParseClaims(pair.Access); err == nil {
		identity = claims.Identity()
		if identity.Username == "" || identity.Username == identity.ID {
			identity.Username = username
		}
	}

	tok := &oauth2.Token{AccessToken: pair.Access, RefreshToken: pair.Refresh, TokenType: "Bearer"}
	if err := s.session.Save(ctx, tok, identity); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return identity, nil
}

// Logout clears the stored session. The server keeps no session state.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.session.Clear(ctx)
}

// Current returns the signed-in identity.
func (s *AuthService) Current(ctx context.Context) (*auth.Identity, error) {
	return s.session.Identity(ctx)
}

// IsAuthenticated reports whether an access token is stored.
func (s *AuthService) IsAuthenticated(ctx context.Context) (bool, error) {
	token, err := s.session.AccessToken(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}
