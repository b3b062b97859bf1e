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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/tombee/reviewdesk/internal/tracing"
	"github.com/tombee/reviewdesk/pkg/apierror"
	"github.com/tombee/reviewdesk/pkg/httpclient"
)

// DefaultRefreshPath is the token refresh endpoint.
const DefaultRefreshPath = "/api/auth/token/refresh/"

// Exchanger trades a refresh token for a new access token. A returned
// token with an empty RefreshToken keeps the stored refresh token.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// ExchangerFunc adapts a function to Exchanger.
type ExchangerFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// Exchange implements Exchanger.
func (f ExchangerFunc) Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return f(ctx, refreshToken)
}

// HTTPExchanger calls the refresh endpoint directly. It deliberately does
// not go through a Pipeline so a rejected refresh can never trigger
// another refresh.
type HTTPExchanger struct {
	client *http.Client
	url    string
	path   string
}

// NewHTTPExchanger creates an exchanger for cfg.BaseURL + path.
func NewHTTPExchanger(cfg httpclient.Config, path string, logger *slog.Logger) *HTTPExchanger {
	if path == "" {
		path = DefaultRefreshPath
	}
	return &HTTPExchanger{
		client: httpclient.NewClient(cfg, logger),
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		path:   path,
	}
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Exchange implements Exchanger. Any non-2xx answer is a failure.
func (e *HTTPExchanger) Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, corrID := tracing.Ensure(ctx)

	body, err := json.Marshal(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apierror.Classify(&apierror.RequestError{Method: http.MethodPost, Endpoint: e.path, Err: err}, corrID.String())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apierror.Classify(&apierror.RequestError{Method: http.MethodPost, Endpoint: e.path, Err: err}, corrID.String())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		requestID := tracing.ServerRequestID(resp)
		if requestID == "" {
			requestID = corrID.String()
		}
		return nil, apierror.Classify(&apierror.ResponseError{
			Method:     http.MethodPost,
			Endpoint:   e.path,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       raw,
		}, requestID)
	}

	var out refreshResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid refresh response: %w", err)
	}
	if out.Access == "" {
		return nil, fmt.Errorf("refresh response has no access token")
	}

	tok := &oauth2.Token{AccessToken: out.Access, RefreshToken: out.Refresh, TokenType: "Bearer"}
	if claims, err := ParseClaims(out.Access); err == nil {
		tok.Expiry = claims.Expiry()
	}
	return tok, nil
}
