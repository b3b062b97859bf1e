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
	"net/http"
	"net/url"
	"strings"

	rderrors "github.com/tombee/reviewdesk/pkg/errors"
)

// Customer is a client account of the platform.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Image     string    `json:"image,omitempty"`
	Timestamp Timestamp `json:"timestamp,omitempty"`
}

// ClientService reads client accounts.
type ClientService struct {
	doer Doer
}

// List returns clients, optionally filtered by a search term.
func (s *ClientService) List(ctx context.Context, search string) (*Page[Customer], error) {
	req := request(ctx, http.MethodGet, "/api/clients/", "list_clients")
	if search = strings.TrimSpace(search); search != "" {
		req.Query = url.Values{"search": {search}}
	}
	return list[Customer](ctx, s.doer, req)
}

// Get returns one client.
func (s *ClientService) Get(ctx context.Context, id string) (*Customer, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &rderrors.ValidationError{Field: "client_id", Message: "is required"}
	}
	return fetch[Customer](ctx, s.doer, request(ctx, http.MethodGet, "/api/clients/"+url.PathEscape(id)+"/", "get_client"))
}

// Count returns the number of clients. A response without data counts
// as zero.
func (s *ClientService) Count(ctx context.Context) (int, error) {
	var env envelope[struct {
		Count int `json:"count"`
	}]
	if err := s.doer.DoJSON(ctx, request(ctx, http.MethodGet, "/api/clients/count/", "count_clients"), &env); err != nil {
		return 0, err
	}
	if env.Data == nil {
		return 0, nil
	}
	return env.Data.Count, nil
}
