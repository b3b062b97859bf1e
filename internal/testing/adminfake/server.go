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

// Package adminfake serves an in-memory admin API over httptest.
//
// The server issues signed tokens, enforces bearer auth on every data
// route and keeps workers, documents and clients in memory. Tests seed
// it with Add* and inspect it with the accessors.
package adminfake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tombee/reviewdesk/pkg/adminapi"
)

// Default credentials accepted by the token endpoint.
const (
	Username   = "reviewer"
	Password   = "secret"
	ReviewerID = 42
)

var signingKey = []byte("adminfake")

// Request is one request the server received.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type failure struct {
	status int
	body   string
}

// Server is a fake admin API.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	workers   map[string]*adminapi.Worker
	order     []string
	documents map[string]*adminapi.Collection
	customers []adminapi.Customer
	access    map[string]bool
	refresh   map[string]bool
	requests  []Request
	failures  map[string][]failure
	issued    int
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		workers:   make(map[string]*adminapi.Worker),
		documents: make(map[string]*adminapi.Collection),
		access:    make(map[string]bool),
		refresh:   make(map[string]bool),
		failures:  make(map[string][]failure),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/token/", s.handleLogin)
	mux.HandleFunc("POST /api/auth/token/refresh/", s.handleRefresh)

	mux.HandleFunc("GET /api/documents/pending/", s.authed(s.handlePending))
	mux.HandleFunc("GET /api/documents/worker/{id}/", s.authed(s.handleWorkerDocuments))
	mux.HandleFunc("GET /api/documents/worker/{id}/check-requirements/", s.authed(s.handleRequirements))
	mux.HandleFunc("POST /api/documents/approve/", s.authed(s.handleReview(adminapi.StatusApproved)))
	mux.HandleFunc("POST /api/documents/reject/", s.authed(s.handleReview(adminapi.StatusRejected)))
	mux.HandleFunc("DELETE /api/documents/delete/", s.authed(s.handleDelete))
	mux.HandleFunc("GET /api/documents/file-url/", s.authed(s.handleFileURL))

	mux.HandleFunc("GET /api/workers/", s.authed(s.handleWorkers))
	mux.HandleFunc("GET /api/workers/statistics/", s.authed(s.handleWorkerStatistics))
	mux.HandleFunc("GET /api/workers/{id}/", s.authed(s.handleWorker))
	mux.HandleFunc("POST /api/workers/", s.authed(s.handleCreateWorker))
	mux.HandleFunc("PATCH /api/workers/{id}/", s.authed(s.handlePatchWorker))
	mux.HandleFunc("DELETE /api/workers/{id}/", s.authed(s.handleDeleteWorker))
	mux.HandleFunc("PATCH /api/workers/{id}/availability/", s.authed(s.handleWorkerFlag("isAvailable")))
	mux.HandleFunc("PATCH /api/workers/{id}/online_status/", s.authed(s.handleWorkerFlag("isOnline")))
	mux.HandleFunc("PATCH /api/workers/{id}/verification_status/", s.authed(s.handleVerification))

	mux.HandleFunc("GET /api/clients/", s.authed(s.handleClients))
	mux.HandleFunc("GET /api/clients/count/", s.authed(s.handleClientCount))
	mux.HandleFunc("GET /api/clients/{id}/", s.authed(s.handleClient))

	mux.HandleFunc("GET /api/dashboard/stats", s.authed(s.handleDashboard))

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// AddWorker seeds a worker.
func (s *Server) AddWorker(w adminapi.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workers[w.ID]; !ok {
		s.order = append(s.order, w.ID)
	}
	s.workers[w.ID] = &w
}

// AddDocument seeds a document into its worker's collection.
// Certifications are keyed by document ID.
func (s *Server) AddDocument(d adminapi.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(d.WorkerID)
	switch d.Category {
	case adminapi.CategoryCV:
		c.CV = &d
	case adminapi.CategoryBackgroundCheck:
		c.BackgroundCheck = &d
	case adminapi.CategoryCertifications:
		slot := s.certSlot(c, d.Subcategory)
		(*slot)[d.ID] = &d
	}
}

// AddCustomer seeds a client account.
func (s *Server) AddCustomer(c adminapi.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = append(s.customers, c)
}

// Document returns a copy of a stored document, or nil.
func (s *Server) Document(workerID, id string) *adminapi.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.find(workerID, id)
	if d == nil {
		return nil
	}
	out := *d
	return &out
}

// Worker returns a copy of a stored worker, or nil.
func (s *Server) Worker(id string) *adminapi.Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return nil
	}
	out := *w
	return &out
}

// ExpireTokens invalidates every issued access token. Refresh tokens
// stay valid.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefresh invalidates every issued refresh token.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// FailNext makes the next request to path answer status with body.
// Calls queue.
func (s *Server) FailNext(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], failure{status: status, body: body})
}

// Requests returns everything received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// record logs the request and serves any injected failure.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
		var injected *failure
		if queue := s.failures[r.URL.Path]; len(queue) > 0 {
			injected = &queue[0]
			s.failures[r.URL.Path] = queue[1:]
		}
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-ID", fmt.Sprintf("fake-%d", len(s.Requests())))
		if injected != nil {
			w.WriteHeader(injected.status)
			fmt.Fprint(w, injected.body)
			return
		}

		r = r.WithContext(withBody(r.Context(), body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		valid := ok && s.access[token]
		s.mu.Unlock()
		if !valid {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		h(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r)
	if body["username"] != Username || body["password"] != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "No active account found with the given credentials"})
		return
	}
	access, refresh := s.Issue()
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, _ := bodyFrom(r)["refresh"].(string)
	s.mu.Lock()
	valid := s.refresh[token]
	if valid {
		delete(s.refresh, token)
	}
	s.mu.Unlock()
	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	access, refresh := s.Issue()
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

// Issue signs a new token pair for the reviewer.
func (s *Server) Issue() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    ReviewerID,
		"username":   Username,
		"email":      "reviewer@example.com",
		"first_name": "Rita",
		"exp":        time.Now().Add(time.Hour).Unix(),
		"jti":        fmt.Sprintf("access-%d", s.issued),
	}).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	refresh := fmt.Sprintf("refresh-%d", s.issued)
	s.access[access] = true
	s.refresh[refresh] = true
	return access, refresh
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func page[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(items), "data": items})
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": what + " not found"})
}
