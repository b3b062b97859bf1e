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
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tombee/reviewdesk/internal/credentials"
	"github.com/tombee/reviewdesk/pkg/apierror"
	"github.com/tombee/reviewdesk/pkg/auth"
	rderrors "github.com/tombee/reviewdesk/pkg/errors"
	"github.com/tombee/reviewdesk/pkg/httpclient"
	"github.com/tombee/reviewdesk/pkg/notify"
)

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Notify(_ context.Context, ev notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Event(nil), s.events...)
}

type fixture struct {
	client  *Client
	session *auth.Session
	sink    *recordingSink
	hits    *atomic.Int32
}

// newFixture serves handler and returns a client wired through a real
// pipeline with no retries.
func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	session := auth.NewSession(credentials.NewMemoryStore())
	sink := &recordingSink{}

	cfg := httpclient.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.AttemptTimeout = 2 * time.Second
	cfg.Retry.MaxRetries = 0

	p, err := httpclient.New(cfg,
		httpclient.WithTokenSource(session),
		httpclient.WithSink(sink),
		httpclient.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	return &fixture{client: New(p, session, Options{}), session: session, sink: sink, hits: &hits}
}

func accessToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	tok := &oauth2.Token{AccessToken: accessToken(t, jwt.MapClaims{"user_id": 42, "username": "reviewer"}), RefreshToken: "refresh-1"}
	require.NoError(t, f.session.Save(context.Background(), tok, nil))
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestLogin_StoresSession(t *testing.T) {
	access := accessToken(t, jwt.MapClaims{"user_id": 7, "email": "ana@example.com", "first_name": "Ana"})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/token/", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		body := decodeBody(t, r)
		assert.Equal(t, "ana", body["username"])
		assert.Equal(t, "s3cret", body["password"])
		json.NewEncoder(w).Encode(map[string]string{"access": access, "refresh": "refresh-9"})
	})

	ctx := context.Background()
	id, err := f.client.Auth.Login(ctx, " ana ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "7", id.ID)
	assert.Equal(t, "ana", id.Username)

	got, err := f.session.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, access, got)
	refresh, err := f.session.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-9", refresh)

	ok, err := f.client.Auth.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	current, err := f.client.Auth.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", current.Email)

	require.NoError(t, f.client.Auth.Logout(ctx))
	ok, err = f.client.Auth.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogin_Validation(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := f.client.Auth.Login(context.Background(), "  ", "pw")
	var verr *rderrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "username", verr.Field)

	_, err = f.client.Auth.Login(context.Background(), "ana", "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)

	assert.Zero(t, f.hits.Load())
}

func TestLogin_RejectedCredentials(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
	})

	_, err := f.client.Auth.Login(context.Background(), "ana", "wrong")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeUnauthorized))
	assert.Equal(t, int32(1), f.hits.Load())

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "/login", events[0].Context.Route)
	assert.Equal(t, "login", events[0].Context.Action)
}

func TestFetch_EnvelopeFailure(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"stats unavailable"}`))
	})

	_, err := f.client.Dashboard.Stats(context.Background())
	var eerr *EnvelopeError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, "stats unavailable", eerr.Error())
}

func TestFetch_EmptyData(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	})

	_, err := f.client.Workers.Get(context.Background(), "w1")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestDocuments_ApproveSendsReviewer(t *testing.T) {
	var body map[string]any
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/documents/approve/", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		body = decodeBody(t, r)
		w.Write([]byte(`{"success":true,"message":"approved"}`))
	})
	f.signIn(t)

	err := f.client.Documents.Approve(context.Background(), DocumentRef{
		WorkerID:   "w1",
		Category:   CategoryCV,
		DocumentID: "d1",
	})
	require.NoError(t, err)
	assert.Equal(t, "w1", body["workerId"])
	assert.Equal(t, "hojaDeVida", body["category"])
	assert.Nil(t, body["subcategory"])
	assert.Equal(t, "d1", body["documentId"])
	assert.Equal(t, "42", body["reviewerId"])
}

func TestDocuments_RejectRequiresReason(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	f.signIn(t)

	err := f.client.Documents.Reject(context.Background(), DocumentRef{
		WorkerID:    "w1",
		Category:    CategoryCertifications,
		Subcategory: SubcategoryLetters,
		DocumentID:  "carta1",
	}, "   ")
	var verr *rderrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reason", verr.Field)
	assert.Zero(t, f.hits.Load())
}

func TestDocuments_RejectSendsReason(t *testing.T) {
	var body map[string]any
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/reject/", r.URL.Path)
		body = decodeBody(t, r)
		w.Write([]byte(`{"success":true}`))
	})
	f.signIn(t)

	err := f.client.Documents.Reject(context.Background(), DocumentRef{
		WorkerID:    "w1",
		Category:    CategoryCertifications,
		Subcategory: SubcategoryLetters,
		DocumentID:  "carta1",
	}, "illegible")
	require.NoError(t, err)
	assert.Equal(t, "cartasRecomendacion", body["subcategory"])
	assert.Equal(t, "illegible", body["reason"])
}

func TestDocuments_RefValidation(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	err := f.client.Documents.Delete(context.Background(), DocumentRef{WorkerID: "w1", Category: CategoryCertifications, DocumentID: "t1"})
	var verr *rderrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "subcategory", verr.Field)
	assert.Zero(t, f.hits.Load())
}

func TestDocuments_ForWorker(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/worker/w1/", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{
			"hojaDeVida":{"id":"cv","workerId":"w1","category":"hojaDeVida","status":"approved","uploadedAt":1700000000000},
			"certificaciones":{
				"titulos":{"b":{"id":"t2","status":"pending"},"a":{"id":"t1","status":"pending"}},
				"cartasRecomendacion":{"c1":{"id":"l1","status":"rejected"}}
			}
		}}`))
	})

	c, err := f.client.Documents.ForWorker(context.Background(), "w1")
	require.NoError(t, err)
	require.NotNil(t, c.CV)
	assert.Nil(t, c.BackgroundCheck)
	assert.Equal(t, StatusApproved, c.CV.Status)
	assert.Equal(t, int64(1700000000), c.CV.UploadedAt.Time().Unix())

	var ids []string
	for _, d := range c.All() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"cv", "t1", "t2", "l1"}, ids)
}

func TestDocuments_NotFoundIsHandled(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"worker has no documents"}`))
	})
	ctx := context.Background()

	c, err := f.client.Documents.ForWorkerOrEmpty(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, c.All())

	reqs, err := f.client.Documents.Requirements(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, reqs.Complete)

	events := f.sink.Events()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.True(t, ev.Context.Handles(apierror.CodeNotFound))
	}

	_, err = f.client.Documents.ForWorker(ctx, "w1")
	assert.True(t, apierror.HasCode(err, apierror.CodeNotFound))
	require.Len(t, f.sink.Events(), 3)
	assert.False(t, f.sink.Events()[2].Context.Handles(apierror.CodeNotFound))
}

func TestDocuments_FileURL(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "w1", q.Get("workerId"))
		assert.Equal(t, "certificaciones", q.Get("category"))
		assert.Equal(t, "titulos", q.Get("subcategory"))
		assert.Equal(t, "degree.pdf", q.Get("filename"))
		w.Write([]byte(`{"success":true,"data":{"url":"https://files.example.com/degree.pdf"}}`))
	})

	u, err := f.client.Documents.FileURL(context.Background(), "w1", CategoryCertifications, SubcategoryDegrees, "degree.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/degree.pdf", u)
}

func TestWorkers_ListFilters(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "plumber", q.Get("category"))
		assert.Equal(t, "true", q.Get("available"))
		assert.False(t, q.Has("online"))
		assert.Equal(t, "ana", q.Get("search"))
		w.Write([]byte(`{"success":true,"count":12,"next":"/api/workers/?page=2","data":[
			{"id":"w1","name":"Ana","lastName":"Diaz","verificationStatus":{"status":"documents_submitted","submittedAt":1700000000000}}
		]}`))
	})

	available := true
	p, err := f.client.Workers.List(context.Background(), WorkerFilters{Category: "plumber", Available: &available, Search: "ana"})
	require.NoError(t, err)
	assert.Equal(t, 12, p.Count)
	assert.True(t, p.HasNext)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "Ana Diaz", p.Items[0].FullName())
	assert.Equal(t, VerificationSubmitted, p.Items[0].Verification.Status)
}

func TestWorkers_SetVerificationStatus(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/workers/w1/verification_status/", r.URL.Path)
		assert.Equal(t, "approved", decodeBody(t, r)["status"])
		w.Write([]byte(`{"success":true}`))
	})
	ctx := context.Background()

	require.NoError(t, f.client.Workers.SetVerificationStatus(ctx, "w1", VerificationApproved))

	err := f.client.Workers.SetVerificationStatus(ctx, "w1", VerificationSubmitted)
	var verr *rderrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestWorkers_CreateSendsInput(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/workers/", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "ana@example.com", body["email"])
		assert.Equal(t, 25.0, body["pricePerHour"])
		assert.NotContains(t, body, "latitude")
		assert.NotContains(t, body, "phone")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"data":{"id":"w9","name":"Ana","lastName":"Ruiz","email":"ana@example.com","work":"plumbing"}}`))
	})

	price := 25.0
	wk, err := f.client.Workers.Create(context.Background(), WorkerInput{
		ID: "w9", Name: "Ana", LastName: "Ruiz", Email: "ana@example.com", Work: "plumbing", PricePerHour: &price,
	})
	require.NoError(t, err)
	assert.Equal(t, "w9", wk.ID)
}

func TestWorkers_CreateRequiresFields(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := f.client.Workers.Create(context.Background(), WorkerInput{ID: "w9", Name: "Ana", LastName: "Ruiz", Work: "plumbing"})
	var verr *rderrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)
	assert.Zero(t, f.hits.Load())
}

func TestWorkers_CreateSurfacesFieldErrors(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"email":["A worker with this email already exists."],"pricePerHour":["Ensure this value is greater than or equal to 0."]}`))
	})

	_, err := f.client.Workers.Create(context.Background(), WorkerInput{
		ID: "w9", Name: "Ana", LastName: "Ruiz", Email: "ana@example.com", Work: "plumbing",
	})
	ce, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeBadRequest, ce.Code())
	assert.Equal(t, map[string]string{
		"email":        "A worker with this email already exists.",
		"pricePerHour": "Ensure this value is greater than or equal to 0.",
	}, ce.FieldMap())
	assert.Len(t, f.sink.Events(), 1)
}

func TestWorkers_PatchSendsOnlySetFields(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/workers/w1/", r.URL.Path)
		assert.Equal(t, map[string]any{"phone": "555-0101", "isAvailable": false}, decodeBody(t, r))
		w.Write([]byte(`{"success":true}`))
	})
	ctx := context.Background()

	phone, available := "555-0101", false
	require.NoError(t, f.client.Workers.Patch(ctx, "w1", WorkerPatch{Phone: &phone, IsAvailable: &available}))

	var verr *rderrors.ValidationError
	require.ErrorAs(t, f.client.Workers.Patch(ctx, "w1", WorkerPatch{}), &verr)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestWorkers_DeleteAcceptsNoContent(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/workers/w1/", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, f.client.Workers.Delete(context.Background(), "w1"))
}

func TestWorkers_StatusToggles(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		mu.Lock()
		seen = append(seen, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/api/workers/w1/availability/":
			assert.Equal(t, map[string]any{"isAvailable": true}, body)
		case "/api/workers/w1/online_status/":
			assert.Equal(t, map[string]any{"isOnline": false}, body)
		}
		w.Write([]byte(`{"success":true}`))
	})
	ctx := context.Background()

	require.NoError(t, f.client.Workers.SetAvailability(ctx, "w1", true))
	require.NoError(t, f.client.Workers.SetOnline(ctx, "w1", false))
	assert.Equal(t, []string{"/api/workers/w1/availability/", "/api/workers/w1/online_status/"}, seen)

	var verr *rderrors.ValidationError
	require.ErrorAs(t, f.client.Workers.SetOnline(ctx, " ", true), &verr)
}

func TestClients_Count(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/clients/count/", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{"count":31}}`))
	})

	n, err := f.client.Clients.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 31, n)
}

func TestRoutePropagatesToEvents(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	ctx := WithRoute(context.Background(), "/workers")
	_, err := f.client.Clients.List(ctx, "x")
	require.Error(t, err)

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "/workers", events[0].Context.Route)
	assert.Equal(t, "list_clients", events[0].Context.Action)
	assert.Equal(t, apierror.CodeForbidden, events[0].Err.Code())
}
