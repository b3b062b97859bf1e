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

package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/reviewdesk/internal/tracing"
	"github.com/tombee/reviewdesk/pkg/apierror"
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

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type staticTokens string

func (s staticTokens) AccessToken(context.Context) (string, error) { return string(s), nil }

type fakeRefresher struct {
	calls  atomic.Int32
	token  string
	err    error
	origin string
}

func (f *fakeRefresher) Await(_ context.Context, cause *apierror.Error, origin string) (string, error) {
	f.calls.Add(1)
	f.origin = origin
	if f.err != nil {
		return "", f.err
	}
	if f.token == "" {
		return "", cause
	}
	return f.token, nil
}

// scripted replies with the given statuses in order, repeating the last.
func scripted(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statuses[n])
		_, _ = w.Write([]byte(`{"success":true,"data":{"ok":true}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestPipeline(t *testing.T, baseURL string, opts ...Option) (*Pipeline, *recordingSink, *recordingSleeper) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.AttemptTimeout = 2 * time.Second

	sink := &recordingSink{}
	sleeper := &recordingSleeper{}
	all := append([]Option{
		WithSink(sink),
		WithSleeper(sleeper.Sleep),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)

	p, err := New(cfg, all...)
	require.NoError(t, err)
	return p, sink, sleeper
}

func TestPipeline_TransientServiceUnavailable(t *testing.T) {
	srv, hits := scripted(t, http.StatusServiceUnavailable)
	p, sink, sleeper := newTestPipeline(t, srv.URL)

	_, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/workers/", Route: "workers"})

	ce, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeServiceUnavailable, ce.Code())
	assert.EqualValues(t, 4, hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.Delays())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Same(t, ce, events[0].Err)
	assert.Equal(t, "workers", events[0].Context.Route)
}

func TestPipeline_RecoversAfterTransientFailures(t *testing.T) {
	srv, hits := scripted(t, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK)
	p, sink, sleeper := newTestPipeline(t, srv.URL)

	resp, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/workers/"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, resp.Attempts)
	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Delays())
	assert.Empty(t, sink.Events())
}

func TestPipeline_ValidationIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","email"],"msg":"invalid email"}]}`))
	}))
	defer srv.Close()

	p, sink, sleeper := newTestPipeline(t, srv.URL)
	_, err := p.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/api/workers/", Body: map[string]string{"email": "nope"}})

	ce, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeValidation, ce.Code())
	assert.False(t, ce.Retryable())
	assert.Equal(t, []apierror.FieldError{{Field: "email", Message: "invalid email"}}, ce.FieldErrors())
	assert.EqualValues(t, 1, hits.Load())
	assert.Empty(t, sleeper.Delays())
	assert.Len(t, sink.Events(), 1)
}

func TestPipeline_RefreshAndReplay(t *testing.T) {
	var (
		mu    sync.Mutex
		auths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	refresher := &fakeRefresher{token: "fresh"}
	p, sink, _ := newTestPipeline(t, srv.URL, WithTokenSource(staticTokens("stale")), WithRefresher(refresher))

	var out struct {
		OK bool `json:"ok"`
	}
	err := p.DoJSON(context.Background(), &Request{Method: http.MethodGet, Path: "/api/documents/pending/", Route: "documents"}, &out)
	require.NoError(t, err)

	assert.True(t, out.OK)
	assert.EqualValues(t, 1, refresher.calls.Load())
	assert.Equal(t, "documents", refresher.origin)
	assert.Equal(t, []string{"Bearer stale", "Bearer fresh"}, auths)
	assert.Empty(t, sink.Events())
}

func TestPipeline_NoInfiniteRefreshLoop(t *testing.T) {
	srv, hits := scripted(t, http.StatusUnauthorized)
	refresher := &fakeRefresher{token: "fresh-but-rejected"}
	p, sink, sleeper := newTestPipeline(t, srv.URL, WithTokenSource(staticTokens("stale")), WithRefresher(refresher))

	_, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/workers/"})

	assert.True(t, apierror.HasCode(err, apierror.CodeUnauthorized))
	assert.EqualValues(t, 1, refresher.calls.Load())
	assert.EqualValues(t, 2, hits.Load())
	assert.Empty(t, sleeper.Delays())
	assert.Len(t, sink.Events(), 1)
}

func TestPipeline_SkipRefresh(t *testing.T) {
	srv, hits := scripted(t, http.StatusUnauthorized)
	refresher := &fakeRefresher{token: "fresh"}
	p, sink, _ := newTestPipeline(t, srv.URL, WithRefresher(refresher))

	_, err := p.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/api/auth/token/", SkipAuth: true, SkipRefresh: true})

	assert.True(t, apierror.HasCode(err, apierror.CodeUnauthorized))
	assert.Zero(t, refresher.calls.Load())
	assert.EqualValues(t, 1, hits.Load())
	assert.Len(t, sink.Events(), 1)
}

func TestPipeline_RefreshFailureSurfacesOriginalError(t *testing.T) {
	srv, _ := scripted(t, http.StatusUnauthorized)
	refresher := &fakeRefresher{}
	p, sink, _ := newTestPipeline(t, srv.URL, WithTokenSource(staticTokens("stale")), WithRefresher(refresher))

	_, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/workers/"})

	ce, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeUnauthorized, ce.Code())
	assert.Equal(t, "/api/workers/", ce.Endpoint())
	events := sink.Events()
	require.Len(t, events, 1)
	assert.Same(t, ce, events[0].Err)
}

func TestPipeline_ResetBudgetAfterRefresh(t *testing.T) {
	statuses := []int{503, 503, 503, 401, 503, 200}

	t.Run("reset", func(t *testing.T) {
		srv, hits := scripted(t, statuses...)
		p, _, sleeper := newTestPipeline(t, srv.URL, WithRefresher(&fakeRefresher{token: "fresh"}))

		_, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
		require.NoError(t, err)
		assert.EqualValues(t, 6, hits.Load())
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, time.Second}, sleeper.Delays())
	})

	t.Run("no reset", func(t *testing.T) {
		srv, hits := scripted(t, statuses...)
		cfg := DefaultConfig()
		cfg.BaseURL = srv.URL
		cfg.ResetBudgetAfterRefresh = false
		sleeper := &recordingSleeper{}
		p, err := New(cfg, WithRefresher(&fakeRefresher{token: "fresh"}), WithSleeper(sleeper.Sleep))
		require.NoError(t, err)

		_, err = p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
		assert.True(t, apierror.HasCode(err, apierror.CodeServiceUnavailable))
		assert.EqualValues(t, 5, hits.Load())
	})
}

func TestPipeline_RateLimitUsesRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, _, sleeper := newTestPipeline(t, srv.URL)
	resp, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []time.Duration{7 * time.Second}, sleeper.Delays())
}

func TestPipeline_NetworkFailureIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	p, sink, sleeper := newTestPipeline(t, addr)
	_, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})

	ce, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeNetwork, ce.Code())
	assert.Zero(t, ce.HTTPStatus())
	assert.Len(t, sleeper.Delays(), 3)
	assert.Len(t, sink.Events(), 1)
}

func TestPipeline_AttemptTimeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.AttemptTimeout = 50 * time.Millisecond
	cfg.Retry.MaxRetries = 1
	sleeper := &recordingSleeper{}
	p, err := New(cfg, WithSleeper(sleeper.Sleep))
	require.NoError(t, err)

	_, err = p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/slow"})
	assert.True(t, apierror.HasCode(err, apierror.CodeTimeout))
	assert.EqualValues(t, 2, hits.Load())
}

func TestPipeline_CancelDuringBackoff(t *testing.T) {
	srv, hits := scripted(t, http.StatusServiceUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	p, sink, _ := newTestPipeline(t, srv.URL, WithSleeper(sleeper))

	_, err := p.Do(ctx, &Request{Method: http.MethodGet, Path: "/x"})
	assert.True(t, apierror.HasCode(err, apierror.CodeCancelled))
	assert.EqualValues(t, 1, hits.Load())
	assert.Len(t, sink.Events(), 1)
}

func TestPipeline_CorrelationIDStableAcrossAttempts(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get(tracing.HeaderCorrelationID))
		n := len(ids)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	p, _, _ := newTestPipeline(t, srv.URL)
	resp, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	require.NoError(t, err)

	require.Len(t, ids, 3)
	assert.True(t, tracing.CorrelationID(ids[0]).IsValid())
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])
	assert.Equal(t, ids[0], resp.CorrelationID)

	_, err = p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], ids[3])
}

func TestPipeline_CorrelationIDFromContext(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(tracing.HeaderCorrelationID)
	}))
	defer srv.Close()

	id := tracing.NewCorrelationID()
	p, _, _ := newTestPipeline(t, srv.URL)
	_, err := p.Do(tracing.ToContext(context.Background(), id), &Request{Method: http.MethodGet, Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, id.String(), got)
}

func TestPipeline_RequestShape(t *testing.T) {
	var captured *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p, _, _ := newTestPipeline(t, srv.URL+"/", WithTokenSource(staticTokens("tok")))
	_, err := p.Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "api/documents/reject/",
		Query:  url.Values{"page": {"2"}},
		Body:   map[string]string{"document_id": "d1", "rejection_reason": "blurry"},
		Header: http.Header{"X-Extra": {"1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/documents/reject/", captured.URL.Path)
	assert.Equal(t, "2", captured.URL.Query().Get("page"))
	assert.Equal(t, "Bearer tok", captured.Header.Get("Authorization"))
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.Equal(t, "1", captured.Header.Get("X-Extra"))
	assert.Equal(t, "reviewdesk/1.0", captured.Header.Get("User-Agent"))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "blurry", decoded["rejection_reason"])
}

func TestPipeline_SkipAuthOmitsToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	p, _, _ := newTestPipeline(t, srv.URL, WithTokenSource(staticTokens("tok")))
	_, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x", SkipAuth: true})
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestPipeline_SpanEvents(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	srv, _ := scripted(t, http.StatusUnauthorized, http.StatusServiceUnavailable, http.StatusServiceUnavailable)
	p, _, _ := newTestPipeline(t, srv.URL,
		WithTracer(tp.Tracer("test")),
		WithRefresher(&fakeRefresher{token: "fresh"}),
	)
	p.cfg.Retry.MaxRetries = 1

	_, err := p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "api.request", span.Name)

	var names []string
	for _, ev := range span.Events {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "token_refresh")
	assert.Contains(t, names, "retry")
	assert.Equal(t, "service_unavailable", span.Status.Description)
}

func TestPipeline_ConcurrentRequestsEachNotifyOnce(t *testing.T) {
	srv, _ := scripted(t, http.StatusNotFound)
	p, sink, _ := newTestPipeline(t, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/missing"})
		}()
	}
	wg.Wait()

	events := sink.Events()
	require.Len(t, events, 10)
	seen := map[string]bool{}
	for _, ev := range events {
		seen[ev.Err.RequestID()] = true
	}
	assert.Len(t, seen, 10)
}

func TestPipeline_UnencodableBodyIsClassified(t *testing.T) {
	srv, hits := scripted(t, http.StatusOK)
	p, sink, _ := newTestPipeline(t, srv.URL)

	_, err := p.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/api/workers/", Body: make(chan int)})

	ce, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeBadRequest, ce.Code())
	assert.Equal(t, "/api/workers/", ce.Endpoint())
	assert.EqualValues(t, 0, hits.Load())
	require.Len(t, sink.Events(), 1)
	assert.Same(t, ce, sink.Events()[0].Err)
}

func TestPipeline_PanickingSinkDoesNotEscape(t *testing.T) {
	srv, hits := scripted(t, http.StatusNotFound)
	var calls atomic.Int32
	p, _, _ := newTestPipeline(t, srv.URL, WithSink(notify.SinkFunc(func(context.Context, notify.Event) {
		calls.Add(1)
		panic("sink down")
	})))

	var err error
	require.NotPanics(t, func() {
		_, err = p.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/workers/missing/"})
	})

	ce, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeNotFound, ce.Code())
	assert.EqualValues(t, 1, hits.Load())
	assert.EqualValues(t, 1, calls.Load())
}

func TestResponse_Decode(t *testing.T) {
	var v map[string]any
	assert.Error(t, (&Response{}).Decode(&v))
	assert.Error(t, (&Response{Body: []byte("nope")}).Decode(&v))
	assert.NoError(t, (&Response{Body: []byte(`{"a":1}`)}).Decode(&v))
}

func TestSanitizeURL(t *testing.T) {
	u, _ := url.Parse("https://user:pw@files.example.com/doc.pdf?X-Amz-Signature=abc&token=t&page=1")
	got := sanitizeURL(u)
	assert.NotContains(t, got, "abc")
	assert.NotContains(t, got, "pw")
	assert.Contains(t, got, "page=1")
	assert.Equal(t, "", sanitizeURL(nil))
}
