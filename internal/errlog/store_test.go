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

package errlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/reviewdesk/pkg/apierror"
	"github.com/tombee/reviewdesk/pkg/notify"
)

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "errors.db")
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func responseErr(status int, endpoint, body string) *apierror.Error {
	return apierror.Classify(&apierror.ResponseError{
		Method:     "POST",
		Endpoint:   endpoint,
		StatusCode: status,
		Body:       []byte(body),
	}, "req-1")
}

func TestStore_NotifyAndList(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	s.Notify(ctx, notify.Event{
		Err:     responseErr(422, "/api/documents/reject/", `{"errors":{"reason":["This field is required."]}}`),
		Context: notify.Context{Route: "/documents", Action: "reject"},
	})
	s.Notify(ctx, notify.Event{Err: responseErr(503, "/api/workers/", ``)})
	require.NoError(t, s.Flush(ctx))

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, apierror.CodeServiceUnavailable, entries[0].Code)
	assert.True(t, entries[0].Retryable)

	rejected := entries[1]
	assert.Equal(t, apierror.CodeValidation, rejected.Code)
	assert.Equal(t, apierror.CategoryValidation, rejected.Category)
	assert.Equal(t, apierror.SeverityMedium, rejected.Severity)
	assert.Equal(t, 422, rejected.HTTPStatus)
	assert.Equal(t, "/documents", rejected.Route)
	assert.Equal(t, "reject", rejected.Action)
	assert.Equal(t, "req-1", rejected.RequestID)
	assert.Equal(t, "POST", rejected.Method)
	require.Len(t, rejected.FieldErrors, 1)
	assert.Equal(t, "reason", rejected.FieldErrors[0].Field)
	assert.False(t, rejected.Timestamp.IsZero())
}

func TestStore_PrunesOldest(t *testing.T) {
	s := openTestStore(t, Config{MaxEntries: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Notify(ctx, notify.Event{Err: responseErr(404, fmt.Sprintf("/api/workers/%d/", i), ``)})
	}
	require.NoError(t, s.Flush(ctx))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "/api/workers/4/", entries[0].Endpoint)
	assert.Equal(t, "/api/workers/2/", entries[2].Endpoint)
}

func TestStore_Summary(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	s.Notify(ctx, notify.Event{Err: responseErr(500, "/a", ``)})
	s.Notify(ctx, notify.Event{Err: responseErr(500, "/b", ``)})
	s.Notify(ctx, notify.Event{Err: responseErr(403, "/c", ``)})
	require.NoError(t, s.Flush(ctx))

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.ByCode[string(apierror.CodeInternalServer)])
	assert.Equal(t, 1, sum.ByCode[string(apierror.CodeForbidden)])
	assert.Equal(t, 1, sum.ByCategory[string(apierror.CategoryAuthorization)])
	require.NotEmpty(t, sum.Recent)
	assert.Equal(t, "/c", sum.Recent[0].Endpoint)
}

func TestStore_Clear(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	s.Notify(ctx, notify.Event{Err: responseErr(500, "/a", ``)})
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Clear(ctx))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first, err := Open(Config{Path: path, Logger: logger})
	require.NoError(t, err)
	first.Notify(context.Background(), notify.Event{Err: responseErr(409, "/api/clients/", ``)})
	require.NoError(t, first.Close())

	second := openTestStore(t, Config{Path: path})
	entries, err := second.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, apierror.CodeConflict, entries[0].Code)
}

func TestStore_NotifyNeverBlocks(t *testing.T) {
	s := openTestStore(t, Config{Buffer: 1})
	ctx := context.Background()

	// Far more events than the queue holds; excess is dropped, not blocked on.
	for i := 0; i < 500; i++ {
		s.Notify(ctx, notify.Event{Err: responseErr(500, "/a", ``)})
	}
	require.NoError(t, s.Flush(ctx))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	assert.LessOrEqual(t, len(entries), DefaultMaxEntries)
}

func TestStore_IgnoresEmptyEventAndClosed(t *testing.T) {
	s := openTestStore(t, Config{})
	s.Notify(context.Background(), notify.Event{})
	require.NoError(t, s.Close())

	// After Close, Notify and Flush are no-ops.
	s.Notify(context.Background(), notify.Event{Err: responseErr(500, "/a", ``)})
	assert.NoError(t, s.Flush(context.Background()))
	assert.NoError(t, s.Close())
}
