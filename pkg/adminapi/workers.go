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
	"strconv"
	"strings"

	rderrors "github.com/tombee/reviewdesk/pkg/errors"
)

// VerificationState is a worker's overall verification outcome.
type VerificationState string

const (
	VerificationSubmitted VerificationState = "documents_submitted"
	VerificationApproved  VerificationState = "approved"
	VerificationRejected  VerificationState = "rejected"
)

// Verification is the worker's verification record.
type Verification struct {
	Status      VerificationState `json:"status"`
	SubmittedAt Timestamp         `json:"submittedAt,omitempty"`
}

// Worker is a service provider awaiting or holding verification.
type Worker struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	LastName      string        `json:"lastName"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone,omitempty"`
	Work          string        `json:"work"`
	IsAvailable   bool          `json:"isAvailable"`
	IsOnline      bool          `json:"isOnline"`
	Latitude      float64       `json:"latitude,omitempty"`
	Longitude     float64       `json:"longitude,omitempty"`
	Rating        float64       `json:"rating"`
	TotalRatings  int           `json:"totalRatings"`
	PricePerHour  float64       `json:"pricePerHour,omitempty"`
	Experience    string        `json:"experience,omitempty"`
	Description   string        `json:"description,omitempty"`
	Image         string        `json:"image,omitempty"`
	Timestamp     Timestamp     `json:"timestamp"`
	Verification  *Verification `json:"verificationStatus,omitempty"`
}

// FullName joins first and last name.
func (w *Worker) FullName() string {
	return strings.TrimSpace(w.Name + " " + w.LastName)
}

// WorkerFilters narrows List. Nil booleans are not sent.
type WorkerFilters struct {
	Category  string
	Available *bool
	Online    *bool
	Search    string
}

func (f WorkerFilters) query() url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Available != nil {
		q.Set("available", strconv.FormatBool(*f.Available))
	}
	if f.Online != nil {
		q.Set("online", strconv.FormatBool(*f.Online))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	return q
}

// WorkerStatistics summarizes the worker population.
type WorkerStatistics struct {
	Total      int            `json:"total"`
	Available  int            `json:"available"`
	Online     int            `json:"online"`
	Verified   int            `json:"verified"`
	ByCategory map[string]int `json:"by_category"`
}

// WorkerService manages workers and records verification outcomes.
type WorkerService struct {
	doer Doer
}

// List returns workers matching filters.
func (s *WorkerService) List(ctx context.Context, filters WorkerFilters) (*Page[Worker], error) {
	req := request(ctx, http.MethodGet, "/api/workers/", "list_workers")
	req.Query = filters.query()
	return list[Worker](ctx, s.doer, req)
}

// Get returns one worker.
func (s *WorkerService) Get(ctx context.Context, id string) (*Worker, error) {
	if err := requireWorkerID(id); err != nil {
		return nil, err
	}
	return fetch[Worker](ctx, s.doer, request(ctx, http.MethodGet, workerPath(id, ""), "get_worker"))
}

// Statistics returns population counts.
func (s *WorkerService) Statistics(ctx context.Context) (*WorkerStatistics, error) {
	return fetch[WorkerStatistics](ctx, s.doer, request(ctx, http.MethodGet, "/api/workers/statistics/", "worker_statistics"))
}

// SetVerificationStatus records the final verification decision.
func (s *WorkerService) SetVerificationStatus(ctx context.Context, id string, status VerificationState) error {
	if err := requireWorkerID(id); err != nil {
		return err
	}
	if status != VerificationApproved && status != VerificationRejected {
		return &rderrors.ValidationError{
			Field:   "status",
			Message: "must be approved or rejected",
		}
	}
	req := request(ctx, http.MethodPatch, workerPath(id, "verification_status/"), "set_verification_status")
	req.Body = map[string]VerificationState{"status": status}
	return send(ctx, s.doer, req)
}

// WorkerInput is a new worker. ID, Name, LastName, Email and Work are
// required.
type WorkerInput struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	LastName     string   `json:"lastName"`
	Email        string   `json:"email"`
	Work         string   `json:"work"`
	Phone        string   `json:"phone,omitempty"`
	Description  string   `json:"description,omitempty"`
	Experience   string   `json:"experience,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	PricePerHour *float64 `json:"pricePerHour,omitempty"`
}

func (in WorkerInput) validate() error {
	required := []struct{ field, value string }{
		{"id", in.ID},
		{"name", in.Name},
		{"lastName", in.LastName},
		{"email", in.Email},
		{"work", in.Work},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &rderrors.ValidationError{Field: r.field, Message: "is required"}
		}
	}
	return nil
}

// WorkerPatch changes the non-nil fields of a worker.
type WorkerPatch struct {
	Name         *string  `json:"name,omitempty"`
	LastName     *string  `json:"lastName,omitempty"`
	Email        *string  `json:"email,omitempty"`
	Work         *string  `json:"work,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Experience   *string  `json:"experience,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	PricePerHour *float64 `json:"pricePerHour,omitempty"`
	IsAvailable  *bool    `json:"isAvailable,omitempty"`
	IsOnline     *bool    `json:"isOnline,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p WorkerPatch) IsEmpty() bool {
	return p == WorkerPatch{}
}

func workerPath(id, suffix string) string {
	return "/api/workers/" + url.PathEscape(id) + "/" + suffix
}

func requireWorkerID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &rderrors.ValidationError{Field: "worker_id", Message: "is required"}
	}
	return nil
}

// Create registers a worker and returns it as stored.
func (s *WorkerService) Create(ctx context.Context, in WorkerInput) (*Worker, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	req := request(ctx, http.MethodPost, "/api/workers/", "create_worker")
	req.Body = in
	return fetch[Worker](ctx, s.doer, req)
}

// Patch applies a partial update.
func (s *WorkerService) Patch(ctx context.Context, id string, patch WorkerPatch) error {
	if err := requireWorkerID(id); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return &rderrors.ValidationError{Message: "no fields to update"}
	}
	req := request(ctx, http.MethodPatch, workerPath(id, ""), "patch_worker")
	req.Body = patch
	return send(ctx, s.doer, req)
}

// Delete removes a worker.
func (s *WorkerService) Delete(ctx context.Context, id string) error {
	if err := requireWorkerID(id); err != nil {
		return err
	}
	return send(ctx, s.doer, request(ctx, http.MethodDelete, workerPath(id, ""), "delete_worker"))
}

// SetAvailability marks the worker as taking jobs or not.
func (s *WorkerService) SetAvailability(ctx context.Context, id string, available bool) error {
	if err := requireWorkerID(id); err != nil {
		return err
	}
	req := request(ctx, http.MethodPatch, workerPath(id, "availability/"), "update_availability")
	req.Body = map[string]bool{"isAvailable": available}
	return send(ctx, s.doer, req)
}

// SetOnline records the worker's online state.
func (s *WorkerService) SetOnline(ctx context.Context, id string, online bool) error {
	if err := requireWorkerID(id); err != nil {
		return err
	}
	req := request(ctx, http.MethodPatch, workerPath(id, "online_status/"), "update_online_status")
	req.Body = map[string]bool{"isOnline": online}
	return send(ctx, s.doer, req)
}
