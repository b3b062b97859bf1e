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

package adminfake

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tombee/reviewdesk/pkg/adminapi"
)

type bodyKey struct{}

func withBody(ctx context.Context, body map[string]any) context.Context {
	return context.WithValue(ctx, bodyKey{}, body)
}

func bodyFrom(r *http.Request) map[string]any {
	body, _ := r.Context().Value(bodyKey{}).(map[string]any)
	if body == nil {
		return map[string]any{}
	}
	return body
}

func str(body map[string]any, key string) string {
	v, _ := body[key].(string)
	return v
}

// collection returns the worker's collection, creating it. Callers hold mu.
func (s *Server) collection(workerID string) *adminapi.Collection {
	c, ok := s.documents[workerID]
	if !ok {
		c = &adminapi.Collection{}
		s.documents[workerID] = c
	}
	return c
}

func (s *Server) certSlot(c *adminapi.Collection, sub adminapi.Subcategory) *map[string]*adminapi.Document {
	slot := &c.Certifications.Degrees
	if sub == adminapi.SubcategoryLetters {
		slot = &c.Certifications.Letters
	}
	if *slot == nil {
		*slot = make(map[string]*adminapi.Document)
	}
	return slot
}

func (s *Server) find(workerID, id string) *adminapi.Document {
	c, ok := s.documents[workerID]
	if !ok {
		return nil
	}
	for _, d := range c.All() {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var pending []adminapi.Document
	for _, id := range s.sortedDocumentOwners() {
		for _, d := range s.documents[id].All() {
			if d.Status == adminapi.StatusPending {
				pending = append(pending, *d)
			}
		}
	}
	s.mu.Unlock()
	page(w, pending)
}

func (s *Server) sortedDocumentOwners() []string {
	ids := make([]string, 0, len(s.documents))
	for id := range s.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) handleWorkerDocuments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, found := s.documents[r.PathValue("id")]
	if !found {
		notFound(w, "documents")
		return
	}
	ok(w, c)
}

func (s *Server) handleRequirements(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, found := s.documents[r.PathValue("id")]
	if !found {
		notFound(w, "documents")
		return
	}
	req := adminapi.Requirements{
		HasCV:              c.CV != nil,
		HasBackgroundCheck: c.BackgroundCheck != nil,
		HasDegree:          len(c.Certifications.Degrees) > 0,
		LetterCount:        len(c.Certifications.Letters),
	}
	req.HasMinimumLetters = req.LetterCount >= 2
	req.Complete = req.HasCV && req.HasBackgroundCheck && (req.HasDegree || req.HasMinimumLetters)
	ok(w, req)
}

func (s *Server) handleReview(status adminapi.DocumentStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := bodyFrom(r)
		if status == adminapi.StatusRejected && strings.TrimSpace(str(body, "reason")) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"reason": []string{"This field is required."}})
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		d := s.find(str(body, "workerId"), str(body, "documentId"))
		if d == nil {
			notFound(w, "document")
			return
		}
		d.Status = status
		d.ReviewedAt = adminapi.Timestamp(time.Now().UnixMilli())
		d.ReviewedBy = str(body, "reviewerId")
		d.RejectionReason = str(body, "reason")
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "document " + string(status)})
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, found := s.documents[str(body, "workerId")]
	id := str(body, "documentId")
	if !found || s.find(str(body, "workerId"), id) == nil {
		notFound(w, "document")
		return
	}
	switch {
	case c.CV != nil && c.CV.ID == id:
		c.CV = nil
	case c.BackgroundCheck != nil && c.BackgroundCheck.ID == id:
		c.BackgroundCheck = nil
	default:
		delete(c.Certifications.Degrees, id)
		delete(c.Certifications.Letters, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parts := []string{q.Get("workerId"), q.Get("category")}
	if sub := q.Get("subcategory"); sub != "" {
		parts = append(parts, sub)
	}
	parts = append(parts, q.Get("filename"))
	ok(w, map[string]string{"url": "https://files.example.com/" + strings.Join(parts, "/") + "?sig=fake"})
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.ToLower(q.Get("search"))

	s.mu.Lock()
	var out []adminapi.Worker
	for _, id := range s.order {
		wk := s.workers[id]
		if c := q.Get("category"); c != "" && !strings.EqualFold(wk.Work, c) {
			continue
		}
		if v := q.Get("available"); v != "" && (v == "true") != wk.IsAvailable {
			continue
		}
		if v := q.Get("online"); v != "" && (v == "true") != wk.IsOnline {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(wk.FullName()+" "+wk.Email), search) {
			continue
		}
		out = append(out, *wk)
	}
	s.mu.Unlock()
	page(w, out)
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	if wk := s.Worker(r.PathValue("id")); wk != nil {
		ok(w, wk)
		return
	}
	notFound(w, "worker")
}

// handleCreateWorker answers validation failures the way the API's
// serializers do: a map of field to messages.
func (s *Server) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r)
	fields := map[string][]string{}
	for _, key := range []string{"id", "name", "lastName", "email", "work"} {
		if strings.TrimSpace(str(body, key)) == "" {
			fields[key] = []string{"This field is required."}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(fields) == 0 {
		if _, taken := s.workers[str(body, "id")]; taken {
			writeJSON(w, http.StatusConflict, map[string]any{"detail": "A worker with this id already exists."})
			return
		}
		for _, wk := range s.workers {
			if strings.EqualFold(wk.Email, str(body, "email")) {
				fields["email"] = []string{"A worker with this email already exists."}
			}
		}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, fields)
		return
	}

	wk := &adminapi.Worker{ID: str(body, "id"), Timestamp: adminapi.Timestamp(time.Now().UnixMilli())}
	applyWorker(wk, body)
	s.workers[wk.ID] = wk
	s.order = append(s.order, wk.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": wk})
}

func (s *Server) handlePatchWorker(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	wk, found := s.workers[r.PathValue("id")]
	if !found {
		notFound(w, "worker")
		return
	}
	if email := str(body, "email"); email != "" {
		for id, other := range s.workers {
			if id != wk.ID && strings.EqualFold(other.Email, email) {
				writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"A worker with this email already exists."}})
				return
			}
		}
	}
	applyWorker(wk, body)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteWorker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.workers[id]; !found {
		notFound(w, "worker")
		return
	}
	delete(s.workers, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWorkerFlag sets one boolean worker field from the body key.
func (s *Server) handleWorkerFlag(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, isBool := bodyFrom(r)[key].(bool)
		if !isBool {
			writeJSON(w, http.StatusBadRequest, map[string][]string{key: {"Must be a valid boolean."}})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		wk, found := s.workers[r.PathValue("id")]
		if !found {
			notFound(w, "worker")
			return
		}
		applyWorker(wk, map[string]any{key: v})
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// applyWorker copies the known keys present in body onto wk.
func applyWorker(wk *adminapi.Worker, body map[string]any) {
	strs := map[string]*string{
		"name": &wk.Name, "lastName": &wk.LastName, "email": &wk.Email, "work": &wk.Work,
		"phone": &wk.Phone, "description": &wk.Description, "experience": &wk.Experience,
	}
	for key, dst := range strs {
		if v, ok := body[key].(string); ok {
			*dst = v
		}
	}
	nums := map[string]*float64{"latitude": &wk.Latitude, "longitude": &wk.Longitude, "pricePerHour": &wk.PricePerHour}
	for key, dst := range nums {
		if v, ok := body[key].(float64); ok {
			*dst = v
		}
	}
	if v, ok := body["isAvailable"].(bool); ok {
		wk.IsAvailable = v
	}
	if v, ok := body["isOnline"].(bool); ok {
		wk.IsOnline = v
	}
}

func (s *Server) handleWorkerStatistics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	stats := adminapi.WorkerStatistics{ByCategory: map[string]int{}}
	for _, wk := range s.workers {
		stats.Total++
		if wk.IsAvailable {
			stats.Available++
		}
		if wk.IsOnline {
			stats.Online++
		}
		if wk.Verification != nil && wk.Verification.Status == adminapi.VerificationApproved {
			stats.Verified++
		}
		stats.ByCategory[wk.Work]++
	}
	s.mu.Unlock()
	ok(w, stats)
}

func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	status := adminapi.VerificationState(str(bodyFrom(r), "status"))

	s.mu.Lock()
	defer s.mu.Unlock()
	wk, found := s.workers[r.PathValue("id")]
	if !found {
		notFound(w, "worker")
		return
	}
	wk.Verification = &adminapi.Verification{Status: status, SubmittedAt: adminapi.Timestamp(time.Now().UnixMilli())}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(r.URL.Query().Get("search"))
	s.mu.Lock()
	var out []adminapi.Customer
	for _, c := range s.customers {
		if search != "" && !strings.Contains(strings.ToLower(c.Name+" "+c.LastName+" "+c.Email), search) {
			continue
		}
		out = append(out, c)
	}
	s.mu.Unlock()
	page(w, out)
}

func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.ID == r.PathValue("id") {
			ok(w, c)
			return
		}
	}
	notFound(w, "client")
}

func (s *Server) handleClientCount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.customers)
	s.mu.Unlock()
	ok(w, map[string]int{"count": n})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats adminapi.DashboardStats
	stats.Workers.ByCategory = map[string]int{}
	for _, wk := range s.workers {
		stats.Workers.Total++
		if wk.IsAvailable {
			stats.Workers.Available++
		}
		if wk.IsOnline {
			stats.Workers.Online++
		}
		if wk.Verification != nil && wk.Verification.Status == adminapi.VerificationApproved {
			stats.Workers.Verified++
		}
		stats.Workers.ByCategory[wk.Work]++
	}
	stats.Clients.Total = len(s.customers)

	for _, c := range s.documents {
		for _, d := range c.All() {
			stats.Documents.Total++
			switch d.Status {
			case adminapi.StatusApproved:
				stats.Documents.Approved++
			case adminapi.StatusRejected:
				stats.Documents.Rejected++
			default:
				stats.Documents.Pending++
				switch {
				case d.Category == adminapi.CategoryCV:
					stats.Documents.PendingByType.CV++
				case d.Category == adminapi.CategoryBackgroundCheck:
					stats.Documents.PendingByType.BackgroundCheck++
				case d.Subcategory == adminapi.SubcategoryLetters:
					stats.Documents.PendingByType.Letters++
				default:
					stats.Documents.PendingByType.Degrees++
				}
			}
		}
	}
	stats.Documents.Processed = stats.Documents.Approved + stats.Documents.Rejected
	ok(w, stats)
}
