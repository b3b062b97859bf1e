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

// Package review derives a worker's verification progress from the
// documents they have uploaded and decides when a final verdict may be
// recorded.
package review

import (
	"fmt"
	"time"

	"github.com/tombee/reviewdesk/pkg/adminapi"
)

// Status summarizes the review state of a worker's documents.
type Status struct {
	HasDocuments bool `json:"has_documents"`
	// AllReviewed is true when every document has a review date and a
	// non-pending status.
	AllReviewed bool `json:"all_reviewed"`

	Total    int `json:"total"`
	Reviewed int `json:"reviewed"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`

	LastReviewedAt time.Time `json:"last_reviewed_at,omitzero"`
	LastReviewedBy string    `json:"last_reviewed_by,omitempty"`

	// NewSinceReview holds documents uploaded after the last review
	// that are still unreviewed.
	NewSinceReview []*adminapi.Document `json:"new_since_review,omitempty"`

	// CanFinalize reports whether pending documents remain to be
	// decided in a final review.
	CanFinalize bool   `json:"can_finalize"`
	Message     string `json:"message"`
}

// HasPending reports whether any document awaits review.
func (s *Status) HasPending() bool { return s.Pending > 0 }

// Evaluate computes the review status of a collection. A nil collection
// is a worker with no documents.
func Evaluate(c *adminapi.Collection) *Status {
	docs := c.All()
	if len(docs) == 0 {
		return &Status{Message: "worker has not uploaded any documents"}
	}

	s := &Status{HasDocuments: true, Total: len(docs), AllReviewed: true}
	var last adminapi.Timestamp
	for _, d := range docs {
		reviewed := !d.ReviewedAt.IsZero()
		if reviewed {
			s.Reviewed++
			if d.ReviewedAt > last {
				last = d.ReviewedAt
				s.LastReviewedBy = d.ReviewedBy
			}
		}
		if d.Status == adminapi.StatusPending || !reviewed {
			s.Pending++
		}
		switch d.Status {
		case adminapi.StatusApproved:
			s.Approved++
		case adminapi.StatusRejected:
			s.Rejected++
		}
		if !reviewed || d.Status == adminapi.StatusPending {
			s.AllReviewed = false
		}
	}

	if last > 0 {
		s.LastReviewedAt = last.Time()
		for _, d := range docs {
			if d.UploadedAt > last && (d.ReviewedAt.IsZero() || d.Status == adminapi.StatusPending) {
				s.NewSinceReview = append(s.NewSinceReview, d)
			}
		}
	}

	s.CanFinalize = s.HasPending()
	s.Message = s.message()
	return s
}

func (s *Status) message() string {
	switch {
	case !s.AllReviewed && s.Pending > 0:
		return fmt.Sprintf("%d %s pending review", s.Pending, plural(s.Pending, "document", "documents"))
	case s.AllReviewed && len(s.NewSinceReview) > 0:
		n := len(s.NewSinceReview)
		return fmt.Sprintf("%d new %s since the last review", n, plural(n, "document", "documents"))
	case s.AllReviewed:
		return "all documents have been reviewed"
	}
	return ""
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
