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

package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tombee/reviewdesk/pkg/adminapi"
	rderrors "github.com/tombee/reviewdesk/pkg/errors"
)

// Documents reads a worker's documents. *adminapi.DocumentService
// implements it.
type Documents interface {
	ForWorkerOrEmpty(ctx context.Context, workerID string) (*adminapi.Collection, error)
	Requirements(ctx context.Context, workerID string) (*adminapi.Requirements, error)
}

// Verifier records a worker's final verdict. *adminapi.WorkerService
// implements it.
type Verifier interface {
	SetVerificationStatus(ctx context.Context, id string, status adminapi.VerificationState) error
}

// Report is the full review picture for one worker.
type Report struct {
	WorkerID  string                 `json:"worker_id"`
	Status    *Status                `json:"status"`
	Checklist Checklist              `json:"checklist"`
	Server    *adminapi.Requirements `json:"server_requirements"`
	Suggested Decision               `json:"suggested"`
}

// Service assembles reports and records verdicts.
type Service struct {
	docs     Documents
	verifier Verifier
	logger   *slog.Logger
}

// NewService creates a service. A nil logger uses slog.Default.
func NewService(docs Documents, verifier Verifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, verifier: verifier, logger: logger}
}

// Report loads a worker's documents and evaluates them. A worker the
// server has no documents for yields an empty report.
func (s *Service) Report(ctx context.Context, workerID string) (*Report, error) {
	c, err := s.docs.ForWorkerOrEmpty(ctx, workerID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.docs.Requirements(ctx, workerID)
	if err != nil {
		return nil, err
	}

	r := &Report{
		WorkerID:  workerID,
		Status:    Evaluate(c),
		Checklist: Check(c),
		Server:    reqs,
	}
	r.Suggested = Suggest(r.Status, r.Checklist)

	if r.Server != nil && r.Status.HasDocuments && r.Server.Complete != r.Checklist.Complete() {
		s.logger.Debug("server and local requirement checks disagree",
			"worker_id", workerID,
			"server_complete", r.Server.Complete,
			"local_complete", r.Checklist.Complete(),
		)
	}
	return r, nil
}

// Finalize records the verdict for a worker. Approval is refused while
// documents are pending or the minimum set is incomplete unless force
// is set.
func (s *Service) Finalize(ctx context.Context, workerID string, d Decision, force bool) error {
	var status adminapi.VerificationState
	switch d {
	case DecisionApprove:
		status = adminapi.VerificationApproved
	case DecisionReject:
		status = adminapi.VerificationRejected
	default:
		return &rderrors.ValidationError{Field: "decision", Message: fmt.Sprintf("must be approve or reject, got %q", d)}
	}

	if d == DecisionApprove && !force {
		r, err := s.Report(ctx, workerID)
		if err != nil {
			return err
		}
		if r.Status.Pending > 0 {
			return &rderrors.ValidationError{
				Field:   "decision",
				Message: fmt.Sprintf("%d documents are still pending review", r.Status.Pending),
				Hint:    "Review the pending documents first or pass --force.",
			}
		}
		if missing := r.Checklist.Missing(); len(missing) > 0 {
			return &rderrors.ValidationError{
				Field:   "decision",
				Message: "minimum documents are missing: " + strings.Join(missing, ", "),
				Hint:    "Pass --force to approve anyway.",
			}
		}
	}

	if err := s.verifier.SetVerificationStatus(ctx, workerID, status); err != nil {
		return err
	}
	s.logger.Info("verification recorded", "worker_id", workerID, "status", string(status), "forced", force)
	return nil
}
