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
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tombee/reviewdesk/pkg/apierror"
	"github.com/tombee/reviewdesk/pkg/auth"
	rderrors "github.com/tombee/reviewdesk/pkg/errors"
)

// DocumentStatus is the review state of a document.
type DocumentStatus string

const (
	StatusPending  DocumentStatus = "pending"
	StatusApproved DocumentStatus = "approved"
	StatusRejected DocumentStatus = "rejected"
)

// Category is the top-level document slot.
type Category string

const (
	CategoryCV              Category = "hojaDeVida"
	CategoryBackgroundCheck Category = "antecedentesJudiciales"
	CategoryCertifications  Category = "certificaciones"
)

// Subcategory splits certifications.
type Subcategory string

const (
	SubcategoryDegrees Subcategory = "titulos"
	SubcategoryLetters Subcategory = "cartasRecomendacion"
)

// ParseCategory accepts the API names and short aliases.
func ParseCategory(s string) (Category, Subcategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cv", "hojadevida", "hoja_de_vida":
		return CategoryCV, "", nil
	case "background", "background-check", "antecedentesjudiciales", "antecedentes":
		return CategoryBackgroundCheck, "", nil
	case "degree", "degrees", "titulos", "titulo":
		return CategoryCertifications, SubcategoryDegrees, nil
	case "letter", "letters", "cartasrecomendacion", "cartas":
		return CategoryCertifications, SubcategoryLetters, nil
	default:
		return "", "", &rderrors.ValidationError{
			Field:   "category",
			Message: fmt.Sprintf("unknown document category %q", s),
			Hint:    "Use one of: cv, background, degree, letter.",
		}
	}
}

// Document is one uploaded worker document.
type Document struct {
	ID              string         `json:"id"`
	WorkerID        string         `json:"workerId"`
	DocumentType    string         `json:"documentType"`
	Category        Category       `json:"category"`
	Subcategory     Subcategory    `json:"subcategory,omitempty"`
	FileName        string         `json:"fileName"`
	FileURL         string         `json:"fileUrl"`
	FileType        string         `json:"fileType"`
	FileSize        int64          `json:"fileSize"`
	Status          DocumentStatus `json:"status"`
	UploadedAt      Timestamp      `json:"uploadedAt"`
	ReviewedAt      Timestamp      `json:"reviewedAt,omitempty"`
	ReviewedBy      string         `json:"reviewedBy,omitempty"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	Description     string         `json:"description,omitempty"`
	Order           int            `json:"orden,omitempty"`
	VerificationURL string         `json:"verificationUrl,omitempty"`
}

// Ref identifies a document for review operations.
func (d *Document) Ref() DocumentRef {
	return DocumentRef{WorkerID: d.WorkerID, Category: d.Category, Subcategory: d.Subcategory, DocumentID: d.ID}
}

// Certifications groups degrees and recommendation letters by key.
type Certifications struct {
	Degrees map[string]*Document `json:"titulos,omitempty"`
	Letters map[string]*Document `json:"cartasRecomendacion,omitempty"`
}

// Collection is every document a worker has uploaded.
type Collection struct {
	CV              *Document      `json:"hojaDeVida,omitempty"`
	BackgroundCheck *Document      `json:"antecedentesJudiciales,omitempty"`
	Certifications  Certifications `json:"certificaciones"`
}

// All flattens the collection: CV, background check, then degrees and
// letters each ordered by key.
func (c *Collection) All() []*Document {
	if c == nil {
		return nil
	}
	var docs []*Document
	if c.CV != nil {
		docs = append(docs, c.CV)
	}
	if c.BackgroundCheck != nil {
		docs = append(docs, c.BackgroundCheck)
	}
	docs = append(docs, sortedDocs(c.Certifications.Degrees)...)
	docs = append(docs, sortedDocs(c.Certifications.Letters)...)
	return docs
}

func sortedDocs(m map[string]*Document) []*Document {
	keys := make([]string, 0, len(m))
	for k, d := range m {
		if d != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]*Document, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Requirements is the server's minimum document check.
type Requirements struct {
	HasCV              bool `json:"hasHojaVida"`
	HasBackgroundCheck bool `json:"hasAntecedentes"`
	HasDegree          bool `json:"hasTitulo"`
	LetterCount        int  `json:"cartasCount"`
	HasMinimumLetters  bool `json:"hasMinimumCartas"`
	Complete           bool `json:"isComplete"`
}

// DocumentRef addresses one document.
type DocumentRef struct {
	WorkerID    string
	Category    Category
	Subcategory Subcategory
	DocumentID  string
}

func (r DocumentRef) validate() error {
	switch {
	case strings.TrimSpace(r.WorkerID) == "":
		return &rderrors.ValidationError{Field: "worker_id", Message: "is required"}
	case r.Category == "":
		return &rderrors.ValidationError{Field: "category", Message: "is required"}
	case strings.TrimSpace(r.DocumentID) == "":
		return &rderrors.ValidationError{Field: "document_id", Message: "is required"}
	case r.Category == CategoryCertifications && r.Subcategory == "":
		return &rderrors.ValidationError{Field: "subcategory", Message: "is required for certifications"}
	}
	return nil
}

type reviewBody struct {
	WorkerID    string       `json:"workerId"`
	Category    Category     `json:"category"`
	Subcategory *Subcategory `json:"subcategory"`
	DocumentID  string       `json:"documentId"`
	ReviewerID  string       `json:"reviewerId,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

func (r DocumentRef) body(reviewer string) reviewBody {
	b := reviewBody{WorkerID: r.WorkerID, Category: r.Category, DocumentID: r.DocumentID, ReviewerID: reviewer}
	if r.Subcategory != "" {
		sub := r.Subcategory
		b.Subcategory = &sub
	}
	return b
}

// DocumentService reviews worker documents.
type DocumentService struct {
	doer    Doer
	session *auth.Session
}

// Pending lists documents awaiting review.
func (s *DocumentService) Pending(ctx context.Context) (*Page[Document], error) {
	return list[Document](ctx, s.doer, request(ctx, http.MethodGet, "/api/documents/pending/", "list_pending_documents"))
}

// ForWorker returns a worker's document collection.
func (s *DocumentService) ForWorker(ctx context.Context, workerID string) (*Collection, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, &rderrors.ValidationError{Field: "worker_id", Message: "is required"}
	}
	req := request(ctx, http.MethodGet, "/api/documents/worker/"+url.PathEscape(workerID)+"/", "get_worker_documents")
	return fetch[Collection](ctx, s.doer, req)
}

// ForWorkerOrEmpty is ForWorker with not_found treated as a worker who
// has uploaded nothing.
func (s *DocumentService) ForWorkerOrEmpty(ctx context.Context, workerID string) (*Collection, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, &rderrors.ValidationError{Field: "worker_id", Message: "is required"}
	}
	req := request(ctx, http.MethodGet, "/api/documents/worker/"+url.PathEscape(workerID)+"/", "get_worker_documents")
	req.Handled = []apierror.Code{apierror.CodeNotFound}

	c, err := fetch[Collection](ctx, s.doer, req)
	if apierror.HasCode(err, apierror.CodeNotFound) {
		return &Collection{}, nil
	}
	return c, err
}

// Requirements returns the server's minimum document check. A worker
// the server has no documents for yields zero requirements.
func (s *DocumentService) Requirements(ctx context.Context, workerID string) (*Requirements, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, &rderrors.ValidationError{Field: "worker_id", Message: "is required"}
	}
	req := request(ctx, http.MethodGet, "/api/documents/worker/"+url.PathEscape(workerID)+"/check-requirements/", "check_requirements")
	req.Handled = []apierror.Code{apierror.CodeNotFound}

	r, err := fetch[Requirements](ctx, s.doer, req)
	if apierror.HasCode(err, apierror.CodeNotFound) {
		return &Requirements{}, nil
	}
	return r, err
}

// Approve marks a document approved by the signed-in reviewer.
func (s *DocumentService) Approve(ctx context.Context, ref DocumentRef) error {
	if err := ref.validate(); err != nil {
		return err
	}
	reviewer, err := s.reviewer(ctx)
	if err != nil {
		return err
	}
	req := request(ctx, http.MethodPost, "/api/documents/approve/", "approve_document")
	req.Body = ref.body(reviewer)
	return send(ctx, s.doer, req)
}

// Reject marks a document rejected. A reason is required.
func (s *DocumentService) Reject(ctx context.Context, ref DocumentRef, reason string) error {
	if err := ref.validate(); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return &rderrors.ValidationError{
			Field:   "reason",
			Message: "a rejection reason is required",
			Hint:    "Tell the worker what to fix, e.g. --reason \"document is illegible\".",
		}
	}
	reviewer, err := s.reviewer(ctx)
	if err != nil {
		return err
	}
	body := ref.body(reviewer)
	body.Reason = reason

	req := request(ctx, http.MethodPost, "/api/documents/reject/", "reject_document")
	req.Body = body
	return send(ctx, s.doer, req)
}

// Delete removes a document.
func (s *DocumentService) Delete(ctx context.Context, ref DocumentRef) error {
	if err := ref.validate(); err != nil {
		return err
	}
	req := request(ctx, http.MethodDelete, "/api/documents/delete/", "delete_document")
	req.Body = ref.body("")
	return send(ctx, s.doer, req)
}

type fileURL struct {
	URL string `json:"url"`
}

// FileURL returns a download URL for a stored file.
func (s *DocumentService) FileURL(ctx context.Context, workerID string, category Category, subcategory Subcategory, filename string) (string, error) {
	if strings.TrimSpace(workerID) == "" || strings.TrimSpace(filename) == "" {
		return "", &rderrors.ValidationError{Field: "filename", Message: "worker id and filename are required"}
	}
	req := request(ctx, http.MethodGet, "/api/documents/file-url/", "get_file_url")
	req.Query = url.Values{
		"workerId": {workerID},
		"category": {string(category)},
		"filename": {filename},
	}
	if subcategory != "" {
		req.Query.Set("subcategory", string(subcategory))
	}

	out, err := fetch[fileURL](ctx, s.doer, req)
	if err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("file url: %w", ErrEmptyResponse)
	}
	return out.URL, nil
}

func (s *DocumentService) reviewer(ctx context.Context) (string, error) {
	if s.session == nil {
		return "", nil
	}
	id, err := s.session.Identity(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot determine reviewer: %w", err)
	}
	return id.ID, nil
}
