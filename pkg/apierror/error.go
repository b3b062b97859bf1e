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

package apierror

import (
	"errors"
	"fmt"
	"time"
)

// FieldError is a single field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// GeneralField is the synthetic field used for errors not tied to an input.
const GeneralField = "general"

// Error is a classified API failure. It is immutable once returned by
// Classify; all state is reachable only through accessors.
type Error struct {
	code             Code
	category         Category
	severity         Severity
	httpStatus       int
	retryAfter       time.Duration
	fieldErrors      []FieldError
	userMessage      string
	technicalMessage string
	timestamp        time.Time
	requestID        string
	endpoint         string
	method           string
	cause            error
}

// Code returns the failure code.
func (e *Error) Code() Code { return e.code }

// Category returns the grouping category.
func (e *Error) Category() Category { return e.category }

// Severity returns the notification severity.
func (e *Error) Severity() Severity { return e.severity }

// HTTPStatus returns the response status, or 0 when no response was received.
func (e *Error) HTTPStatus() int { return e.httpStatus }

// Retryable reports whether the logical request may be re-attempted.
// The value comes from the code table and cannot differ between two errors
// that share a code.
func (e *Error) Retryable() bool { return IsRetryable(e.code) }

// RetryAfter returns the server-requested wait for rate-limited responses.
func (e *Error) RetryAfter() time.Duration { return e.retryAfter }

// FieldErrors returns a copy of the field-level validation errors.
func (e *Error) FieldErrors() []FieldError {
	if len(e.fieldErrors) == 0 {
		return nil
	}
	out := make([]FieldError, len(e.fieldErrors))
	copy(out, e.fieldErrors)
	return out
}

// FieldMap returns the first message per field, for form layers that bind
// one message to each input.
func (e *Error) FieldMap() map[string]string {
	if len(e.fieldErrors) == 0 {
		return nil
	}
	m := make(map[string]string, len(e.fieldErrors))
	for _, fe := range e.fieldErrors {
		if _, ok := m[fe.Field]; !ok {
			m[fe.Field] = fe.Message
		}
	}
	return m
}

// UserMessage returns the message that is always safe to display.
func (e *Error) UserMessage() string { return e.userMessage }

// TechnicalMessage returns diagnostic detail for logs. Never display it.
func (e *Error) TechnicalMessage() string { return e.technicalMessage }

// Timestamp returns when the failure was classified.
func (e *Error) Timestamp() time.Time { return e.timestamp }

// RequestID returns the correlation identifier of the failed attempt.
func (e *Error) RequestID() string { return e.requestID }

// Endpoint returns the request path.
func (e *Error) Endpoint() string { return e.endpoint }

// Method returns the HTTP method.
func (e *Error) Method() string { return e.method }

// Error renders the code and the user message only.
func (e *Error) Error() string {
	if e.httpStatus != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.code, e.httpStatus, e.userMessage)
	}
	return fmt.Sprintf("%s: %s", e.code, e.userMessage)
}

// Unwrap returns the transport cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error with the same code, so callers can write
// errors.Is(err, apierror.Sentinel(apierror.CodeNotFound)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.code == e.code
}

// IsUserVisible implements errors.UserVisibleError.
func (e *Error) IsUserVisible() bool { return true }

// Suggestion implements errors.UserVisibleError.
func (e *Error) Suggestion() string {
	switch e.code {
	case CodeUnauthorized:
		return "Run 'reviewdesk login' to start a new session."
	case CodeNetwork, CodeTimeout:
		return "Check that the API base URL is reachable."
	case CodeRateLimit:
		return "Wait before retrying."
	default:
		return ""
	}
}

// ErrorType implements errors.ErrorClassifier.
func (e *Error) ErrorType() string { return string(e.category) }

// IsRetryable implements errors.ErrorClassifier.
func (e *Error) IsRetryable() bool { return e.Retryable() }

// Sentinel returns a bare *Error for code comparison with errors.Is.
func Sentinel(code Code) *Error {
	return &Error{code: code, category: CategoryOf(code), severity: SeverityOf(code), userMessage: FallbackMessage(code)}
}

// HasCode reports whether err is a classified error with the given code.
func HasCode(err error, code Code) bool {
	ce, ok := As(err)
	return ok && ce.code == code
}

// As extracts a classified error from err's chain.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Record is a plain snapshot used by log and persistence sinks. It includes
// the technical message.
type Record struct {
	Code             Code          `json:"code"`
	Category         Category      `json:"category"`
	Severity         Severity      `json:"severity"`
	HTTPStatus       int           `json:"http_status,omitempty"`
	Retryable        bool          `json:"retryable"`
	RetryAfter       time.Duration `json:"retry_after,omitempty"`
	FieldErrors      []FieldError  `json:"field_errors,omitempty"`
	UserMessage      string        `json:"user_message"`
	TechnicalMessage string        `json:"technical_message,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	RequestID        string        `json:"request_id,omitempty"`
	Endpoint         string        `json:"endpoint,omitempty"`
	Method           string        `json:"method,omitempty"`
}

// Record returns a serializable snapshot.
func (e *Error) Record() Record {
	return Record{
		Code:             e.code,
		Category:         e.category,
		Severity:         e.severity,
		HTTPStatus:       e.httpStatus,
		Retryable:        e.Retryable(),
		RetryAfter:       e.retryAfter,
		FieldErrors:      e.FieldErrors(),
		UserMessage:      e.userMessage,
		TechnicalMessage: e.technicalMessage,
		Timestamp:        e.timestamp,
		RequestID:        e.requestID,
		Endpoint:         e.endpoint,
		Method:           e.method,
	}
}

// Notification is the user-facing view of an error. It deliberately has no
// technical message or stack.
type Notification struct {
	Code        Code         `json:"code"`
	Severity    Severity     `json:"severity"`
	Category    Category     `json:"category"`
	Message     string       `json:"message"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
	RequestID   string       `json:"request_id,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Notification returns the user-facing view.
func (e *Error) Notification() Notification {
	return Notification{
		Code:        e.code,
		Severity:    e.severity,
		Category:    e.category,
		Message:     e.userMessage,
		FieldErrors: e.FieldErrors(),
		RequestID:   e.requestID,
		Timestamp:   e.timestamp,
	}
}
