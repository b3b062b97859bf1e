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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxTechnicalBody caps how much of a response body is copied into the
// technical message.
const maxTechnicalBody = 512

// ResponseError is the raw failure for a request that received a non-2xx
// response.
type ResponseError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Endpoint, e.StatusCode)
}

// RequestError is the raw failure for a request that never received a
// response.
type RequestError struct {
	Method   string
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Endpoint, e.Err)
}

// Unwrap returns the transport error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// EncodeError is the raw failure for a request whose body could not be
// encoded. Nothing was sent.
type EncodeError struct {
	Method   string
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s %s: encoding request body: %v", e.Method, e.Endpoint, e.Err)
}

// Unwrap returns the encoding error.
func (e *EncodeError) Unwrap() error {
	return e.Err
}

// now is swapped in tests.
var now = time.Now

// Classify maps any failure to a classified *Error. It is total: nil,
// unknown error types and malformed response bodies all produce a valid
// result, and a panic during extraction degrades to unknown_error.
func Classify(raw error, requestID string) (classified *Error) {
	defer func() {
		if r := recover(); r != nil {
			classified = build(CodeUnknown, requestID)
			classified.technicalMessage = fmt.Sprintf("classification failed: %v", r)
			classified.cause = raw
		}
	}()

	if raw == nil {
		e := build(CodeUnknown, requestID)
		e.technicalMessage = "classify called without an error"
		return e
	}

	if ce, ok := As(raw); ok {
		return ce
	}

	var re *ResponseError
	if errors.As(raw, &re) {
		return classifyResponse(re, requestID)
	}

	var ee *EncodeError
	if errors.As(raw, &ee) {
		e := build(CodeBadRequest, requestID)
		e.technicalMessage = ee.Error()
		e.method = ee.Method
		e.endpoint = ee.Endpoint
		e.cause = raw
		return e
	}

	return classifyTransport(raw, requestID)
}

// classifyTransport handles failures where no response was received.
func classifyTransport(raw error, requestID string) *Error {
	code := CodeNetwork
	switch {
	case errors.Is(raw, context.Canceled):
		code = CodeCancelled
	case isTimeout(raw):
		code = CodeTimeout
	}

	e := build(code, requestID)
	e.technicalMessage = raw.Error()
	e.cause = raw

	var rq *RequestError
	if errors.As(raw, &rq) {
		e.method = rq.Method
		e.endpoint = rq.Endpoint
	}
	return e
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyResponse handles non-2xx responses.
func classifyResponse(re *ResponseError, requestID string) *Error {
	code := CodeForStatus(re.StatusCode)

	if id := headerValue(re.Header, "X-Request-ID"); id != "" && requestID == "" {
		requestID = id
	}

	e := build(code, requestID)
	e.httpStatus = re.StatusCode
	e.method = re.Method
	e.endpoint = re.Endpoint
	e.technicalMessage = fmt.Sprintf("%s %s -> HTTP %d: %s", re.Method, re.Endpoint, re.StatusCode, truncate(re.Body, maxTechnicalBody))
	e.cause = re

	payload := decodeObject(re.Body)

	switch code {
	case CodeBadRequest, CodeConflict, CodeValidation:
		e.fieldErrors = ExtractFieldErrors(re.Body)
		if len(e.fieldErrors) > 0 {
			e.userMessage = summarize(e.fieldErrors)
		} else {
			e.userMessage = messageOr(payload, code)
		}
	case CodeNotFound, CodeUnknown:
		e.userMessage = messageOr(payload, code)
	case CodeRateLimit:
		e.retryAfter = parseRetryAfter(headerValue(re.Header, "Retry-After"))
		if e.retryAfter <= 0 {
			e.retryAfter = DefaultRetryAfter
		}
	}

	return e
}

// build creates an error carrying the fixed table values for code.
func build(code Code, requestID string) *Error {
	row := lookup(code)
	return &Error{
		code:        code,
		category:    row.category,
		severity:    row.severity,
		userMessage: row.fallback,
		timestamp:   now(),
		requestID:   requestID,
	}
}

// messageOr prefers a server message and falls back to the code's fixed text.
func messageOr(payload map[string]any, code Code) string {
	if msg := serverMessage(payload); msg != "" {
		return msg
	}
	return FallbackMessage(code)
}

// messageKeys are checked in order for a server-supplied message.
var messageKeys = []string{"detail", "message", "error"}

// serverMessage extracts a single string message, then a joined array of
// string messages. Any other shape yields "".
func serverMessage(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	for _, key := range messageKeys {
		if s, ok := payload[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	for _, key := range messageKeys {
		if list, ok := payload[key].([]any); ok {
			if joined := joinStrings(list); joined != "" {
				return joined
			}
		}
	}
	return ""
}

func joinStrings(list []any) string {
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, "; ")
}

// summarize renders the first two field errors and a count of the rest.
func summarize(fields []FieldError) string {
	shown := fields
	if len(shown) > 2 {
		shown = shown[:2]
	}
	parts := make([]string, 0, len(shown))
	for _, fe := range shown {
		if fe.Field == GeneralField || fe.Field == "" {
			parts = append(parts, fe.Message)
			continue
		}
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	msg := strings.Join(parts, "; ")
	if extra := len(fields) - len(shown); extra > 0 {
		msg = fmt.Sprintf("%s (+%d more)", msg, extra)
	}
	return msg
}

// decodeObject returns the body as a JSON object, or nil for anything else.
func decodeObject(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// parseRetryAfter supports delay-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now()); d > 0 {
			return d
		}
	}
	return 0
}

func headerValue(h http.Header, key string) string {
	if h == nil {
		return ""
	}
	return h.Get(key)
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
