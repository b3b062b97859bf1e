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
	"net/http"
	"time"
)

// Code identifies a class of failure.
type Code string

const (
	// CodeNetwork indicates the request never received a response
	CodeNetwork Code = "network_error"

	// CodeTimeout indicates a client-side timeout on a physical attempt
	CodeTimeout Code = "timeout"

	// CodeCancelled indicates the caller cancelled the request
	CodeCancelled Code = "cancelled"

	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeValidation         Code = "validation_error"
	CodeRateLimit          Code = "rate_limit"
	CodeInternalServer     Code = "internal_server_error"
	CodeServiceUnavailable Code = "service_unavailable"

	// CodeUnknown covers unmapped statuses and unrecognised failures
	CodeUnknown Code = "unknown_error"
)

// Severity is an ordered notification level. It never drives control flow.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON and YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name. Unknown names decode as medium.
func (s *Severity) UnmarshalText(text []byte) error {
	*s = ParseSeverity(string(text))
	return nil
}

// ParseSeverity converts a severity name back to its value.
func ParseSeverity(name string) Severity {
	switch name {
	case "low":
		return SeverityLow
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// Category groups codes for logging and analytics.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryValidation     Category = "validation"
	CategoryServer         Category = "server"
	CategoryClient         Category = "client"
	CategoryUnknown        Category = "unknown"
)

// classification is the fixed row for a code.
type classification struct {
	category Category
	severity Severity
	fallback string
}

// codeTable fixes category, severity and fallback message per code.
var codeTable = map[Code]classification{
	CodeNetwork:            {CategoryNetwork, SeverityHigh, "Could not connect to the server. Check your internet connection."},
	CodeTimeout:            {CategoryNetwork, SeverityHigh, "The server took too long to respond. Please try again."},
	CodeCancelled:          {CategoryClient, SeverityLow, "The request was cancelled."},
	CodeBadRequest:         {CategoryClient, SeverityMedium, "The request was invalid."},
	CodeUnauthorized:       {CategoryAuthentication, SeverityHigh, "Your session has expired. Please log in again."},
	CodeForbidden:          {CategoryAuthorization, SeverityHigh, "You do not have permission to perform this action."},
	CodeNotFound:           {CategoryClient, SeverityLow, "The requested resource was not found."},
	CodeConflict:           {CategoryClient, SeverityMedium, "A record with this data already exists."},
	CodeValidation:         {CategoryValidation, SeverityMedium, "The submitted data is not valid."},
	CodeRateLimit:          {CategoryClient, SeverityMedium, "Too many requests. Please wait a moment and try again."},
	CodeInternalServer:     {CategoryServer, SeverityCritical, "Internal server error. Please try again later."},
	CodeServiceUnavailable: {CategoryServer, SeverityCritical, "The server is temporarily unavailable. Please try again later."},
	CodeUnknown:            {CategoryUnknown, SeverityMedium, "An unexpected error occurred."},
}

// statusTable maps HTTP statuses to codes. Statuses not listed are CodeUnknown.
var statusTable = map[int]Code{
	http.StatusBadRequest:          CodeBadRequest,
	http.StatusUnauthorized:        CodeUnauthorized,
	http.StatusForbidden:           CodeForbidden,
	http.StatusNotFound:            CodeNotFound,
	http.StatusConflict:            CodeConflict,
	http.StatusUnprocessableEntity: CodeValidation,
	http.StatusTooManyRequests:     CodeRateLimit,
	http.StatusInternalServerError: CodeInternalServer,
	http.StatusBadGateway:          CodeServiceUnavailable,
	http.StatusServiceUnavailable:  CodeServiceUnavailable,
	http.StatusGatewayTimeout:      CodeServiceUnavailable,
}

// retryableCodes is the only place retryability is decided.
var retryableCodes = map[Code]bool{
	CodeNetwork:            true,
	CodeTimeout:            true,
	CodeRateLimit:          true,
	CodeInternalServer:     true,
	CodeServiceUnavailable: true,
}

// DefaultRetryAfter is used for rate-limit responses without a Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// IsRetryable reports whether failures with the given code may be re-attempted.
func IsRetryable(code Code) bool {
	return retryableCodes[code]
}

// CodeForStatus returns the code for an HTTP status.
func CodeForStatus(status int) Code {
	if code, ok := statusTable[status]; ok {
		return code
	}
	return CodeUnknown
}

// CategoryOf returns the fixed category for a code.
func CategoryOf(code Code) Category {
	return lookup(code).category
}

// SeverityOf returns the fixed severity for a code.
func SeverityOf(code Code) Severity {
	return lookup(code).severity
}

// FallbackMessage returns the fixed user message for a code.
func FallbackMessage(code Code) string {
	return lookup(code).fallback
}

func lookup(code Code) classification {
	if c, ok := codeTable[code]; ok {
		return c
	}
	return codeTable[CodeUnknown]
}

// Codes returns every known code, in table order of declaration.
func Codes() []Code {
	return []Code{
		CodeNetwork, CodeTimeout, CodeCancelled,
		CodeBadRequest, CodeUnauthorized, CodeForbidden, CodeNotFound,
		CodeConflict, CodeValidation, CodeRateLimit,
		CodeInternalServer, CodeServiceUnavailable, CodeUnknown,
	}
}
