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

// Package apierror classifies failed API calls into a fixed taxonomy.
//
// Every failure the admin API client sees, whether the request never reached
// the server or the server answered with a non-2xx status, is turned into an
// *Error by Classify. The result carries:
//   - a Code (network_error, unauthorized, validation_error, ...)
//   - a Category used for grouping in logs and metrics
//   - a Severity used only for notification styling
//   - retryability, looked up from a single table keyed on Code
//   - a user-safe message and a separate technical message for logs
//   - field-level validation errors extracted from the response body
//
// # Raw failures
//
// Callers describe a failure with one of two raw error types:
//
//	// the server answered
//	&apierror.ResponseError{Method: "POST", Endpoint: "/api/documents/approve/",
//	    StatusCode: 422, Header: resp.Header, Body: body}
//
//	// the request never completed
//	&apierror.RequestError{Method: "GET", Endpoint: "/api/workers/", Err: err}
//
// Classify accepts any error, including nil and errors of unknown types, and
// always returns a valid *Error.
//
// # Validation payloads
//
// ExtractFieldErrors understands the payload shapes produced by Django REST
// Framework and FastAPI: field maps, a detail string, a detail array of
// {loc, msg} entries, and non_field_errors. Anything else yields nil.
package apierror
