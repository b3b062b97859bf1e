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

package shared

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/tombee/reviewdesk/pkg/apierror"
	pkgerrors "github.com/tombee/reviewdesk/pkg/errors"
)

// JSONResponse is the envelope of every --json output.
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError describes one failure in --json output.
type JSONError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
}

// JSONResult wraps a successful command's data.
type JSONResult struct {
	JSONResponse
	Data any `json:"data"`
}

// EmitJSON writes v as indented JSON.
func EmitJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// EmitResult writes data in the success envelope.
func EmitResult(w io.Writer, command string, data any) error {
	return EmitJSON(w, JSONResult{
		JSONResponse: JSONResponse{Version: "1.0", Command: command, Success: true},
		Data:         data,
	})
}

// EmitJSONError writes err in the failure envelope.
func EmitJSONError(w io.Writer, command string, err error) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}
	return EmitJSON(w, errorResponse{
		JSONResponse: JSONResponse{Version: "1.0", Command: command, Success: false},
		Errors:       []JSONError{ToJSONError(err)},
	})
}

// ToJSONError converts err for JSON output. Classified API errors keep
// their code and field errors.
func ToJSONError(err error) JSONError {
	if cerr, ok := apierror.As(err); ok {
		return JSONError{
			Code:       string(cerr.Code()),
			Message:    cerr.UserMessage(),
			Fields:     cerr.FieldMap(),
			Suggestion: cerr.Suggestion(),
			RequestID:  cerr.RequestID(),
		}
	}

	je := JSONError{Code: "error", Message: err.Error()}
	var valErr *pkgerrors.ValidationError
	var cfgErr *pkgerrors.ConfigError
	switch {
	case errors.As(err, &valErr):
		je.Code = string(apierror.CodeValidation)
		je.Fields = map[string]string{valErr.Field: valErr.Message}
		je.Suggestion = valErr.Hint
	case errors.As(err, &cfgErr):
		je.Code = "config_error"
	}
	return je
}
