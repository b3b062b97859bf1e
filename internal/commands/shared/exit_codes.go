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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/reviewdesk/internal/config"
	"github.com/tombee/reviewdesk/internal/credentials"
	"github.com/tombee/reviewdesk/pkg/apierror"
	pkgerrors "github.com/tombee/reviewdesk/pkg/errors"
)

const (
	ExitSuccess    = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitAuth       = 3
	ExitNetwork    = 4
	ExitConfig     = 5
)

// ExitError carries an explicit exit code.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewAuthError reports a missing or rejected session.
func NewAuthError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitAuth, Message: msg, Cause: cause}
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var classified pkgerrors.ErrorClassifier
	if errors.As(err, &classified) {
		switch apierror.Category(classified.ErrorType()) {
		case apierror.CategoryAuthentication, apierror.CategoryAuthorization:
			return ExitAuth
		case apierror.CategoryValidation:
			return ExitValidation
		case apierror.CategoryNetwork:
			return ExitNetwork
		}
		return ExitFailure
	}

	var valErr *pkgerrors.ValidationError
	if errors.As(err, &valErr) || errors.Is(err, config.ErrUnknownKey) {
		return ExitValidation
	}
	var cfgErr *pkgerrors.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	if errors.Is(err, credentials.ErrNotFound) || errors.Is(err, credentials.ErrBackendUnavailable) {
		return ExitAuth
	}
	var nf *pkgerrors.NotFoundError
	if errors.As(err, &nf) && nf.Resource == "session" {
		return ExitAuth
	}
	return ExitFailure
}

// Reported reports whether err was already shown to the user by the
// console notifier.
func Reported(err error) bool {
	_, ok := apierror.As(err)
	return ok
}

// WriteError prints err and any suggestion to w. Errors the console
// notifier already displayed are skipped.
func WriteError(w io.Writer, err error) {
	if err == nil || Reported(err) {
		return
	}
	fmt.Fprintln(w, RenderError(err.Error()))
	printUserVisibleSuggestion(w, err)
}

// HandleExitError reports err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	if GetJSON() {
		_ = EmitJSONError(os.Stdout, "", err)
	} else {
		WriteError(os.Stderr, err)
	}
	os.Exit(ExitCodeFor(err))
}

func printUserVisibleSuggestion(w io.Writer, err error) {
	// Walk the error chain to find a UserVisibleError
	for err != nil {
		if userErr, ok := err.(pkgerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				if suggestion := userErr.Suggestion(); suggestion != "" {
					fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
				}
			}
			return
		}
		err = errors.Unwrap(err)
	}
}
