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

// Package credentials persists the session's tokens and cached identity.
//
// Three backends are available: the system keychain, an encrypted file
// and process memory. All of them store opaque string values under the
// keys defined here.
package credentials

import (
	"context"
	"errors"
	"fmt"
)

// Keys stored by the session.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

var (
	// ErrNotFound is returned when a key is not stored.
	ErrNotFound = errors.New("credential not found")

	// ErrBackendUnavailable is returned when a backend cannot be used in
	// the current environment.
	ErrBackendUnavailable = errors.New("credential backend unavailable")
)

// Store is a key/value credential store. Remove of a missing key is not an
// error.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Backend names accepted by Open.
const (
	BackendKeychain = "keychain"
	BackendFile     = "file"
	BackendMemory   = "memory"
)

// Options configures Open.
type Options struct {
	// Backend selects the store. Default: keychain.
	Backend string
	// Path is the encrypted file location for the file backend.
	Path string
	// MasterKey encrypts the file backend. Falls back to
	// REVIEWDESK_MASTER_KEY and then the master.key file.
	MasterKey string
}

// Open returns the configured store. An unavailable keychain is reported
// as ErrBackendUnavailable so the caller can suggest another backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendKeychain:
		kc := NewKeychainStore()
		if !kc.Available() {
			return nil, fmt.Errorf("%w: system keychain is not accessible (try credentials.backend: file)", ErrBackendUnavailable)
		}
		return kc, nil
	case BackendFile:
		return NewFileStore(opts.Path, opts.MasterKey)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown credentials backend %q", opts.Backend)
	}
}
