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

package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// keychainService is the service name used for keychain entries.
const keychainService = "reviewdesk"

// KeychainStore keeps credentials in the system keychain.
// Supported platforms:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
type KeychainStore struct {
	available bool
}

// NewKeychainStore probes the keychain and returns a store.
func NewKeychainStore() *KeychainStore {
	// Anything but ErrNotFound on a missing key means the service is
	// locked or absent.
	_, err := keyring.Get(keychainService, "__reviewdesk_probe__")
	return &KeychainStore{available: err == nil || errors.Is(err, keyring.ErrNotFound)}
}

// Available reports whether the keychain answered the probe.
func (k *KeychainStore) Available() bool {
	return k.available
}

// Get implements Store.
func (k *KeychainStore) Get(_ context.Context, key string) (string, error) {
	if !k.available {
		return "", fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}

	value, err := keyring.Get(keychainService, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", keychainErr(err)
	}
	return value, nil
}

// Set implements Store.
func (k *KeychainStore) Set(_ context.Context, key, value string) error {
	if !k.available {
		return fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	if err := keyring.Set(keychainService, key, value); err != nil {
		return keychainErr(err)
	}
	return nil
}

// Remove implements Store.
func (k *KeychainStore) Remove(_ context.Context, key string) error {
	if !k.available {
		return fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	if err := keyring.Delete(keychainService, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return keychainErr(err)
	}
	return nil
}

func keychainErr(err error) error {
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{"locked", "cannot access", "permission denied", "dbus", "user canceled"} {
		if strings.Contains(msg, indicator) {
			return fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
		}
	}
	return fmt.Errorf("keychain error: %w", err)
}
