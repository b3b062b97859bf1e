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
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	// MasterKeyEnv names the environment variable holding the file
	// backend's master key.
	MasterKeyEnv = "REVIEWDESK_MASTER_KEY"

	argon2Time        = 3
	argon2Memory      = 64 * 1024 // 64MB in KB
	argon2Parallelism = 4
	argon2KeyLength   = 32 // AES-256

	saltSize     = 16
	gcmNonceSize = 12
)

// FileStore keeps credentials in a JSON file encrypted with AES-256-GCM.
// The key is derived from a master key with Argon2id and a per-write salt.
type FileStore struct {
	path      string
	masterKey []byte

	mu sync.Mutex
	// derived caches the key for the most recently seen salt.
	salt    []byte
	derived []byte
}

type envelope struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

// NewFileStore creates a file store. An empty path uses the user config
// directory. Without a master key the store is unavailable.
func NewFileStore(path, masterKey string) (*FileStore, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(dir, "reviewdesk", "credentials.enc")
	}

	key, err := resolveMasterKey(masterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	return &FileStore{path: path, masterKey: key}, nil
}

// Path returns the file location.
func (f *FileStore) Path() string {
	return f.path
}

// Get implements Store.
func (f *FileStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

// Set implements Store.
func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value
	return f.save(values)
}

// Remove implements Store.
func (f *FileStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.save(values)
}

// load returns the decrypted values. A missing file is an empty store.
func (f *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid credentials file format: %w", err)
	}

	gcm, err := f.cipher(env.Salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong master key or corrupted data): %w", err)
	}
	defer zeroBytes(plaintext)

	values := map[string]string{}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("invalid decrypted data format: %w", err)
	}
	return values, nil
}

// save encrypts and atomically replaces the file.
func (f *FileStore) save(values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	defer zeroBytes(plaintext)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := f.cipher(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	raw, err := json.Marshal(envelope{Salt: salt, Nonce: nonce, Data: gcm.Seal(nil, nonce, plaintext, nil)})
	if err != nil {
		return fmt.Errorf("failed to marshal encrypted data: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// cipher derives the key for salt, reusing the last derivation when the
// salt is unchanged.
func (f *FileStore) cipher(salt []byte) (cipher.AEAD, error) {
	if f.derived == nil || !bytes.Equal(f.salt, salt) {
		if f.derived != nil {
			zeroBytes(f.derived)
		}
		f.derived = argon2.IDKey(f.masterKey, salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)
		f.salt = append([]byte(nil), salt...)
	}

	block, err := aes.NewCipher(f.derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// resolveMasterKey uses the provided key, then the environment, then a
// master.key file with 0600 permissions in the user config directory.
func resolveMasterKey(provided string) ([]byte, error) {
	if provided != "" {
		return []byte(provided), nil
	}
	if env := os.Getenv(MasterKeyEnv); env != "" {
		return []byte(env), nil
	}

	if dir, err := os.UserConfigDir(); err == nil {
		keyPath := filepath.Join(dir, "reviewdesk", "master.key")
		if info, err := os.Lstat(keyPath); err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0077 == 0 {
			if key, err := os.ReadFile(keyPath); err == nil && len(bytes.TrimSpace(key)) > 0 {
				return bytes.TrimSpace(key), nil
			}
		}
	}

	return nil, fmt.Errorf("master key not available (set %s or create a 0600 master.key in the reviewdesk config directory)", MasterKeyEnv)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
