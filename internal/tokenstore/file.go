// Package tokenstore is durable client storage: a small JSON key/value file
// that survives restarts, used to keep the session token.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ankitsahu6387/expenseTracker/pkg/crypto"
)

// TokenKey is the storage key holding the session token.
const TokenKey = "token"

// ErrNoToken is returned when no token has been stored.
var ErrNoToken = errors.New("tokenstore: no token stored")

// File stores string values in a JSON object on disk. When secret is set,
// values are sealed with AES-GCM before they are written.
type File struct {
	mu     sync.Mutex
	path   string
	secret string
}

func NewFile(path, secret string) *File {
	return &File{path: path, secret: secret}
}

// SaveToken overwrites the stored token.
func (f *File) SaveToken(_ context.Context, token string) error {
	return f.Set(TokenKey, token)
}

// Token returns the stored token or ErrNoToken.
func (f *File) Token() (string, error) {
	token, ok, err := f.Get(TokenKey)
	if err != nil {
		return "", err
	}
	if !ok || token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (f *File) ClearToken() error {
	return f.Delete(TokenKey)
}

// Get returns the value stored under key.
func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	raw, ok := values[key]
	if !ok {
		return "", false, nil
	}
	if f.secret == "" {
		return raw, true, nil
	}
	plain, err := crypto.OpenString(f.secret, raw)
	if err != nil {
		return "", false, fmt.Errorf("open %s: %w", key, err)
	}
	return plain, true, nil
}

// Set stores value under key, replacing any previous value.
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	if f.secret != "" {
		value, err = crypto.SealString(f.secret, value)
		if err != nil {
			return fmt.Errorf("seal %s: %w", key, err)
		}
	}
	values[key] = value
	return f.save(values)
}

func (f *File) Delete(key string) error {
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

func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return values, nil
}

// save writes through a temp file so a crash never leaves a torn file.
func (f *File) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".storage-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
