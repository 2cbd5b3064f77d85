package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveTokenOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storage.json")
	store := NewFile(path, "")

	if _, err := store.Token(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if err := store.SaveToken(context.Background(), "first"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveToken(context.Background(), "second"); err != nil {
		t.Fatalf("save: %v", err)
	}

	token, err := store.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "second" {
		t.Fatalf("unexpected token %q", token)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("unexpected permissions %o", perm)
	}
}

func TestOtherKeysSurviveTokenWrites(t *testing.T) {
	store := NewFile(filepath.Join(t.TempDir(), "storage.json"), "")
	if err := store.Set("theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SaveToken(context.Background(), "tok"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.ClearToken(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	theme, ok, err := store.Get("theme")
	if err != nil || !ok || theme != "dark" {
		t.Fatalf("expected theme to survive, got %q %v %v", theme, ok, err)
	}
	if _, err := store.Token(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken after clear, got %v", err)
	}
}

func TestSealedValuesAreNotPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	store := NewFile(path, "storage-key")
	if err := store.SaveToken(context.Background(), "secret-token"); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw[TokenKey] == "" || raw[TokenKey] == "secret-token" {
		t.Fatalf("expected sealed value, got %q", raw[TokenKey])
	}

	token, err := store.Token()
	if err != nil || token != "secret-token" {
		t.Fatalf("expected round trip, got %q %v", token, err)
	}
	if _, err := NewFile(path, "other-key").Token(); err == nil {
		t.Fatalf("expected error opening with wrong key")
	}
}

func TestCorruptFileIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := NewFile(path, "").SaveToken(context.Background(), "tok"); err == nil {
		t.Fatalf("expected decode error")
	}
}
