package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBuildKey(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	got := BuildKey("en", "fr", "req-1", "audio/mpeg", now)
	if got != "en-fr/2026-03-14/req-1.mp3" {
		t.Errorf("key = %q", got)
	}

	got = BuildKey("es", "de", "req-2", "application/octet-stream", now)
	if got != "es-de/2026-03-14/req-2.bin" {
		t.Errorf("key = %q, want bin fallback", got)
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()
	key := "en-fr/2026-03-14/req-1.mp3"
	data := []byte("mp3-bytes")

	if err := s.Save(ctx, key, data, "audio/mpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !s.Exists(ctx, key) {
		t.Error("Exists = false after Save")
	}
	if got := s.LocalPath(key); got != filepath.Join(dir, "en-fr", "2026-03-14", "req-1.mp3") {
		t.Errorf("LocalPath = %q", got)
	}

	r, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if !bytes.Equal(got, data) {
		t.Errorf("read back %q, want %q", got, data)
	}

	url, err := s.URL(ctx, key)
	if err != nil || url != "" {
		t.Errorf("URL = %q, %v; local store has no URLs", url, err)
	}
	if s.Type() != "local" {
		t.Errorf("Type = %q", s.Type())
	}
}

func TestLocalStoreMissingKey(t *testing.T) {
	s := NewLocalStore(t.TempDir())

	if s.Exists(context.Background(), "nope/2026-01-01/x.mp3") {
		t.Error("Exists = true for missing key")
	}
	if got := s.LocalPath("nope/2026-01-01/x.mp3"); got != "" {
		t.Errorf("LocalPath = %q, want empty", got)
	}
}

func TestLocalStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	if err := s.Save(context.Background(), "en-fr/2026-03-14/a.mp3", []byte("x"), "audio/mpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "en-fr", "2026-03-14"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "a.mp3" {
			t.Errorf("unexpected file %q left behind", e.Name())
		}
	}
}

func TestOutputPruner(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()

	oldKey := "en-fr/2026-03-13/old.mp3"
	freshKey := "en-de/2026-03-14/fresh.mp3"
	if err := s.Save(ctx, oldKey, []byte("old"), "audio/mpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, freshKey, []byte("fresh"), "audio/mpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(s.LocalPath(oldKey), stale, stale); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	p := NewOutputPruner(dir, 24*time.Hour, zerolog.Nop())
	p.prune()

	if s.Exists(ctx, oldKey) {
		t.Error("stale output survived prune")
	}
	if !s.Exists(ctx, freshKey) {
		t.Error("fresh output was pruned")
	}
	if _, err := os.Stat(filepath.Join(dir, "en-fr")); !os.IsNotExist(err) {
		t.Error("emptied pair directory was not removed")
	}
}

func TestOutputPrunerZeroRetention(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()

	key := "en-fr/2026-03-13/keep.mp3"
	if err := s.Save(ctx, key, []byte("keep"), "audio/mpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	stale := time.Now().Add(-1000 * time.Hour)
	os.Chtimes(s.LocalPath(key), stale, stale)

	p := NewOutputPruner(dir, 0, zerolog.Nop())
	p.prune()

	if !s.Exists(ctx, key) {
		t.Error("zero retention must disable pruning")
	}
}
