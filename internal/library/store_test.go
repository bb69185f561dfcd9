package library

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/pipeline"
	"github.com/loqalabs/loqa-reader/internal/storage"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, maxEntries int) *Store {
	t.Helper()
	cfg := config.LibraryConfig{Path: filepath.Join(t.TempDir(), "library.db"), MaxEntries: maxEntries, VacuumOnStart: true}
	lib, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func TestSaveAndGet(t *testing.T) {
	lib := openStore(t, 0)
	ctx := context.Background()
	entry := Entry{
		ID:               "entry-1",
		Title:            "Essay",
		Text:             "Once upon a time.",
		Voice:            "fable",
		Location:         "/audio/entry-1.wav",
		SegmentDurations: []time.Duration{30 * time.Second, 30 * time.Second, 25 * time.Second},
		TotalDuration:    85 * time.Second,
		CreatedAt:        time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := lib.Save(ctx, entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := lib.Get(ctx, "entry-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != entry.Title || got.Text != entry.Text || got.Location != entry.Location || got.TotalDuration != entry.TotalDuration {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if !got.CreatedAt.Equal(entry.CreatedAt) {
		t.Fatalf("created_at = %s", got.CreatedAt)
	}
	if len(got.SegmentDurations) != 3 || got.SegmentDurations[2] != 25*time.Second {
		t.Fatalf("unexpected durations: %v", got.SegmentDurations)
	}

	entry.Title = "Essay, revised"
	entry.SegmentDurations = entry.SegmentDurations[:1]
	if err := lib.Save(ctx, entry); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, _ = lib.Get(ctx, "entry-1")
	if got.Title != "Essay, revised" || len(got.SegmentDurations) != 1 {
		t.Fatalf("resave not applied: %+v", got)
	}

	if _, err := lib.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirstAndPrune(t *testing.T) {
	lib := openStore(t, 2)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		lib.clock = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		if err := lib.Save(ctx, Entry{ID: id, Title: id, Text: "x", Voice: "fable", Location: id + ".wav"}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	entries, err := lib.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 || entries[0].ID != "new" || entries[2].ID != "old" {
		t.Fatalf("unexpected order: %+v", entries)
	}
	if entries[0].Text != "" {
		t.Fatal("list should omit entry text")
	}

	evicted, err := lib.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(evicted) != 1 || evicted[0].ID != "old" {
		t.Fatalf("unexpected eviction: %+v", evicted)
	}
	if _, err := lib.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old entry still present: %v", err)
	}
}

func TestManagerReclaimsAudio(t *testing.T) {
	ctx := context.Background()
	lib := openStore(t, 1)
	dir := t.TempDir()
	blobs, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	mgr := NewManager(lib, blobs, newLogger())

	record := func(id string, at time.Time) {
		t.Helper()
		loc, err := blobs.Put(ctx, pipeline.AssetKey(id), bytes.NewReader([]byte("RIFF")))
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		conv := pipeline.Conversion{
			ID:        id,
			Title:     id,
			Text:      "text",
			Voice:     synthesis.VoiceNova,
			Asset:     pipeline.JoinedAsset{Location: loc, SegmentDurations: []time.Duration{time.Second}, TotalDuration: time.Second},
			CreatedAt: at,
		}
		if err := mgr.Record(ctx, conv); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	record("first", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	record("second", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	if _, err := os.Stat(filepath.Join(dir, pipeline.AssetKey("first"))); !os.IsNotExist(err) {
		t.Fatalf("evicted audio should be reclaimed, stat err=%v", err)
	}

	entry, err := mgr.Delete(ctx, "second")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if entry.Voice != "nova" {
		t.Fatalf("unexpected deleted entry: %+v", entry)
	}
	if _, err := os.Stat(entry.Location); !os.IsNotExist(err) {
		t.Fatalf("deleted audio should be reclaimed, stat err=%v", err)
	}
	if _, err := mgr.Delete(ctx, "second"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
