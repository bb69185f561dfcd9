package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-reader/internal/pipeline"
	"github.com/loqalabs/loqa-reader/internal/storage"
)

// Manager keeps library rows and stored audio in step.
type Manager struct {
	store  *Store
	blobs  storage.Store
	logger *slog.Logger
}

func NewManager(store *Store, blobs storage.Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, blobs: blobs, logger: logger.With(slog.String("component", "library"))}
}

// Record saves a finished conversion as an entry and applies retention.
func (m *Manager) Record(ctx context.Context, c pipeline.Conversion) error {
	entry := Entry{
		ID:               c.ID,
		Title:            c.Title,
		Text:             c.Text,
		Voice:            string(c.Voice),
		Location:         c.Asset.Location,
		SegmentDurations: c.Asset.SegmentDurations,
		TotalDuration:    c.Asset.TotalDuration,
		CreatedAt:        c.CreatedAt,
	}
	if err := m.store.Save(ctx, entry); err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	if _, err := m.Prune(ctx); err != nil {
		m.logger.Warn("library prune failed", slogError(err))
	}
	return nil
}

func (m *Manager) Get(ctx context.Context, id string) (Entry, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, limit int) ([]Entry, error) {
	return m.store.List(ctx, limit)
}

// Delete removes the entry and its joined asset.
func (m *Manager) Delete(ctx context.Context, id string) (Entry, error) {
	entry, err := m.store.Delete(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	m.reclaim(ctx, entry)
	return entry, nil
}

// Prune evicts entries beyond max_entries and reclaims their audio.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	evicted, err := m.store.Prune(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range evicted {
		m.reclaim(ctx, e)
	}
	if len(evicted) > 0 {
		m.logger.Info("library pruned", slog.Int("evicted", len(evicted)))
	}
	return len(evicted), nil
}

func (m *Manager) reclaim(ctx context.Context, e Entry) {
	if e.Location == "" {
		return
	}
	if err := m.blobs.Delete(context.WithoutCancel(ctx), e.Location); err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn("failed to reclaim audio", slog.String("entry_id", e.ID), slog.String("location", e.Location), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
