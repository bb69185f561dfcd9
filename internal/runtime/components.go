package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/library"
	"github.com/loqalabs/loqa-reader/internal/pipeline"
	"github.com/loqalabs/loqa-reader/internal/storage"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
)

// Components is the bus-independent part of the reader: storage, library
// and the conversion pipeline. The CLI uses it directly.
type Components struct {
	Blobs     *storage.FileStore
	Library   *library.Store
	Manager   *library.Manager
	Client    *synthesis.Client
	Converter *pipeline.Converter
}

// OpenComponents wires storage, library and pipeline from cfg.
func OpenComponents(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Components, error) {
	blobs, err := storage.NewFileStore(cfg.Storage.Directory)
	if err != nil {
		return nil, err
	}
	lib, err := library.Open(ctx, cfg.Library, logger)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	manager := library.NewManager(lib, blobs, logger)
	if _, err := manager.Prune(ctx); err != nil {
		logger.Warn("library prune on start failed", slogError(err))
	}

	client, err := synthesis.NewFromConfig(cfg.Synthesis, logger)
	if err != nil {
		lib.Close()
		return nil, fmt.Errorf("create synthesis client: %w", err)
	}
	orchestrator := pipeline.NewOrchestrator(client, blobs, cfg.Synthesis.MaxConcurrency, logger)
	assembler := pipeline.NewAssembler(blobs, cfg.Storage.TempDirectory, logger)
	converter := pipeline.NewConverter(orchestrator, assembler, blobs, manager, cfg.Chunker.MaxChunkSize, logger)

	logger.Info("reader pipeline ready",
		slog.String("provider", client.Provider()),
		slog.String("storage", blobs.Dir()),
		slog.Int("max_chunk_size", cfg.Chunker.MaxChunkSize))

	return &Components{
		Blobs:     blobs,
		Library:   lib,
		Manager:   manager,
		Client:    client,
		Converter: converter,
	}, nil
}

func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	return c.Library.Close()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
