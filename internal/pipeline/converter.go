package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-reader/internal/chunker"
	"github.com/loqalabs/loqa-reader/internal/storage"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
)

// Request asks for one text to be read aloud.
type Request struct {
	Title string
	Text  string
	Voice synthesis.Voice
	Speed float64
}

// Conversion describes a finished conversion.
type Conversion struct {
	ID        string
	Title     string
	Text      string
	Voice     synthesis.Voice
	Chunks    int
	Asset     JoinedAsset
	CreatedAt time.Time
}

// Recorder persists finished conversions, e.g. as library entries.
type Recorder interface {
	Record(ctx context.Context, c Conversion) error
}

// Converter runs text through chunking, synthesis and assembly.
type Converter struct {
	orchestrator *Orchestrator
	assembler    *Assembler
	store        storage.Store
	recorder     Recorder
	maxChunkSize int
	newID        func() string
	clock        func() time.Time
	logger       *slog.Logger
}

// NewConverter wires a converter. recorder may be nil.
func NewConverter(orchestrator *Orchestrator, assembler *Assembler, store storage.Store, recorder Recorder, maxChunkSize int, logger *slog.Logger) *Converter {
	return &Converter{
		orchestrator: orchestrator,
		assembler:    assembler,
		store:        store,
		recorder:     recorder,
		maxChunkSize: maxChunkSize,
		newID:        uuid.NewString,
		clock:        time.Now,
		logger:       logger.With(slog.String("component", "converter")),
	}
}

// Convert produces one joined asset for req. Synthesis failures are
// *SynthesisError; assembly failures are *AssemblyError and leave the
// segments stored for RetryAssembly.
func (c *Converter) Convert(ctx context.Context, req Request) (Conversion, error) {
	chunks := chunker.Split(req.Text, c.maxChunkSize)
	if len(chunks) == 0 {
		return Conversion{}, ErrNoContent
	}
	voice := req.Voice
	if voice == "" {
		voice = synthesis.DefaultVoice
	}
	conv := Conversion{
		ID:     c.newID(),
		Title:  req.Title,
		Text:   req.Text,
		Voice:  voice,
		Chunks: len(chunks),
	}
	c.logger.Info("conversion started",
		slog.String("conversion_id", conv.ID),
		slog.Int("chunks", len(chunks)),
		slog.String("voice", string(voice)))

	segments, err := c.orchestrator.SynthesizeAll(ctx, conv.ID, chunks, synthesis.Params{Voice: voice, Speed: req.Speed})
	if err != nil {
		return conv, err
	}
	return c.finish(ctx, conv, segments)
}

// RetryAssembly assembles the segments retained by a failed assembly.
func (c *Converter) RetryAssembly(ctx context.Context, conv Conversion, failed *AssemblyError) (Conversion, error) {
	if failed == nil {
		return conv, errors.New("no failed assembly to retry")
	}
	if conv.ID == "" {
		conv.ID = failed.ConversionID
	}
	return c.finish(ctx, conv, failed.Segments)
}

func (c *Converter) finish(ctx context.Context, conv Conversion, segments []Segment) (Conversion, error) {
	asset, err := c.assembler.Assemble(ctx, conv.ID, segments)
	if err != nil {
		return conv, err
	}
	conv.Asset = asset
	conv.CreatedAt = c.clock().UTC()

	if c.recorder != nil {
		if err := c.recorder.Record(ctx, conv); err != nil {
			if delErr := c.store.Delete(context.WithoutCancel(ctx), asset.Location); delErr != nil {
				c.logger.Warn("failed to remove unrecorded asset", slog.String("location", asset.Location), slogError(delErr))
			}
			return conv, fmt.Errorf("record conversion %s: %w", conv.ID, err)
		}
	}
	return conv, nil
}

// Discard gives up on a failed assembly and removes its segments.
func (c *Converter) Discard(ctx context.Context, failed *AssemblyError) {
	if failed != nil {
		c.assembler.Discard(ctx, failed.Segments)
	}
}
