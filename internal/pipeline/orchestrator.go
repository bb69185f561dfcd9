package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-reader/internal/chunker"
	"github.com/loqalabs/loqa-reader/internal/storage"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Synthesizer performs one verified synthesis call. *synthesis.Client
// implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, p synthesis.Params) (synthesis.Result, error)
}

// Orchestrator fans chunks out to concurrent synthesis calls and stores
// each result.
type Orchestrator struct {
	synth  Synthesizer
	store  storage.Store
	limit  int
	inst   *instruments
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator. maxConcurrency <= 0 submits every
// chunk at once.
func NewOrchestrator(synth Synthesizer, store storage.Store, maxConcurrency int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		synth:  synth,
		store:  store,
		limit:  maxConcurrency,
		inst:   newInstruments(),
		logger: logger.With(slog.String("component", "orchestrator")),
	}
}

type slot struct {
	segment Segment
	stored  bool
	err     error
}

// SynthesizeAll synthesizes every chunk and returns the stored segments in
// index order. Chunk indices must be exactly 0..n-1 in any order. If any
// chunk fails, every stored segment is removed and a *SynthesisError is
// returned. If ctx is cancelled the results are discarded and the context
// error is returned wrapped.
func (o *Orchestrator) SynthesizeAll(ctx context.Context, conversionID string, chunks []chunker.Chunk, params synthesis.Params) ([]Segment, error) {
	if len(chunks) == 0 {
		return nil, ErrNoContent
	}
	slots := make([]slot, len(chunks))
	seen := make([]bool, len(chunks))
	for _, c := range chunks {
		if c.Index < 0 || c.Index >= len(chunks) || seen[c.Index] {
			return nil, fmt.Errorf("%w: chunk index %d out of sequence", ErrMissingSegment, c.Index)
		}
		seen[c.Index] = true
	}

	ctx, span := o.inst.tracer.Start(ctx, "pipeline.synthesize_all", trace.WithAttributes(
		attribute.String("conversion.id", conversionID),
		attribute.Int("chunks", len(chunks)),
		attribute.String("voice", string(params.Voice)),
	))
	defer span.End()

	var g errgroup.Group
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}
	for _, c := range chunks {
		g.Go(func() error {
			slots[c.Index] = o.synthesizeChunk(ctx, conversionID, c, params)
			return nil
		})
	}
	_ = g.Wait()

	var failures []ChunkFailure
	for i, s := range slots {
		if s.err != nil {
			failures = append(failures, ChunkFailure{Index: i, Kind: synthesis.KindOf(s.err), Err: s.err})
		}
	}

	if err := ctx.Err(); err != nil {
		o.discard(ctx, slots)
		span.SetStatus(codes.Error, "cancelled")
		o.inst.conversionDone(ctx, "cancelled", 0)
		return nil, fmt.Errorf("conversion %s cancelled: %w", conversionID, err)
	}
	if len(failures) > 0 {
		o.discard(ctx, slots)
		synthErr := &SynthesisError{ConversionID: conversionID, Failures: failures}
		span.RecordError(synthErr)
		span.SetStatus(codes.Error, synthErr.Kind().String())
		o.inst.conversionDone(ctx, "synthesis_failed", 0)
		o.logger.Warn("conversion failed",
			slog.String("conversion_id", conversionID),
			slog.Any("failed_chunks", synthErr.FailedIndices()),
			slog.String("kind", synthErr.Kind().String()))
		return nil, synthErr
	}

	segments := make([]Segment, len(slots))
	for i, s := range slots {
		segments[i] = s.segment
	}
	if err := checkSequence(segments); err != nil {
		o.discard(ctx, slots)
		return nil, err
	}
	return segments, nil
}

func (o *Orchestrator) synthesizeChunk(ctx context.Context, conversionID string, c chunker.Chunk, params synthesis.Params) slot {
	if err := ctx.Err(); err != nil {
		return slot{err: synthesis.NewFailure(synthesis.ProviderError, err)}
	}
	start := time.Now()
	res, err := o.synth.Synthesize(ctx, c.Content, params)
	if err != nil {
		kind := synthesis.KindOf(err)
		o.inst.chunkDone(ctx, time.Since(start), kind.String())
		o.logger.Warn("chunk synthesis failed",
			slog.String("conversion_id", conversionID),
			slog.Int("chunk", c.Index),
			slog.String("kind", kind.String()),
			slogError(err))
		return slot{err: err}
	}

	location, err := o.store.Put(ctx, SegmentKey(conversionID, c.Index), bytes.NewReader(res.Audio))
	if err != nil {
		o.inst.chunkDone(ctx, time.Since(start), synthesis.StorageError.String())
		o.logger.Warn("chunk store failed",
			slog.String("conversion_id", conversionID),
			slog.Int("chunk", c.Index),
			slogError(err))
		return slot{err: synthesis.NewFailure(synthesis.StorageError, fmt.Errorf("store segment: %w", err))}
	}
	o.inst.chunkDone(ctx, time.Since(start), "")
	o.logger.Debug("chunk stored",
		slog.String("conversion_id", conversionID),
		slog.Int("chunk", c.Index),
		slog.Int("bytes", len(res.Audio)),
		slog.Duration("duration", res.Info.Duration))
	return slot{
		segment: Segment{Index: c.Index, Location: location, Duration: res.Info.Duration},
		stored:  true,
	}
}

func (o *Orchestrator) discard(ctx context.Context, slots []slot) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range slots {
		if !s.stored {
			continue
		}
		if err := o.store.Delete(ctx, s.segment.Location); err != nil && !errors.Is(err, storage.ErrNotFound) {
			o.logger.Warn("failed to remove segment", slog.String("location", s.segment.Location), slogError(err))
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
