package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// exportTolerance bounds the difference between the joined duration and the
// duration probed back from the exported asset.
const exportTolerance = 50 * time.Millisecond

// Assembler joins stored segments into one asset.
type Assembler struct {
	store   storage.Store
	tempDir string
	inst    *instruments
	logger  *slog.Logger
}

// NewAssembler joins through temp files in tempDir, or the system temp
// directory when empty.
func NewAssembler(store storage.Store, tempDir string, logger *slog.Logger) *Assembler {
	return &Assembler{
		store:   store,
		tempDir: tempDir,
		inst:    newInstruments(),
		logger:  logger.With(slog.String("component", "assembler")),
	}
}

// Assemble probes every segment, appends them back to back and stores the
// result under the conversion's asset key. On success the segment files are
// removed. On failure they are kept and returned in the *AssemblyError.
func (a *Assembler) Assemble(ctx context.Context, conversionID string, segments []Segment) (JoinedAsset, error) {
	ctx, span := a.inst.tracer.Start(ctx, "pipeline.assemble", trace.WithAttributes(
		attribute.String("conversion.id", conversionID),
		attribute.Int("segments", len(segments)),
	))
	defer span.End()

	fail := func(kind AssemblyKind, err error) (JoinedAsset, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		a.inst.conversionDone(ctx, kind.String(), 0)
		a.logger.Warn("assembly failed",
			slog.String("conversion_id", conversionID),
			slog.String("kind", kind.String()),
			slogError(err))
		return JoinedAsset{}, &AssemblyError{Kind: kind, ConversionID: conversionID, Segments: segments, Err: err}
	}

	if len(segments) == 0 {
		return fail(ProbeError, ErrNoContent)
	}
	if err := checkSequence(segments); err != nil {
		return fail(ProbeError, err)
	}

	infos, err := a.probeAll(ctx, segments)
	if err != nil {
		return fail(ProbeError, err)
	}
	for i, info := range infos {
		if info.Format != infos[0].Format {
			return fail(ExportError, fmt.Errorf("segment %d is %s, segment 0 is %s: %w",
				i, info.Format, infos[0].Format, audio.ErrFormatMismatch))
		}
	}

	asset, err := a.export(ctx, conversionID, segments)
	if err != nil {
		return fail(ExportError, err)
	}

	a.Discard(ctx, segments)
	a.inst.conversionDone(ctx, "ok", asset.TotalDuration)
	span.SetAttributes(attribute.Int64("asset.duration_ms", asset.TotalDuration.Milliseconds()))
	a.logger.Info("conversion assembled",
		slog.String("conversion_id", conversionID),
		slog.Int("segments", len(segments)),
		slog.Duration("duration", asset.TotalDuration),
		slog.String("location", asset.Location))
	return asset, nil
}

// probeAll measures every segment concurrently. Results are indexed by
// segment index.
func (a *Assembler) probeAll(ctx context.Context, segments []Segment) ([]audio.Info, error) {
	infos := make([]audio.Info, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	for i, seg := range segments {
		g.Go(func() error {
			info, err := a.probe(gctx, seg.Location)
			if err != nil {
				return fmt.Errorf("probe segment %d: %w", seg.Index, err)
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

func (a *Assembler) probe(ctx context.Context, location string) (audio.Info, error) {
	rc, err := a.store.Open(ctx, location)
	if err != nil {
		return audio.Info{}, err
	}
	defer rc.Close()
	return audio.Probe(rc)
}

func (a *Assembler) export(ctx context.Context, conversionID string, segments []Segment) (JoinedAsset, error) {
	tmp, err := os.CreateTemp(a.tempDir, ".join-*.wav")
	if err != nil {
		return JoinedAsset{}, fmt.Errorf("create temp track: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	joiner := audio.NewJoiner(tmp)
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return JoinedAsset{}, err
		}
		if err := a.appendSegment(ctx, joiner, seg); err != nil {
			return JoinedAsset{}, err
		}
	}
	if err := joiner.Close(); err != nil {
		return JoinedAsset{}, err
	}

	total := joiner.Duration()
	offsets := joiner.Offsets()
	durations := make([]time.Duration, len(offsets))
	for i := range offsets {
		end := total
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		durations[i] = end - offsets[i]
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return JoinedAsset{}, fmt.Errorf("rewind temp track: %w", err)
	}
	location, err := a.store.Put(ctx, AssetKey(conversionID), tmp)
	if err != nil {
		return JoinedAsset{}, fmt.Errorf("store joined track: %w", err)
	}

	exported, err := a.probe(ctx, location)
	if err == nil && absDuration(exported.Duration-total) > exportTolerance {
		err = fmt.Errorf("exported track is %s, expected %s", exported.Duration, total)
	}
	if err != nil {
		if delErr := a.store.Delete(context.WithoutCancel(ctx), location); delErr != nil {
			a.logger.Warn("failed to remove bad export", slog.String("location", location), slogError(delErr))
		}
		return JoinedAsset{}, fmt.Errorf("verify joined track: %w", err)
	}

	return JoinedAsset{Location: location, SegmentDurations: durations, TotalDuration: total}, nil
}

func (a *Assembler) appendSegment(ctx context.Context, joiner *audio.Joiner, seg Segment) error {
	rc, err := a.store.Open(ctx, seg.Location)
	if err != nil {
		return fmt.Errorf("open segment %d: %w", seg.Index, err)
	}
	defer rc.Close()
	if _, err := joiner.Append(rc); err != nil {
		return fmt.Errorf("append segment %d: %w", seg.Index, err)
	}
	return nil
}

// Discard removes stored segments. It is used after a successful export
// and by callers giving up on a failed assembly.
func (a *Assembler) Discard(ctx context.Context, segments []Segment) {
	ctx = context.WithoutCancel(ctx)
	for _, seg := range segments {
		if err := a.store.Delete(ctx, seg.Location); err != nil && !errors.Is(err, storage.ErrNotFound) {
			a.logger.Warn("failed to remove segment", slog.String("location", seg.Location), slogError(err))
		}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
