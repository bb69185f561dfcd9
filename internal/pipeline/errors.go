package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-reader/internal/synthesis"
)

var (
	// ErrNoContent means the text produced no chunks.
	ErrNoContent = errors.New("text contains nothing to read")
	// ErrMissingSegment means the segment sequence has a gap or duplicate.
	ErrMissingSegment = errors.New("segment sequence is incomplete")
)

// ChunkFailure records why one chunk failed.
type ChunkFailure struct {
	Index int
	Kind  synthesis.FailureKind
	Err   error
}

// SynthesisError is the single failure reported when any chunk of a
// conversion failed. Failures are sorted by index.
type SynthesisError struct {
	ConversionID string
	Failures     []ChunkFailure
}

func (e *SynthesisError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("chunk %d: %v", f.Index, f.Err))
	}
	return fmt.Sprintf("conversion %s: %d chunk(s) failed: %s", e.ConversionID, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the per-chunk errors to errors.Is and errors.As.
func (e *SynthesisError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedIndices lists the failed chunk indices in ascending order.
func (e *SynthesisError) FailedIndices() []int {
	out := make([]int, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Index)
	}
	return out
}

// Kind is the kind of the first failure, used for summary reporting.
func (e *SynthesisError) Kind() synthesis.FailureKind {
	if len(e.Failures) == 0 {
		return synthesis.ProviderError
	}
	return e.Failures[0].Kind
}

// AssemblyKind classifies assembly failures.
type AssemblyKind int

const (
	ProbeError AssemblyKind = iota + 1
	ExportError
)

func (k AssemblyKind) String() string {
	switch k {
	case ProbeError:
		return "probe_error"
	case ExportError:
		return "export_error"
	}
	return "unknown"
}

// AssemblyError is returned when segments could not be joined. Segments are
// still stored so assembly can be retried without synthesizing again.
type AssemblyError struct {
	Kind         AssemblyKind
	ConversionID string
	Segments     []Segment
	Err          error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("conversion %s: assembly failed: %s: %v", e.ConversionID, e.Kind, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}
