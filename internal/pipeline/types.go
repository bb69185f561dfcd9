// Package pipeline turns chunked text into one joined, seekable audio asset.
package pipeline

import (
	"fmt"
	"time"
)

// Segment is the stored audio of one synthesized chunk.
type Segment struct {
	Index    int
	Location string
	Duration time.Duration
}

// JoinedAsset is the playable result of a conversion. SegmentDurations is
// aligned with chunk index and sums to TotalDuration.
type JoinedAsset struct {
	Location         string
	SegmentDurations []time.Duration
	TotalDuration    time.Duration
}

// SegmentKey names the stored audio of chunk index within a conversion.
func SegmentKey(conversionID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d.wav", conversionID, index)
}

// AssetKey names the joined audio of a conversion.
func AssetKey(conversionID string) string {
	return conversionID + ".wav"
}

// checkSequence reports ErrMissingSegment unless segments are exactly
// indices 0..n-1 in ascending order.
func checkSequence(segments []Segment) error {
	for i, seg := range segments {
		if seg.Index != i {
			return fmt.Errorf("%w: expected index %d, found %d", ErrMissingSegment, i, seg.Index)
		}
		if seg.Location == "" {
			return fmt.Errorf("%w: index %d has no location", ErrMissingSegment, i)
		}
	}
	return nil
}
