package playback

import (
	"testing"
	"time"
)

const s = time.Second

func TestTimelineSeek(t *testing.T) {
	tl := NewTimeline([]time.Duration{10 * s, 15 * s, 20 * s})
	if tl.Total() != 45*s {
		t.Fatalf("total = %s", tl.Total())
	}
	cases := []struct {
		target time.Duration
		want   Position
	}{
		{0, Position{0, 0}},
		{-5 * s, Position{0, 0}},
		{9 * s, Position{0, 9 * s}},
		{10 * s, Position{1, 0}},
		{12 * s, Position{1, 2 * s}},
		{30 * s, Position{2, 5 * s}},
		{45 * s, Position{2, 20 * s}},
		{100 * s, Position{2, 20 * s}},
	}
	for _, tc := range cases {
		if got := tl.Seek(tc.target); got != tc.want {
			t.Fatalf("Seek(%s) = %+v, want %+v", tc.target, got, tc.want)
		}
	}
}

func TestTimelineRoundTrip(t *testing.T) {
	tl := NewTimeline([]time.Duration{30 * s, 30 * s, 25 * s})
	pos := tl.Seek(65 * s)
	if pos != (Position{Index: 2, Offset: 5 * s}) {
		t.Fatalf("Seek(65s) = %+v", pos)
	}
	for _, target := range []time.Duration{0, 1 * s, 29 * s, 30 * s, 59 * s, 60 * s, 84 * s, 85 * s} {
		p := tl.Seek(target)
		if got := tl.GlobalTime(p.Index, p.Offset); got != target {
			t.Fatalf("round trip of %s gave %s via %+v", target, got, p)
		}
	}
}

func TestTimelineEdges(t *testing.T) {
	empty := NewTimeline(nil)
	if got := empty.Seek(5 * s); got != (Position{}) {
		t.Fatalf("empty seek = %+v", got)
	}
	if empty.GlobalTime(3, s) != 0 {
		t.Fatal("empty timeline should clamp to zero")
	}

	withZero := NewTimeline([]time.Duration{5 * s, 0, 5 * s})
	if got := withZero.Seek(5 * s); got != (Position{Index: 2, Offset: 0}) {
		t.Fatalf("zero-length items must be skipped, got %+v", got)
	}
	if got := withZero.GlobalTime(1, 10*s); got != 10*s {
		t.Fatalf("GlobalTime clamp = %s", got)
	}
}
