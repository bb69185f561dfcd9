// Package playback maps a global elapsed-time cursor onto a queue of audio
// items and drives a queue-based player with it.
package playback

import "time"

// Position is a point inside one item of a timeline.
type Position struct {
	Index  int
	Offset time.Duration
}

// Timeline is an ordered list of durations laid back to back.
type Timeline struct {
	durations []time.Duration
	starts    []time.Duration
	total     time.Duration
}

// NewTimeline copies durations. Negative durations count as zero.
func NewTimeline(durations []time.Duration) Timeline {
	t := Timeline{
		durations: make([]time.Duration, len(durations)),
		starts:    make([]time.Duration, len(durations)),
	}
	for i, d := range durations {
		if d < 0 {
			d = 0
		}
		t.durations[i] = d
		t.starts[i] = t.total
		t.total += d
	}
	return t
}

// Len is the number of items.
func (t Timeline) Len() int { return len(t.durations) }

// Total is the sum of all durations.
func (t Timeline) Total() time.Duration { return t.total }

// Duration returns the length of item i, or zero when out of range.
func (t Timeline) Duration(i int) time.Duration {
	if i < 0 || i >= len(t.durations) {
		return 0
	}
	return t.durations[i]
}

// Start is the global time at which item i begins. Indices past the end
// map to Total.
func (t Timeline) Start(i int) time.Duration {
	switch {
	case i <= 0:
		return 0
	case i >= len(t.starts):
		return t.total
	}
	return t.starts[i]
}

// GlobalTime converts a position inside item index to elapsed time.
func (t Timeline) GlobalTime(index int, offset time.Duration) time.Duration {
	return t.Clamp(t.Start(index) + offset)
}

// Clamp bounds d to [0, Total].
func (t Timeline) Clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > t.total {
		return t.total
	}
	return d
}

// Seek resolves elapsed time to the item where the running total first
// exceeds it. Targets at or past the end resolve to the end of the last
// item.
func (t Timeline) Seek(target time.Duration) Position {
	if len(t.durations) == 0 {
		return Position{}
	}
	target = t.Clamp(target)
	var running time.Duration
	for i, d := range t.durations {
		if running+d > target {
			return Position{Index: i, Offset: target - running}
		}
		running += d
	}
	last := len(t.durations) - 1
	return Position{Index: last, Offset: t.durations[last]}
}
