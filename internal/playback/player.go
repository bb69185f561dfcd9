package playback

import "time"

// Item is one separately addressable entry of a player queue.
type Item struct {
	Location string
	Duration time.Duration
}

// Player is a queue-based media player. Items ahead of the current one are
// dequeued once played and cannot be sought back into without Load.
type Player interface {
	// Load replaces the queue and parks at the start of its first item,
	// paused.
	Load(items []Item) error
	Play()
	Pause()
	// Seek moves within the current item.
	Seek(offset time.Duration) error
	// CurrentItem is the index of the playing item within the loaded queue,
	// or -1 when the queue is exhausted.
	CurrentItem() int
	// Elapsed is the position inside the current item.
	Elapsed() time.Duration
}

// Media is what the controller plays. Segments, when set, are the chunk
// durations laid over the items and are used only for status reporting.
type Media struct {
	Title    string
	Items    []Item
	Segments []time.Duration
}

// JoinedMedia plays one joined asset as a single item.
func JoinedMedia(title, location string, segmentDurations []time.Duration) Media {
	var total time.Duration
	for _, d := range segmentDurations {
		total += d
	}
	return Media{
		Title:    title,
		Items:    []Item{{Location: location, Duration: total}},
		Segments: append([]time.Duration(nil), segmentDurations...),
	}
}

// QueueMedia plays every segment as its own queue item.
func QueueMedia(title string, locations []string, durations []time.Duration) Media {
	items := make([]Item, 0, len(locations))
	for i, loc := range locations {
		var d time.Duration
		if i < len(durations) {
			d = durations[i]
		}
		items = append(items, Item{Location: loc, Duration: d})
	}
	return Media{Title: title, Items: items, Segments: append([]time.Duration(nil), durations...)}
}
