package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultSkipInterval is the jump applied by SkipForward and SkipBackward.
const DefaultSkipInterval = 30 * time.Second

// ErrNotLoaded is returned by Load when media has no items.
var ErrNotLoaded = errors.New("no media loaded")

// Controller keeps one global cursor over the loaded media. Elapsed time is
// never stored; it is recomputed from the player's current item and offset.
type Controller struct {
	mu       sync.Mutex
	player   Player
	reporter Reporter
	logger   *slog.Logger
	skip     time.Duration

	media    Media
	items    Timeline
	segments Timeline
	base     int
	loaded   bool
	playing  bool
}

// NewController drives player. A nil reporter drops status updates;
// skip <= 0 uses DefaultSkipInterval.
func NewController(player Player, reporter Reporter, skip time.Duration, logger *slog.Logger) *Controller {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if skip <= 0 {
		skip = DefaultSkipInterval
	}
	return &Controller{
		player:   player,
		reporter: reporter,
		skip:     skip,
		logger:   logger.With(slog.String("component", "playback")),
	}
}

// Load queues media from the start, paused.
func (c *Controller) Load(ctx context.Context, media Media) error {
	if len(media.Items) == 0 {
		return ErrNotLoaded
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.player.Load(media.Items); err != nil {
		return err
	}
	durations := make([]time.Duration, len(media.Items))
	for i, item := range media.Items {
		durations[i] = item.Duration
	}
	c.media = media
	c.items = NewTimeline(durations)
	segments := media.Segments
	if len(segments) == 0 {
		segments = durations
	}
	c.segments = NewTimeline(segments)
	c.base = 0
	c.loaded = true
	c.playing = false
	c.reportLocked(ctx)
	return nil
}

// Play resumes playback.
func (c *Controller) Play(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return
	}
	if c.player.CurrentItem() < 0 {
		c.seekLocked(0)
	}
	c.player.Play()
	c.playing = true
	c.reportLocked(ctx)
}

// Pause halts playback in place.
func (c *Controller) Pause(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return
	}
	c.player.Pause()
	c.playing = false
	c.reportLocked(ctx)
}

// TogglePlayPause flips between playing and paused.
func (c *Controller) TogglePlayPause(ctx context.Context) {
	c.mu.Lock()
	playing := c.playing
	c.mu.Unlock()
	if playing {
		c.Pause(ctx)
		return
	}
	c.Play(ctx)
}

// StartOver rewinds to the beginning and plays.
func (c *Controller) StartOver(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return
	}
	c.seekLocked(0)
	c.player.Play()
	c.playing = true
	c.reportLocked(ctx)
}

// Seek moves the global cursor to target, clamped to the media length, and
// returns the resulting elapsed time.
func (c *Controller) Seek(ctx context.Context, target time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return 0
	}
	c.seekLocked(target)
	c.reportLocked(ctx)
	return c.elapsedLocked()
}

// SkipForward jumps ahead by the skip interval.
func (c *Controller) SkipForward(ctx context.Context) time.Duration {
	return c.skipBy(ctx, c.skip)
}

// SkipBackward jumps back by the skip interval.
func (c *Controller) SkipBackward(ctx context.Context) time.Duration {
	return c.skipBy(ctx, -c.skip)
}

func (c *Controller) skipBy(ctx context.Context, delta time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return 0
	}
	c.seekLocked(c.elapsedLocked() + delta)
	c.reportLocked(ctx)
	return c.elapsedLocked()
}

// HandleItemEnd is called by the player surface when an item finishes.
// Playback stops once the last item has ended.
func (c *Controller) HandleItemEnd(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return
	}
	if c.player.CurrentItem() < 0 {
		c.playing = false
	}
	c.reportLocked(ctx)
}

// Status returns the current snapshot. It is the zero Status when nothing
// is loaded.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Report pushes the current status. It is a no-op when nothing is loaded.
func (c *Controller) Report(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reportLocked(ctx)
}

// RunReporter pushes status every interval while media is playing, until
// ctx is done.
func (c *Controller) RunReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.playing {
				c.reportLocked(ctx)
			}
			c.mu.Unlock()
		}
	}
}

// seekLocked rebuilds the queue from the target item when it is not the
// one currently loaded, then seeks inside it.
func (c *Controller) seekLocked(target time.Duration) {
	pos := c.items.Seek(target)
	current := c.player.CurrentItem()
	if current < 0 || c.base+current != pos.Index {
		if err := c.player.Load(c.media.Items[pos.Index:]); err != nil {
			c.logger.Warn("failed to rebuild queue", slog.Int("item", pos.Index), slogError(err))
			return
		}
		c.base = pos.Index
		if c.playing {
			c.player.Play()
		}
	}
	if err := c.player.Seek(pos.Offset); err != nil {
		c.logger.Warn("seek failed", slog.Int("item", pos.Index), slog.Duration("offset", pos.Offset), slogError(err))
	}
}

func (c *Controller) elapsedLocked() time.Duration {
	current := c.player.CurrentItem()
	if current < 0 {
		return c.items.Total()
	}
	return c.items.GlobalTime(c.base+current, c.player.Elapsed())
}

func (c *Controller) statusLocked() Status {
	if !c.loaded {
		return Status{}
	}
	elapsed := c.elapsedLocked()
	rate := 0.0
	if c.playing {
		rate = 1.0
	}
	return Status{
		Title:   c.media.Title,
		Elapsed: elapsed,
		Total:   c.items.Total(),
		Rate:    rate,
		Segment: c.segments.Seek(elapsed).Index,
	}
}

func (c *Controller) reportLocked(ctx context.Context) {
	if !c.loaded {
		return
	}
	if err := c.reporter.Report(ctx, c.statusLocked()); err != nil {
		c.logger.Debug("now playing report failed", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
