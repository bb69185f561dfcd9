package playback

import (
	"errors"
	"sync"
	"time"
)

// VirtualPlayer is a clockless queue player. Time only moves through
// Advance, which makes it usable for headless runs and tests.
type VirtualPlayer struct {
	mu      sync.Mutex
	items   []Item
	current int
	offset  time.Duration
	playing bool
	onEnd   func()
	loads   int
}

func NewVirtualPlayer() *VirtualPlayer {
	return &VirtualPlayer{current: -1}
}

// OnItemEnd registers fn to run, outside the player lock, each time an item
// finishes during Advance.
func (p *VirtualPlayer) OnItemEnd(fn func()) {
	p.mu.Lock()
	p.onEnd = fn
	p.mu.Unlock()
}

func (p *VirtualPlayer) Load(items []Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append([]Item(nil), items...)
	p.current = -1
	if len(p.items) > 0 {
		p.current = 0
	}
	p.offset = 0
	p.playing = false
	p.loads++
	return nil
}

func (p *VirtualPlayer) Play() {
	p.mu.Lock()
	p.playing = p.current >= 0
	p.mu.Unlock()
}

func (p *VirtualPlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

func (p *VirtualPlayer) Seek(offset time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current < 0 {
		return errors.New("queue exhausted")
	}
	if offset < 0 {
		offset = 0
	}
	if d := p.items[p.current].Duration; offset > d {
		offset = d
	}
	p.offset = offset
	return nil
}

func (p *VirtualPlayer) CurrentItem() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *VirtualPlayer) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current < 0 {
		return 0
	}
	return p.offset
}

// Playing reports whether the player is running.
func (p *VirtualPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Loads counts Load calls, i.e. queue rebuilds.
func (p *VirtualPlayer) Loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

// Advance plays d of audio, dequeuing every item that finishes.
func (p *VirtualPlayer) Advance(d time.Duration) {
	p.mu.Lock()
	ended := 0
	for d > 0 && p.playing && p.current >= 0 {
		left := p.items[p.current].Duration - p.offset
		if d < left {
			p.offset += d
			break
		}
		d -= left
		ended++
		p.offset = 0
		p.current++
		if p.current >= len(p.items) {
			p.current = -1
			p.playing = false
		}
	}
	onEnd := p.onEnd
	p.mu.Unlock()

	if onEnd == nil {
		return
	}
	for i := 0; i < ended; i++ {
		onEnd()
	}
}
