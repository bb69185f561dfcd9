package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-reader/internal/playback"
)

const sessionTick = 200 * time.Millisecond

// session is the daemon's headless player. A virtual player is advanced
// by wall time so remote surfaces can drive and observe one cursor.
type session struct {
	player *playback.VirtualPlayer
	ctrl   *playback.Controller
	clock  func() time.Time

	mu    sync.Mutex
	entry string
}

func newSession(reporter playback.Reporter, skip time.Duration, logger *slog.Logger) *session {
	player := playback.NewVirtualPlayer()
	s := &session{
		player: player,
		ctrl:   playback.NewController(player, reporter, skip, logger),
		clock:  time.Now,
	}
	player.OnItemEnd(func() { s.ctrl.HandleItemEnd(context.Background()) })
	return s
}

func (s *session) load(ctx context.Context, entryID string, media playback.Media) error {
	if err := s.ctrl.Load(ctx, media); err != nil {
		return err
	}
	s.mu.Lock()
	s.entry = entryID
	s.mu.Unlock()
	return nil
}

func (s *session) loadedEntry() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry
}

// run advances the player clock and pushes periodic status until ctx ends.
func (s *session) run(ctx context.Context, reportInterval time.Duration) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.ctrl.RunReporter(ctx, reportInterval)
	}()

	ticker := time.NewTicker(sessionTick)
	defer ticker.Stop()
	last := s.clock()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			now := s.clock()
			s.player.Advance(now.Sub(last))
			last = now
		}
	}
}
