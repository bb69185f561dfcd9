package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-reader/internal/protocol"
)

// Status is a now-playing snapshot.
type Status struct {
	Title   string
	Elapsed time.Duration
	Total   time.Duration
	Rate    float64
	Segment int
}

// Remaining is the time left until the end.
func (s Status) Remaining() time.Duration {
	if s.Elapsed >= s.Total {
		return 0
	}
	return s.Total - s.Elapsed
}

// Reporter pushes now-playing status to an external surface. Reports are
// advisory; errors are logged by the caller and otherwise ignored.
type Reporter interface {
	Report(ctx context.Context, status Status) error
}

// NopReporter drops every report.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Status) error { return nil }

// Publisher is the subset of *nats.Conn used by BusReporter.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// BusReporter publishes status on the now-playing subject.
type BusReporter struct {
	pub   Publisher
	clock func() time.Time
}

func NewBusReporter(pub Publisher) *BusReporter {
	return &BusReporter{pub: pub, clock: time.Now}
}

func (r *BusReporter) Report(_ context.Context, status Status) error {
	data, err := json.Marshal(protocol.NowPlaying{
		Title:     status.Title,
		ElapsedMS: status.Elapsed.Milliseconds(),
		Rate:      status.Rate,
		TotalMS:   status.Total.Milliseconds(),
		Segment:   status.Segment,
		Timestamp: r.clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal now playing: %w", err)
	}
	return r.pub.Publish(protocol.SubjectNowPlaying, data)
}
