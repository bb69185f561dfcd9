package synthesis

import (
	"context"
	"strings"
	"time"

	"github.com/loqalabs/loqa-reader/internal/audio"
)

const mockWordsPerMinute = 150

type mockProvider struct {
	format audio.Format
	delay  time.Duration
}

// NewMockProvider renders silence whose length follows the word count of
// the text, after waiting delay.
func NewMockProvider(sampleRate, channels int, delay time.Duration) Provider {
	return &mockProvider{
		format: audio.Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16},
		delay:  delay,
	}
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return audio.Silence(MockDuration(req.Text, req.Speed), m.format)
}

// MockDuration is the length the mock provider renders for text.
func MockDuration(text string, speed float64) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	if speed <= 0 {
		speed = 1
	}
	d := time.Duration(float64(words) * 60 / mockWordsPerMinute / speed * float64(time.Second))
	return d.Round(10 * time.Millisecond)
}
