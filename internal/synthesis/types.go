package synthesis

import (
	"context"
	"fmt"
	"strings"
)

// Voice identifies one of the supported speaker voices.
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"
)

// DefaultVoice is used when a request does not name one.
const DefaultVoice = VoiceFable

// Voices lists the supported voices in display order.
func Voices() []Voice {
	return []Voice{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer}
}

// ParseVoice accepts a voice name in any case. Empty input yields DefaultVoice.
func ParseVoice(s string) (Voice, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultVoice, nil
	}
	for _, v := range Voices() {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unsupported voice %q", s)
}

// Request contains parameters for one provider call.
type Request struct {
	Text       string
	Voice      Voice
	Format     string
	Speed      float64
	Credential string
}

// Provider is the contract for an external speech backend. It returns the
// raw audio body; verification happens in Client.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
