package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
)

// Joiner appends wav streams back to back into one wav track. Every stream
// must share the format of the first one; no resampling is attempted.
type Joiner struct {
	w       io.WriteSeeker
	enc     *wav.Encoder
	format  Format
	frames  int64
	offsets []time.Duration
	closed  bool
}

// NewJoiner writes the joined track to w.
func NewJoiner(w io.WriteSeeker) *Joiner {
	return &Joiner{w: w}
}

// Append copies all of r into the track and returns what was appended. The
// insertion point of the stream is the total length appended before it.
func (j *Joiner) Append(r io.ReadSeeker) (Info, error) {
	if j.closed {
		return Info{}, errors.New("joiner closed")
	}
	if j.enc == nil {
		info, err := Probe(r)
		if err != nil {
			return Info{}, err
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return Info{}, fmt.Errorf("rewind segment: %w", err)
		}
		j.format = info.Format
		j.enc = wav.NewEncoder(j.w, info.Format.SampleRate, info.Format.BitDepth, info.Format.Channels, wavPCM)
	}

	info, err := copyPCM(r, j.enc)
	if err != nil {
		return Info{}, err
	}
	j.offsets = append(j.offsets, j.format.FrameDuration(j.frames))
	j.frames += info.Frames
	return info, nil
}

// Offsets returns the insertion point of each appended stream.
func (j *Joiner) Offsets() []time.Duration {
	return append([]time.Duration(nil), j.offsets...)
}

// Duration is the length of the track so far.
func (j *Joiner) Duration() time.Duration {
	return j.format.FrameDuration(j.frames)
}

// Close finalizes the wav header. It fails when nothing was appended.
func (j *Joiner) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	if j.enc == nil {
		return ErrNoAudio
	}
	if err := j.enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// seekBuffer is an in-memory io.WriteSeeker for the wav encoder, which
// patches its header sizes after the data is written.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	b.pos = int(next)
	return next, nil
}

func (b *seekBuffer) Bytes() []byte {
	return b.buf
}
