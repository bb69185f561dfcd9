// Package audio probes, encodes and joins RIFF/WAVE PCM audio.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavPCM is the WAVE format tag for integer PCM.
const wavPCM = 1

const bufferSamples = 8192

var (
	ErrInvalidContainer = errors.New("audio is not a valid wav container")
	ErrNoAudio          = errors.New("audio contains no samples")
	ErrFormatMismatch   = errors.New("audio format differs from the joined track")
)

// Format describes the PCM layout of a wav stream.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

func (f Format) valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.BitDepth > 0 && f.BitDepth%8 == 0
}

// FrameDuration converts a frame count to a duration at this sample rate.
func (f Format) FrameDuration(frames int64) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// Info is the result of probing a stream.
type Info struct {
	Format   Format
	Frames   int64
	Duration time.Duration
}

// Probe measures the real length of a stream from the PCM bytes it carries.
// The header's declared data size is not trusted since streamed wav
// responses often carry a placeholder there.
func Probe(r io.ReadSeeker) (Info, error) {
	return copyPCM(r, nil)
}

// ProbeBytes probes an in-memory wav payload.
func ProbeBytes(data []byte) (Info, error) {
	return Probe(bytes.NewReader(data))
}

// copyPCM decodes r and, when enc is non-nil, writes every sample to it.
// The header is only used for the format and to find the data chunk; the
// amount of PCM is measured from the stream itself.
func copyPCM(r io.ReadSeeker, enc *wav.Encoder) (Info, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	format := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans), BitDepth: int(dec.BitDepth)}
	if dec.WavAudioFormat != wavPCM || !format.valid() || format.BitDepth > 32 {
		return Info{}, fmt.Errorf("%w: unsupported format %s", ErrInvalidContainer, format)
	}
	if enc != nil {
		want := Format{SampleRate: enc.SampleRate, Channels: enc.NumChans, BitDepth: enc.BitDepth}
		if want != format {
			return Info{}, fmt.Errorf("%w: got %s, want %s", ErrFormatMismatch, format, want)
		}
	}
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}

	payload, err := pcmPayload(r, int64(dec.PCMSize))
	if err != nil {
		return Info{}, fmt.Errorf("measure pcm: %w", err)
	}
	sampleBytes := format.BitDepth / 8
	frameBytes := int64(sampleBytes * format.Channels)
	payload -= payload % frameBytes
	if payload == 0 {
		return Info{}, ErrNoAudio
	}
	frames := payload / frameBytes
	info := Info{Format: format, Frames: frames, Duration: format.FrameDuration(frames)}
	if enc == nil {
		return info, nil
	}

	block := make([]byte, bufferSamples*sampleBytes*format.Channels)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           make([]int, bufferSamples*format.Channels),
		SourceBitDepth: format.BitDepth,
	}
	for left := payload; left > 0; {
		n := int64(len(block))
		if left < n {
			n = left
		}
		if _, err := io.ReadFull(r, block[:n]); err != nil {
			return Info{}, fmt.Errorf("decode pcm: %w", err)
		}
		left -= n
		samples := int(n) / sampleBytes
		buf.Data = buf.Data[:samples]
		for i := range samples {
			buf.Data[i] = decodeSample(block[i*sampleBytes:], sampleBytes)
		}
		if err := enc.Write(buf); err != nil {
			return Info{}, fmt.Errorf("write pcm: %w", err)
		}
	}

	return info, nil
}

// pcmPayload returns the number of PCM bytes from the current position of
// r, which must be the start of the data chunk body. Streamed encoders leave
// the declared size at 0 or 0xFFFFFFFF, and some under-declare it, so the
// declared size is only honoured when a well-formed chunk follows it.
func pcmPayload(r io.ReadSeeker, declared int64) (int64, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	payload := end - start
	if declared > 0 && declared < payload {
		ok, err := chunkAt(r, start+declared+declared%2, end)
		if err != nil {
			return 0, err
		}
		if ok {
			payload = declared
		}
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return 0, err
	}
	return payload, nil
}

// chunkAt reports whether a RIFF chunk header with a printable id and a
// size that fits before end starts at off.
func chunkAt(r io.ReadSeeker, off, end int64) (bool, error) {
	if end-off < 8 {
		return false, nil
	}
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return false, err
	}
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return false, err
	}
	for _, b := range hdr[:4] {
		if b < 0x20 || b > 0x7e {
			return false, nil
		}
	}
	size := int64(binary.LittleEndian.Uint32(hdr[4:]))
	return off+8+size <= end, nil
}

// decodeSample reads one little-endian sample the way the wav decoder
// exposes it: 8-bit unsigned as is, wider depths sign-extended.
func decodeSample(b []byte, sampleBytes int) int {
	switch sampleBytes {
	case 1:
		return int(b[0])
	case 2:
		return int(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
		return int((v << 8) >> 8)
	default:
		return int(int32(binary.LittleEndian.Uint32(b)))
	}
}

// EncodePCM16 wraps little-endian signed 16-bit PCM into a wav container.
func EncodePCM16(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return encodeSamples(samples, Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16})
}

// Silence renders d of digital silence in format f.
func Silence(d time.Duration, f Format) ([]byte, error) {
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return encodeSamples(make([]int, frames*int64(f.Channels)), f)
}

func encodeSamples(samples []int, f Format) ([]byte, error) {
	if !f.valid() {
		return nil, fmt.Errorf("invalid format %s", f)
	}
	out := &seekBuffer{}
	enc := wav.NewEncoder(out, f.SampleRate, f.BitDepth, f.Channels, wavPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           samples,
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return out.Bytes(), nil
}
