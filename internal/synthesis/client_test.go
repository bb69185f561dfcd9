package synthesis

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-reader/internal/audio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type funcProvider func(ctx context.Context, req Request) ([]byte, error)

func (f funcProvider) Name() string { return "func" }

func (f funcProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

func TestParseVoice(t *testing.T) {
	cases := map[string]Voice{
		"":        DefaultVoice,
		"alloy":   VoiceAlloy,
		" Nova ":  VoiceNova,
		"SHIMMER": VoiceShimmer,
	}
	for in, want := range cases {
		got, err := ParseVoice(in)
		if err != nil {
			t.Fatalf("ParseVoice(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseVoice(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseVoice("robot"); err == nil {
		t.Fatal("expected unsupported voice to fail")
	}
}

func TestEnvCredentials(t *testing.T) {
	t.Setenv("LOQA_READER_TEST_KEY", "")
	dir := t.TempDir()
	file := filepath.Join(dir, "key")

	src := EnvCredentials{Var: "LOQA_READER_TEST_KEY", File: file}
	if _, err := src.Credential(context.Background()); !errors.Is(err, ErrAuthMissing) {
		t.Fatalf("expected ErrAuthMissing, got %v", err)
	}

	if err := os.WriteFile(file, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	key, err := src.Credential(context.Background())
	if err != nil || key != "from-file" {
		t.Fatalf("file credential = %q, %v", key, err)
	}

	t.Setenv("LOQA_READER_TEST_KEY", "from-env")
	key, err = src.Credential(context.Background())
	if err != nil || key != "from-env" {
		t.Fatalf("env credential = %q, %v", key, err)
	}
}

func TestClientAuthMissingSkipsProvider(t *testing.T) {
	var calls atomic.Int32
	provider := funcProvider(func(context.Context, Request) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	})
	client := NewClient(provider, StaticCredentials(""), Options{}, discardLogger())

	_, err := client.Synthesize(context.Background(), "hello", Params{Voice: VoiceFable})
	if KindOf(err) != AuthMissing {
		t.Fatalf("expected auth_missing, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("provider called %d times", calls.Load())
	}
}

func TestClientClassifiesFailures(t *testing.T) {
	cases := []struct {
		name     string
		provider Provider
		timeout  time.Duration
		want     FailureKind
	}{
		{
			name: "provider error",
			provider: funcProvider(func(context.Context, Request) ([]byte, error) {
				return nil, errors.New("503 upstream")
			}),
			want: ProviderError,
		},
		{
			name: "timeout",
			provider: funcProvider(func(ctx context.Context, _ Request) ([]byte, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
			timeout: 20 * time.Millisecond,
			want:    ProviderError,
		},
		{
			name: "unreadable audio",
			provider: funcProvider(func(context.Context, Request) ([]byte, error) {
				return []byte("not audio"), nil
			}),
			want: StorageError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewClient(tc.provider, StaticCredentials("key"), Options{Timeout: tc.timeout}, discardLogger())
			_, err := client.Synthesize(context.Background(), "hello", Params{Voice: VoiceFable})
			if err == nil {
				t.Fatal("expected failure")
			}
			var f *Failure
			if !errors.As(err, &f) {
				t.Fatalf("expected *Failure, got %T", err)
			}
			if f.Kind != tc.want {
				t.Fatalf("kind = %s, want %s", f.Kind, tc.want)
			}
		})
	}
}

func TestClientWithMockProvider(t *testing.T) {
	client := NewClient(NewMockProvider(8000, 1, 0), nil, Options{Speed: 1}, discardLogger())
	res, err := client.Synthesize(context.Background(), "one two three four five", Params{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	want := MockDuration("one two three four five", 1)
	if res.Info.Duration != want {
		t.Fatalf("duration = %s, want %s", res.Info.Duration, want)
	}
	if want != 2*time.Second {
		t.Fatalf("mock duration = %s, want 2s", want)
	}
}

func TestOpenAIProvider(t *testing.T) {
	wavBody, err := audio.Silence(500*time.Millisecond, audio.Format{SampleRate: 24000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("silence: %v", err)
	}

	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"auth"}}`))
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wavBody)
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(srv.URL+"/", "", srv.Client())
	client := NewClient(provider, StaticCredentials("secret"), Options{Speed: 1.25}, discardLogger())

	res, err := client.Synthesize(context.Background(), "Hello there.", Params{Voice: VoiceOnyx})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Info.Duration != 500*time.Millisecond {
		t.Fatalf("duration = %s", res.Info.Duration)
	}
	if got.Model != "tts-1-hd" || got.Voice != "onyx" || got.Input != "Hello there." || got.ResponseFormat != "wav" || got.Speed != 1.25 {
		t.Fatalf("unexpected request body: %+v", got)
	}

	bad := NewClient(provider, StaticCredentials("wrong"), Options{}, discardLogger())
	_, err = bad.Synthesize(context.Background(), "Hello", Params{Voice: VoiceOnyx, Speed: 2})
	if KindOf(err) != ProviderError {
		t.Fatalf("expected provider_error, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "invalid key") {
		t.Fatalf("expected api message in error, got %v", err)
	}
}

func TestOpenAIProviderStreamedWav(t *testing.T) {
	body, err := audio.Silence(2*time.Second, audio.Format{SampleRate: 24000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("silence: %v", err)
	}
	// Streaming encoders cannot know the sizes up front.
	binary.LittleEndian.PutUint32(body[4:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(body[bytes.Index(body, []byte("data"))+4:], 0xFFFFFFFF)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		flusher, _ := w.(http.Flusher)
		for len(body) > 0 {
			n := min(4096, len(body))
			_, _ = w.Write(body[:n])
			body = body[n:]
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	client := NewClient(NewOpenAIProvider(srv.URL, "", srv.Client()), StaticCredentials("secret"), Options{}, discardLogger())
	res, err := client.Synthesize(context.Background(), "Hello there.", Params{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Info.Duration != 2*time.Second {
		t.Fatalf("duration = %s", res.Info.Duration)
	}
}
