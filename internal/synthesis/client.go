// Package synthesis wraps an external text-to-speech provider behind one
// verified call per chunk.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"golang.org/x/time/rate"
)

// Options tunes a Client.
type Options struct {
	Format            string
	Speed             float64
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Params are the per-call voice settings. Zero Speed uses the client
// default.
type Params struct {
	Voice Voice
	Speed float64
}

// Result is verified audio for one chunk.
type Result struct {
	Audio []byte
	Info  audio.Info
}

// Client performs single synthesis calls. It never retries.
type Client struct {
	provider Provider
	creds    CredentialSource
	opts     Options
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewClient wraps provider. A nil creds means the provider needs no
// credential.
func NewClient(provider Provider, creds CredentialSource, opts Options, logger *slog.Logger) *Client {
	if opts.Format == "" {
		opts.Format = "wav"
	}
	if opts.Speed <= 0 {
		opts.Speed = 1.0
	}
	c := &Client{
		provider: provider,
		creds:    creds,
		opts:     opts,
		logger:   logger.With(slog.String("component", "synthesis"), slog.String("provider", provider.Name())),
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// Provider returns the wrapped provider's name.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Synthesize converts text to verified audio. Errors are always *Failure.
func (c *Client) Synthesize(ctx context.Context, text string, p Params) (Result, error) {
	var credential string
	if c.creds != nil {
		key, err := c.creds.Credential(ctx)
		if err != nil {
			if errors.Is(err, ErrAuthMissing) {
				return Result{}, NewFailure(AuthMissing, err)
			}
			return Result{}, NewFailure(AuthMissing, fmt.Errorf("lookup credential: %w", err))
		}
		credential = key
	}
	voice := p.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	speed := p.Speed
	if speed <= 0 {
		speed = c.opts.Speed
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, NewFailure(ProviderError, err)
		}
	}

	callCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := c.provider.Synthesize(callCtx, Request{
		Text:       text,
		Voice:      voice,
		Format:     c.opts.Format,
		Speed:      speed,
		Credential: credential,
	})
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			return Result{}, f
		}
		if callCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("provider call timed out after %s: %w", c.opts.Timeout, err)
		}
		return Result{}, NewFailure(ProviderError, err)
	}

	info, err := audio.ProbeBytes(data)
	if err != nil {
		return Result{}, NewFailure(StorageError, fmt.Errorf("verify audio: %w", err))
	}
	c.logger.Debug("chunk synthesized",
		slog.Int("bytes", len(data)),
		slog.Duration("audio", info.Duration),
		slog.Duration("latency", time.Since(start)))
	return Result{Audio: data, Info: info}, nil
}
