package synthesis

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/loqalabs/loqa-reader/internal/config"
)

// NewFromConfig builds the configured provider and wraps it in a Client.
func NewFromConfig(cfg config.SynthesisConfig, logger *slog.Logger) (*Client, error) {
	var (
		provider Provider
		creds    CredentialSource
		err      error
	)
	switch cfg.Mode {
	case "mock":
		provider = NewMockProvider(cfg.SampleRate, cfg.Channels, 0)
	case "openai":
		provider = NewOpenAIProvider(cfg.Endpoint, cfg.Model, &http.Client{})
		creds = EnvCredentials{Var: cfg.APIKeyEnv, File: cfg.APIKeyFile}
	case "exec":
		provider, err = NewExecProvider(cfg.Command, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported synthesis mode %q", cfg.Mode)
	}
	return NewClient(provider, creds, Options{
		Format:            cfg.Format,
		Speed:             cfg.Speed,
		Timeout:           cfg.Timeout(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}, logger), nil
}
