package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Chunker.MaxChunkSize != 4000 {
		t.Fatalf("expected chunk size 4000, got %d", cfg.Chunker.MaxChunkSize)
	}
	if cfg.Synthesis.Model != "tts-1-hd" || cfg.Synthesis.DefaultVoice != "fable" || cfg.Synthesis.Format != "wav" {
		t.Fatalf("unexpected synthesis defaults: %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.Timeout() != 90*time.Second {
		t.Fatalf("expected 90s timeout, got %s", cfg.Synthesis.Timeout())
	}
	if cfg.Playback.SkipInterval() != 30*time.Second || cfg.Playback.ReportInterval() != time.Second {
		t.Fatalf("unexpected playback defaults: %+v", cfg.Playback)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reader.yaml")
	data := []byte(`
runtime_name: reader-test
synthesis:
  mode: openai
  default_voice: nova
  speed: 1.5
  max_concurrency: 4
chunker:
  max_chunk_size: 1000
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "reader-test" || cfg.Synthesis.Mode != "openai" || cfg.Synthesis.DefaultVoice != "nova" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Synthesis.Speed != 1.5 || cfg.Synthesis.MaxConcurrency != 4 || cfg.Chunker.MaxChunkSize != 1000 {
		t.Fatalf("numeric values not applied: %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.Model != "tts-1-hd" {
		t.Fatalf("expected untouched default model, got %s", cfg.Synthesis.Model)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_READER_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_READER_BUS_USERNAME", "alice")
	t.Setenv("LOQA_READER_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_READER_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_READER_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_READER_LIBRARY_PATH", "./tmp.db")
	t.Setenv("LOQA_READER_LIBRARY_MAX_ENTRIES", "123")
	t.Setenv("LOQA_READER_LIBRARY_VACUUM_ON_START", "true")
	t.Setenv("LOQA_READER_SYNTHESIS_MODE", "exec")
	t.Setenv("LOQA_READER_SYNTHESIS_COMMAND", "piper --json")
	t.Setenv("LOQA_READER_SYNTHESIS_SPEED", "0.75")
	t.Setenv("LOQA_READER_SYNTHESIS_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("LOQA_READER_PLAYBACK_SKIP_INTERVAL_MS", "15000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Library.Path != "./tmp.db" {
		t.Fatalf("expected library path override")
	}
	if cfg.Library.MaxEntries != 123 {
		t.Fatalf("expected library max entries override")
	}
	if !cfg.Library.VacuumOnStart {
		t.Fatalf("expected library vacuum flag override")
	}
	if cfg.Synthesis.Mode != "exec" || cfg.Synthesis.Command != "piper --json" {
		t.Fatalf("expected synthesis mode override")
	}
	if cfg.Synthesis.Speed != 0.75 || cfg.Synthesis.RequestsPerSecond != 2.5 {
		t.Fatalf("expected float overrides, got %+v", cfg.Synthesis)
	}
	if cfg.Playback.SkipInterval() != 15*time.Second {
		t.Fatalf("expected skip interval override")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown mode":     func(c *Config) { c.Synthesis.Mode = "espeak" },
		"exec no command":  func(c *Config) { c.Synthesis.Mode = "exec" },
		"bad voice":        func(c *Config) { c.Synthesis.DefaultVoice = "robot" },
		"non wav format":   func(c *Config) { c.Synthesis.Format = "mp3" },
		"zero chunk size":  func(c *Config) { c.Chunker.MaxChunkSize = 0 },
		"speed too high":   func(c *Config) { c.Synthesis.Speed = 5 },
		"bad log level":    func(c *Config) { c.Telemetry.LogLevel = "trace" },
		"no skip interval": func(c *Config) { c.Playback.SkipIntervalMS = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
