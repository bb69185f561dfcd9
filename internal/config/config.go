package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Library     LibraryConfig   `yaml:"library"`
	Storage     StorageConfig   `yaml:"storage"`
	Chunker     ChunkerConfig   `yaml:"chunker"`
	Synthesis   SynthesisConfig `yaml:"synthesis"`
	Playback    PlaybackConfig  `yaml:"playback"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type LibraryConfig struct {
	Path          string `yaml:"path"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
	MaxEntries    int    `yaml:"max_entries"`
}

type StorageConfig struct {
	Directory     string `yaml:"directory"`
	TempDirectory string `yaml:"temp_directory"`
}

type ChunkerConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
}

type SynthesisConfig struct {
	Mode              string  `yaml:"mode"` // mock, openai, exec
	Endpoint          string  `yaml:"endpoint"`
	Model             string  `yaml:"model"`
	Format            string  `yaml:"format"`
	Speed             float64 `yaml:"speed"`
	DefaultVoice      string  `yaml:"default_voice"`
	TimeoutMS         int     `yaml:"timeout_ms"`
	Command           string  `yaml:"command"`
	SampleRate        int     `yaml:"sample_rate"`
	Channels          int     `yaml:"channels"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	APIKeyFile        string  `yaml:"api_key_file"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxConcurrency    int     `yaml:"max_concurrency"`
}

// Timeout is the per-call provider timeout.
func (s SynthesisConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

type PlaybackConfig struct {
	Title            string `yaml:"title"`
	SkipIntervalMS   int    `yaml:"skip_interval_ms"`
	ReportIntervalMS int    `yaml:"report_interval_ms"`
}

func (p PlaybackConfig) SkipInterval() time.Duration {
	return time.Duration(p.SkipIntervalMS) * time.Millisecond
}

func (p PlaybackConfig) ReportInterval() time.Duration {
	return time.Duration(p.ReportIntervalMS) * time.Millisecond
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-reader",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Library: LibraryConfig{
			Path:       "./data/loqa-library.db",
			MaxEntries: 500,
		},
		Storage: StorageConfig{
			Directory: "./data/audio",
		},
		Chunker: ChunkerConfig{
			MaxChunkSize: 4000,
		},
		Synthesis: SynthesisConfig{
			Mode:         "mock",
			Endpoint:     "https://api.openai.com",
			Model:        "tts-1-hd",
			Format:       "wav",
			Speed:        1.0,
			DefaultVoice: "fable",
			TimeoutMS:    90000,
			SampleRate:   24000,
			Channels:     1,
			APIKeyEnv:    "OPENAI_API_KEY",
		},
		Playback: PlaybackConfig{
			Title:            "Loqa Reader",
			SkipIntervalMS:   30000,
			ReportIntervalMS: 1000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_READER_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_READER_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_READER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_READER_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_READER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_READER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_READER_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_READER_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_READER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_READER_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_READER_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_READER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_READER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_READER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_READER_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_READER_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_READER_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Library.Path, "LOQA_READER_LIBRARY_PATH")
	overrideBool(&cfg.Library.VacuumOnStart, "LOQA_READER_LIBRARY_VACUUM_ON_START")
	overrideInt(&cfg.Library.MaxEntries, "LOQA_READER_LIBRARY_MAX_ENTRIES")
	overrideString(&cfg.Storage.Directory, "LOQA_READER_STORAGE_DIRECTORY")
	overrideString(&cfg.Storage.TempDirectory, "LOQA_READER_STORAGE_TEMP_DIRECTORY")
	overrideInt(&cfg.Chunker.MaxChunkSize, "LOQA_READER_CHUNKER_MAX_CHUNK_SIZE")
	overrideString(&cfg.Synthesis.Mode, "LOQA_READER_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Endpoint, "LOQA_READER_SYNTHESIS_ENDPOINT")
	overrideString(&cfg.Synthesis.Model, "LOQA_READER_SYNTHESIS_MODEL")
	overrideString(&cfg.Synthesis.Format, "LOQA_READER_SYNTHESIS_FORMAT")
	overrideFloat(&cfg.Synthesis.Speed, "LOQA_READER_SYNTHESIS_SPEED")
	overrideString(&cfg.Synthesis.DefaultVoice, "LOQA_READER_SYNTHESIS_DEFAULT_VOICE")
	overrideInt(&cfg.Synthesis.TimeoutMS, "LOQA_READER_SYNTHESIS_TIMEOUT_MS")
	overrideString(&cfg.Synthesis.Command, "LOQA_READER_SYNTHESIS_COMMAND")
	overrideInt(&cfg.Synthesis.SampleRate, "LOQA_READER_SYNTHESIS_SAMPLE_RATE")
	overrideInt(&cfg.Synthesis.Channels, "LOQA_READER_SYNTHESIS_CHANNELS")
	overrideString(&cfg.Synthesis.APIKeyEnv, "LOQA_READER_SYNTHESIS_API_KEY_ENV")
	overrideString(&cfg.Synthesis.APIKeyFile, "LOQA_READER_SYNTHESIS_API_KEY_FILE")
	overrideFloat(&cfg.Synthesis.RequestsPerSecond, "LOQA_READER_SYNTHESIS_REQUESTS_PER_SECOND")
	overrideInt(&cfg.Synthesis.Burst, "LOQA_READER_SYNTHESIS_BURST")
	overrideInt(&cfg.Synthesis.MaxConcurrency, "LOQA_READER_SYNTHESIS_MAX_CONCURRENCY")
	overrideString(&cfg.Playback.Title, "LOQA_READER_PLAYBACK_TITLE")
	overrideInt(&cfg.Playback.SkipIntervalMS, "LOQA_READER_PLAYBACK_SKIP_INTERVAL_MS")
	overrideInt(&cfg.Playback.ReportIntervalMS, "LOQA_READER_PLAYBACK_REPORT_INTERVAL_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

var voices = map[string]bool{
	"alloy": true, "echo": true, "fable": true, "onyx": true, "nova": true, "shimmer": true,
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Library.Path == "" {
		return errors.New("library.path must not be empty")
	}
	if cfg.Library.MaxEntries < 0 {
		return errors.New("library.max_entries must be >= 0")
	}
	if cfg.Storage.Directory == "" {
		return errors.New("storage.directory must not be empty")
	}
	if cfg.Chunker.MaxChunkSize <= 0 {
		return errors.New("chunker.max_chunk_size must be positive")
	}

	s := cfg.Synthesis
	switch s.Mode {
	case "mock", "openai", "exec":
	default:
		return errors.New("synthesis.mode must be one of mock|openai|exec")
	}
	if s.Mode == "openai" && s.Endpoint == "" {
		return errors.New("synthesis.endpoint must be set when mode=openai")
	}
	if s.Mode == "exec" && s.Command == "" {
		return errors.New("synthesis.command must be set when mode=exec")
	}
	if s.Format != "wav" {
		return errors.New("synthesis.format must be wav")
	}
	if s.Speed < 0.25 || s.Speed > 4.0 {
		return errors.New("synthesis.speed must be between 0.25 and 4.0")
	}
	if !voices[strings.ToLower(s.DefaultVoice)] {
		return fmt.Errorf("synthesis.default_voice %q is not supported", s.DefaultVoice)
	}
	if s.TimeoutMS <= 0 {
		return errors.New("synthesis.timeout_ms must be positive")
	}
	if s.SampleRate <= 0 {
		return errors.New("synthesis.sample_rate must be positive")
	}
	if s.Channels <= 0 {
		return errors.New("synthesis.channels must be positive")
	}
	if s.RequestsPerSecond < 0 || s.Burst < 0 || s.MaxConcurrency < 0 {
		return errors.New("synthesis rate limits must be >= 0")
	}

	if cfg.Playback.SkipIntervalMS <= 0 {
		return errors.New("playback.skip_interval_ms must be positive")
	}
	if cfg.Playback.ReportIntervalMS <= 0 {
		return errors.New("playback.report_interval_ms must be positive")
	}
	return nil
}
