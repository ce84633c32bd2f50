package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// SynthConfig carries every knob the synthesis core consumes. The core
// treats all of these as injected configuration, never as constants.
type SynthConfig struct {
	Mode               string  `yaml:"mode"` // mock, exec
	Command            string  `yaml:"command"`
	ModelRepo          string  `yaml:"model_repo"`
	DefaultVoice       string  `yaml:"default_voice"`
	DefaultSpeed       float64 `yaml:"default_speed"`
	SampleRate         int     `yaml:"sample_rate"`
	Channels           int     `yaml:"channels"`
	SampleWidth        int     `yaml:"sample_width"`
	DefaultChunkLength int     `yaml:"default_chunk_length"`
	MaxChunkLength     int     `yaml:"max_chunk_length"`
	ChunkDelayMS       int     `yaml:"chunk_delay_ms"`
	InitRetries        int     `yaml:"init_retries"`
	InitBackoffMS      int     `yaml:"init_backoff_ms"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	History     HistoryConfig   `yaml:"history"`
	Synth       SynthConfig     `yaml:"synth"`
}

func Default() Config {
	return Config{
		ServiceName: "kokovox",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8001,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		History: HistoryConfig{
			Path:          "./data/kokovox-history.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRecords:    10000,
		},
		Synth: SynthConfig{
			Mode:               "mock",
			ModelRepo:          "hexgrad/Kokoro-82M-v1.1-zh",
			DefaultVoice:       "zf_001",
			DefaultSpeed:       1.2,
			SampleRate:         24000,
			Channels:           1,
			SampleWidth:        2,
			DefaultChunkLength: 30,
			MaxChunkLength:     200,
			ChunkDelayMS:       5,
			InitRetries:        3,
			InitBackoffMS:      2000,
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
	overrideString(&cfg.ServiceName, "KOKOVOX_SERVICE_NAME")
	overrideString(&cfg.Environment, "KOKOVOX_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "KOKOVOX_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "KOKOVOX_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "KOKOVOX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "KOKOVOX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "KOKOVOX_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "KOKOVOX_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "KOKOVOX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "KOKOVOX_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "KOKOVOX_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "KOKOVOX_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "KOKOVOX_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "KOKOVOX_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "KOKOVOX_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "KOKOVOX_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "KOKOVOX_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "KOKOVOX_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "KOKOVOX_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxRecords, "KOKOVOX_HISTORY_MAX_RECORDS")
	overrideBool(&cfg.History.VacuumOnStart, "KOKOVOX_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.Synth.Mode, "KOKOVOX_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "KOKOVOX_SYNTH_COMMAND")
	overrideString(&cfg.Synth.ModelRepo, "KOKOVOX_SYNTH_MODEL_REPO")
	overrideString(&cfg.Synth.DefaultVoice, "KOKOVOX_SYNTH_DEFAULT_VOICE")
	overrideFloat(&cfg.Synth.DefaultSpeed, "KOKOVOX_SYNTH_DEFAULT_SPEED")
	overrideInt(&cfg.Synth.SampleRate, "KOKOVOX_SYNTH_SAMPLE_RATE")
	overrideInt(&cfg.Synth.Channels, "KOKOVOX_SYNTH_CHANNELS")
	overrideInt(&cfg.Synth.SampleWidth, "KOKOVOX_SYNTH_SAMPLE_WIDTH")
	overrideInt(&cfg.Synth.DefaultChunkLength, "KOKOVOX_SYNTH_DEFAULT_CHUNK_LENGTH")
	overrideInt(&cfg.Synth.MaxChunkLength, "KOKOVOX_SYNTH_MAX_CHUNK_LENGTH")
	overrideInt(&cfg.Synth.ChunkDelayMS, "KOKOVOX_SYNTH_CHUNK_DELAY_MS")
	overrideInt(&cfg.Synth.InitRetries, "KOKOVOX_SYNTH_INIT_RETRIES")
	overrideInt(&cfg.Synth.InitBackoffMS, "KOKOVOX_SYNTH_INIT_BACKOFF_MS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
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

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "persistent":
		// ok
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.RetentionMode == "persistent" && cfg.History.Path == "" {
		return errors.New("history.path must not be empty when persistence is enabled")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	if cfg.Synth.Channels <= 0 {
		return errors.New("synth.channels must be positive")
	}
	if cfg.Synth.SampleWidth != 2 {
		return errors.New("synth.sample_width must be 2 (16-bit PCM)")
	}
	if cfg.Synth.DefaultSpeed <= 0 {
		return errors.New("synth.default_speed must be positive")
	}
	if cfg.Synth.DefaultChunkLength <= 0 {
		return errors.New("synth.default_chunk_length must be positive")
	}
	if cfg.Synth.MaxChunkLength < cfg.Synth.DefaultChunkLength {
		return errors.New("synth.max_chunk_length must be >= default_chunk_length")
	}
	if cfg.Synth.ChunkDelayMS < 0 {
		return errors.New("synth.chunk_delay_ms must be >= 0")
	}
	if cfg.Synth.InitRetries <= 0 {
		return errors.New("synth.init_retries must be >= 1")
	}
	return nil
}
