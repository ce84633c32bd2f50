package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synth.SampleRate != 24000 {
		t.Fatalf("expected default sample rate 24000, got %d", cfg.Synth.SampleRate)
	}
	if cfg.Synth.DefaultVoice != "zf_001" {
		t.Fatalf("expected default voice zf_001, got %q", cfg.Synth.DefaultVoice)
	}
	if cfg.Synth.Mode != "mock" {
		t.Fatalf("expected default mode mock, got %q", cfg.Synth.Mode)
	}
	if cfg.HTTP.Port != 8001 {
		t.Fatalf("expected default port 8001, got %d", cfg.HTTP.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KOKOVOX_HTTP_PORT", "9000")
	t.Setenv("KOKOVOX_SYNTH_MODE", "exec")
	t.Setenv("KOKOVOX_SYNTH_COMMAND", "kokoro-runner --stream")
	t.Setenv("KOKOVOX_SYNTH_DEFAULT_VOICE", "zm_010")
	t.Setenv("KOKOVOX_SYNTH_DEFAULT_SPEED", "0.9")
	t.Setenv("KOKOVOX_SYNTH_SAMPLE_RATE", "22050")
	t.Setenv("KOKOVOX_SYNTH_DEFAULT_CHUNK_LENGTH", "45")
	t.Setenv("KOKOVOX_SYNTH_MAX_CHUNK_LENGTH", "300")
	t.Setenv("KOKOVOX_SYNTH_CHUNK_DELAY_MS", "10")
	t.Setenv("KOKOVOX_BUS_ENABLED", "true")
	t.Setenv("KOKOVOX_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("KOKOVOX_BUS_EMBEDDED", "false")
	t.Setenv("KOKOVOX_HISTORY_RETENTION_MODE", "ephemeral")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Port != 9000 {
		t.Fatalf("expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.Synth.Mode != "exec" || cfg.Synth.Command != "kokoro-runner --stream" {
		t.Fatalf("expected synth mode/command override, got %q %q", cfg.Synth.Mode, cfg.Synth.Command)
	}
	if cfg.Synth.DefaultVoice != "zm_010" {
		t.Fatalf("expected voice override, got %q", cfg.Synth.DefaultVoice)
	}
	if cfg.Synth.DefaultSpeed != 0.9 {
		t.Fatalf("expected speed override, got %f", cfg.Synth.DefaultSpeed)
	}
	if cfg.Synth.SampleRate != 22050 {
		t.Fatalf("expected sample rate override, got %d", cfg.Synth.SampleRate)
	}
	if cfg.Synth.DefaultChunkLength != 45 || cfg.Synth.MaxChunkLength != 300 {
		t.Fatalf("expected chunk length overrides, got %d/%d", cfg.Synth.DefaultChunkLength, cfg.Synth.MaxChunkLength)
	}
	if cfg.Synth.ChunkDelayMS != 10 {
		t.Fatalf("expected chunk delay override, got %d", cfg.Synth.ChunkDelayMS)
	}
	if !cfg.Bus.Enabled || cfg.Bus.Embedded {
		t.Fatal("expected bus enabled, external")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.History.RetentionMode != "ephemeral" {
		t.Fatalf("expected history retention override, got %q", cfg.History.RetentionMode)
	}
}

func TestValidateRejectsBadSynthConfig(t *testing.T) {
	cases := []struct {
		name  string
		set   func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Synth.Mode = "cloud" }},
		{"exec without command", func(c *Config) { c.Synth.Mode = "exec"; c.Synth.Command = "" }},
		{"zero sample rate", func(c *Config) { c.Synth.SampleRate = 0 }},
		{"bad sample width", func(c *Config) { c.Synth.SampleWidth = 1 }},
		{"zero speed", func(c *Config) { c.Synth.DefaultSpeed = 0 }},
		{"max below default chunk", func(c *Config) { c.Synth.MaxChunkLength = 10 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.set(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
