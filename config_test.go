package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func validConfig() *Config {
	return &Config{
		port:      8080,
		tickRate:  60,
		logFormat: "console",
		mode:      "single",
		name:      "player",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, "--tls-key"},
		{"port zero", func(c *Config) { c.port = 0 }, "invalid port"},
		{"port too large", func(c *Config) { c.port = 70000 }, "invalid port"},
		{"tick rate zero", func(c *Config) { c.tickRate = 0 }, "tick rate"},
		{"bad log format", func(c *Config) { c.logFormat = "xml" }, "log format"},
		{"tls pair", func(c *Config) { c.tlsCert, c.tlsKey = "cert.pem", "key.pem" }, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfigValidatePlay(t *testing.T) {
	cfg := validConfig()
	for _, mode := range []string{"single", "two", "2"} {
		cfg.mode = mode
		if err := cfg.validatePlay(); err != nil {
			t.Errorf("mode %q: %v", mode, err)
		}
	}

	cfg.mode = "three"
	if err := cfg.validatePlay(); err == nil {
		t.Error("mode three accepted")
	}

	cfg.mode = "single"
	cfg.name = "  "
	if err := cfg.validatePlay(); err == nil {
		t.Error("blank name accepted")
	}
}

func TestScheme(t *testing.T) {
	cfg := validConfig()
	if cfg.scheme() != "http" {
		t.Errorf("scheme = %s", cfg.scheme())
	}
	cfg.tlsCert, cfg.tlsKey = "a", "b"
	if cfg.scheme() != "https" {
		t.Errorf("scheme = %s", cfg.scheme())
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("RETROPONG_PORT", "9191")
	t.Setenv("RETROPONG_SESSION_TIMEOUT", "5m")
	t.Setenv("RETROPONG_MODE", "two")

	cfg := &Config{}
	newCmd(cfg)

	if cfg.port != 9191 {
		t.Errorf("port = %d, want 9191", cfg.port)
	}
	if cfg.sessionTimeout != 5*time.Minute {
		t.Errorf("session timeout = %s, want 5m", cfg.sessionTimeout)
	}
	if cfg.mode != "two" {
		t.Errorf("mode = %q, want two", cfg.mode)
	}
	if cfg.tickRate != 60 {
		t.Errorf("tick rate = %d, want default 60", cfg.tickRate)
	}
}

func TestCommandRejectsInvalidFlags(t *testing.T) {
	tests := [][]string{
		{"--port", "0"},
		{"serve", "--tick-rate", "0"},
		{"play", "--mode", "bogus"},
	}

	for _, args := range tests {
		cmd := newCmd(&Config{})
		cmd.SetArgs(args)

		if err := cmd.ExecuteContext(context.Background()); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		cfg := validConfig()
		cfg.logFormat = format

		log, err := newLogger(cfg)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if log.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("%s: debug enabled without --verbose", format)
		}

		cfg.verbose = true
		log, err = newLogger(cfg)
		if err != nil {
			t.Fatalf("%s verbose: %v", format, err)
		}
		if !log.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("%s: debug disabled with --verbose", format)
		}
	}
}
