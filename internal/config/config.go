// Package config loads threadline configuration from defaults, an optional
// TOML file and THREADLINE_* environment variables, in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment override. The first underscore
// after it separates section from key: THREADLINE_COMPLETION_CONTEXT_TOKENS
// sets completion.context_tokens.
const EnvPrefix = "THREADLINE_"

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// DatabaseConfig selects the corpus store.
type DatabaseConfig struct {
	URL      Secret `koanf:"url"`
	MaxConns int    `koanf:"max_conns"`
}

// CompletionConfig points at the llama.cpp-compatible completion server.
type CompletionConfig struct {
	URL           string        `koanf:"url"`
	AllowRemote   bool          `koanf:"allow_remote"`
	Timeout       time.Duration `koanf:"timeout"`
	ContextTokens int           `koanf:"context_tokens"`
	PredictTokens int           `koanf:"predict_tokens"`
	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit float64 `koanf:"rate_limit"`
}

// RosterConfig locates the character roster. An empty path uses the built-in roster.
type RosterConfig struct {
	Path string `koanf:"path"`
}

// PromptConfig names the languages used in prompt headers.
type PromptConfig struct {
	SourceLanguage string `koanf:"source_language"`
	TargetLanguage string `koanf:"target_language"`
}

// RunConfig controls scheduling.
type RunConfig struct {
	Workers  int    `koanf:"workers"`
	Strategy string `koanf:"strategy"`
}

// LogConfig controls the operator log stream.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StatusConfig enables the status server when Addr is set.
type StatusConfig struct {
	Addr string `koanf:"addr"`
}

// OTelConfig enables tracing when Endpoint is set.
type OTelConfig struct {
	Endpoint string `koanf:"endpoint"`
}

// Config holds all application configuration values.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Completion CompletionConfig `koanf:"completion"`
	Roster     RosterConfig     `koanf:"roster"`
	Prompt     PromptConfig     `koanf:"prompt"`
	Run        RunConfig        `koanf:"run"`
	Log        LogConfig        `koanf:"log"`
	Status     StatusConfig     `koanf:"status"`
	OTel       OTelConfig       `koanf:"otel"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"database.url":              "",
		"database.max_conns":        8,
		"completion.url":            "http://127.0.0.1:8080",
		"completion.allow_remote":   false,
		"completion.timeout":        "120s",
		"completion.context_tokens": 1024,
		"completion.predict_tokens": 64,
		"completion.rate_limit":     0.0,
		"roster.path":               "",
		"prompt.source_language":    "Japanese",
		"prompt.target_language":    "English",
		"run.workers":               1,
		"run.strategy":              "shortest-path",
		"log.level":                 "info",
		"log.format":                "text",
		"status.addr":               "",
		"otel.endpoint":             "",
	}
}

// Load layers defaults, the TOML file at path (skipped when path is empty)
// and the environment, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}
