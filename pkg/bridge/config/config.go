// Package config loads relay configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Upstream realtime endpoint.
	OpenAIAPIKey     string
	RealtimeURL      string
	Voice            string
	Temperature      float64
	HandshakeTimeout time.Duration

	// Inbound media-stream websocket.
	MediaMaxMessageBytes int64
	MediaWriteTimeout    time.Duration

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	MetricsNamespace string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("VOICEBRIDGE_ADDR", ":8080"),
		OpenAIAPIKey:         strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		RealtimeURL:          envOr("VOICEBRIDGE_REALTIME_URL", "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview"),
		Voice:                envOr("VOICEBRIDGE_VOICE", "alloy"),
		Temperature:          envFloat64Or("VOICEBRIDGE_TEMPERATURE", 0.8),
		HandshakeTimeout:     envDurationOr("VOICEBRIDGE_HANDSHAKE_TIMEOUT", 10*time.Second),
		MediaMaxMessageBytes: envInt64Or("VOICEBRIDGE_MEDIA_MAX_MESSAGE_BYTES", 64*1024),
		MediaWriteTimeout:    envDurationOr("VOICEBRIDGE_MEDIA_WRITE_TIMEOUT", 5*time.Second),
		ReadHeaderTimeout:    envDurationOr("VOICEBRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:  envDurationOr("VOICEBRIDGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		MetricsNamespace:     envOr("VOICEBRIDGE_METRICS_NAMESPACE", "voicebridge"),
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if !strings.HasPrefix(cfg.RealtimeURL, "ws://") && !strings.HasPrefix(cfg.RealtimeURL, "wss://") {
		return Config{}, fmt.Errorf("VOICEBRIDGE_REALTIME_URL must be a ws:// or wss:// URL")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.MediaMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_MEDIA_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.MediaWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_MEDIA_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_TEMPERATURE must be between 0 and 2")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
