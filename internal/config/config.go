// Package config loads server and client settings from the environment with
// documented defaults. CLI flags override individual fields on top.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr     = "ROOMLOOP_LISTEN_ADDR"
	envVarAllowedOrigins = "ALLOWED_ORIGINS"
	envVarLogLevel       = "LOG_LEVEL"
	envVarLogFormat      = "LOG_FORMAT"

	envVarMaxRoomSize       = "MAX_ROOM_SIZE"
	envVarIdleTimeout       = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarPingInterval      = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxMessageBytes   = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarShutdownTimeout   = "SHUTDOWN_TIMEOUT"

	envVarRedisAddr     = "REDIS_ADDR"
	envVarRedisPassword = "REDIS_PASSWORD"
	envVarRedisDB       = "REDIS_DB"
	envVarPresenceTTL   = "PRESENCE_TTL"

	envVarSTUNServers    = "STUN_SERVERS"
	envVarConnectTimeout = "CONNECT_TIMEOUT"
	envVarReconnectDelay = "RECONNECT_DELAY"

	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultPresenceTTL     = 24 * time.Hour
	DefaultSTUNServer      = "stun:stun.l.google.com:19302"
	DefaultConnectTimeout  = 30 * time.Second
	DefaultReconnectDelay  = 3 * time.Second
)

// Config carries every knob for both the server and the headless client.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	LogLevel        slog.Level
	LogFormat       string // "text" or "json"
	ShutdownTimeout time.Duration

	// MaxRoomSize caps participants per room; 0 (the default) means no cap.
	MaxRoomSize int

	IdleTimeout       time.Duration
	PingInterval      time.Duration
	MaxMessageBytes   int64
	MessagesPerSecond int64

	// RedisAddr enables the presence mirror when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	STUNServers    []string
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
}

// Load reads the environment. It fails on unparseable values rather than
// silently falling back, so typos in deployments surface at startup.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:      getEnv(envVarListenAddr, DefaultListenAddr),
		LogFormat:       getEnv(envVarLogFormat, "text"),
		ShutdownTimeout: DefaultShutdownTimeout,
		RedisAddr:       os.Getenv(envVarRedisAddr),
		RedisPassword:   os.Getenv(envVarRedisPassword),
		PresenceTTL:     DefaultPresenceTTL,
		ConnectTimeout:  DefaultConnectTimeout,
		ReconnectDelay:  DefaultReconnectDelay,
	}

	if raw := os.Getenv(envVarAllowedOrigins); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	level, err := parseLogLevel(getEnv(envVarLogLevel, "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("%s: unsupported format %q", envVarLogFormat, cfg.LogFormat)
	}

	intFields := []struct {
		env string
		dst *int
	}{
		{envVarMaxRoomSize, &cfg.MaxRoomSize},
		{envVarRedisDB, &cfg.RedisDB},
	}
	for _, f := range intFields {
		if raw := os.Getenv(f.env); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return Config{}, fmt.Errorf("%s: invalid value %q", f.env, raw)
			}
			*f.dst = n
		}
	}

	int64Fields := []struct {
		env string
		dst *int64
	}{
		{envVarMaxMessageBytes, &cfg.MaxMessageBytes},
		{envVarMessagesPerSecond, &cfg.MessagesPerSecond},
	}
	for _, f := range int64Fields {
		if raw := os.Getenv(f.env); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n < 0 {
				return Config{}, fmt.Errorf("%s: invalid value %q", f.env, raw)
			}
			*f.dst = n
		}
	}

	durationFields := []struct {
		env string
		dst *time.Duration
	}{
		{envVarIdleTimeout, &cfg.IdleTimeout},
		{envVarPingInterval, &cfg.PingInterval},
		{envVarShutdownTimeout, &cfg.ShutdownTimeout},
		{envVarPresenceTTL, &cfg.PresenceTTL},
		{envVarConnectTimeout, &cfg.ConnectTimeout},
		{envVarReconnectDelay, &cfg.ReconnectDelay},
	}
	for _, f := range durationFields {
		if raw := os.Getenv(f.env); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d < 0 {
				return Config{}, fmt.Errorf("%s: invalid duration %q", f.env, raw)
			}
			*f.dst = d
		}
	}

	cfg.STUNServers = []string{DefaultSTUNServer}
	if raw := os.Getenv(envVarSTUNServers); raw != "" {
		cfg.STUNServers = nil
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.STUNServers = append(cfg.STUNServers, s)
			}
		}
	}

	return cfg, nil
}

// SetupLogger installs the process-wide slog handler.
func (c Config) SetupLogger() {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	var handler slog.Handler
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%s: unsupported level %q", envVarLogLevel, raw)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
