// Package config loads the chat server's runtime settings. Defaults are
// overridden by an optional chat.properties file, then by CHAT_* environment
// variables, then by the command line.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Tyrowin/linechat/internal/protocol"
)

const (
	fileName     = "chat"
	fileType     = "properties"
	envVarPrefix = "CHAT"
)

// ErrInvalidPort is returned when a port override is not a number in 1-65535.
var ErrInvalidPort = errors.New("invalid port")

// RateLimitConfig defines the per-session token bucket.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// WebSocketConfig controls the optional WebSocket gateway.
type WebSocketConfig struct {
	// Listen address for the HTTP server, e.g. ":8080". Blank disables the gateway.
	Addr string `mapstructure:"addr"`
	// Origins allowed to upgrade. "*" allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig is consumed by NewLogger.
type LoggingConfig struct {
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Full path to file to which logs will be written. Blank will write to stderr.
	FilePath      string `mapstructure:"file"`
	IncludeCaller bool   `mapstructure:"include_caller"`
}

// Config contains every option the chat server understands.
type Config struct {
	// Hostname or IP address on which the server listens. Blank listens on all interfaces.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"server_port"`
	// Maximum number of concurrent sessions, including connections still in handshake.
	MaxClients     int `mapstructure:"max_clients"`
	MaxMessageSize int `mapstructure:"max_message_size"`
	MaxNameLength  int `mapstructure:"max_name_length"`
	// Lines queued per session before it is considered too slow and evicted.
	SendBuffer int `mapstructure:"send_buffer"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	CloseTimeout     time.Duration `mapstructure:"close_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	// Source is the file the settings were read from; empty when running on defaults.
	Source string `mapstructure:"-"`
}

// Default returns a Config populated with default values for all settings.
func Default() *Config {
	return &Config{
		Port:             protocol.DefaultPort,
		MaxClients:       4,
		MaxMessageSize:   4096,
		MaxNameLength:    32,
		SendBuffer:       64,
		HandshakeTimeout: 30 * time.Second,
		WriteTimeout:     10 * time.Second,
		CloseTimeout:     2 * time.Second,
		ShutdownTimeout:  5 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads chat.properties from configDir (if present) and applies CHAT_*
// environment overrides. A missing file is not an error.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigName(fileName)
	v.SetConfigType(fileType)
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	// Nested keys are reachable from the environment too, e.g. rate_limit.burst
	// can be set using CHAT_RATE_LIMIT_BURST.
	v.SetEnvPrefix(envVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	source := ""
	if configDir != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else {
			source = v.ConfigFileUsed()
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Source = source

	return Sanitize(cfg), nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("host", d.Host)
	v.SetDefault("server_port", d.Port)
	v.SetDefault("max_clients", d.MaxClients)
	v.SetDefault("max_message_size", d.MaxMessageSize)
	v.SetDefault("max_name_length", d.MaxNameLength)
	v.SetDefault("send_buffer", d.SendBuffer)
	v.SetDefault("handshake_timeout", d.HandshakeTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("close_timeout", d.CloseTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", d.RateLimit.RefillInterval)
	v.SetDefault("websocket.addr", d.WebSocket.Addr)
	v.SetDefault("websocket.allowed_origins", d.WebSocket.AllowedOrigins)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.FilePath)
	v.SetDefault("logging.include_caller", d.Logging.IncludeCaller)
}

// Sanitize replaces out-of-range values with their defaults and returns cfg.
func Sanitize(cfg *Config) *Config {
	d := Default()

	if !validPort(cfg.Port) {
		cfg.Port = d.Port
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = d.MaxClients
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = d.MaxMessageSize
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = d.MaxNameLength
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = d.SendBuffer
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = d.CloseTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = d.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = d.RateLimit.RefillInterval
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}

	origins := make([]string, 0, len(cfg.WebSocket.AllowedOrigins))
	for _, origin := range cfg.WebSocket.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.WebSocket.AllowedOrigins = origins

	return cfg
}

// OverridePort applies a port given on the command line. On error the
// configured port is left untouched.
func (c *Config) OverridePort(arg string) error {
	port, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || !validPort(port) {
		return fmt.Errorf("%w: %q", ErrInvalidPort, arg)
	}
	c.Port = port
	return nil
}

// Address returns the host:port the TCP listener binds to.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}
