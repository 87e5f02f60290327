package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string
	Environment      string
	AllowedOrigins   []string
	JWTSecret        string
	OperatorPassword string
	Redis            RedisConfig
	WebSocket        WebSocketConfig
	Signaling        SignalingConfig
	Log              LogConfig
}

type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Addr returns the host:port dial address.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type WebSocketConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	// RateLimit is the sustained number of inbound events per second a single
	// connection may send. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

type SignalingConfig struct {
	QueueSize int
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("jwt_secret", "change-me-in-production")
	v.SetDefault("operator_password", "")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "livestream:")
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 64*1024)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.rate_limit", 50)
	v.SetDefault("websocket.rate_burst", 100)

	v.SetDefault("signaling.queue_size", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load resolves configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence. A nil v uses a fresh viper
// instance; callers pass their own to layer bound command-line flags on top.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Port:             v.GetString("port"),
		Environment:      v.GetString("environment"),
		AllowedOrigins:   splitList(v.Get("allowed_origins")),
		JWTSecret:        v.GetString("jwt_secret"),
		OperatorPassword: v.GetString("operator_password"),
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetString("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
			TTL:       v.GetDuration("redis.ttl"),
		},
		WebSocket: WebSocketConfig{
			PingInterval:   v.GetDuration("websocket.ping_interval"),
			PongWait:       v.GetDuration("websocket.pong_wait"),
			WriteWait:      v.GetDuration("websocket.write_wait"),
			MaxMessageSize: v.GetInt64("websocket.max_message_size"),
			SendBuffer:     v.GetInt("websocket.send_buffer"),
			RateLimit:      v.GetFloat64("websocket.rate_limit"),
			RateBurst:      v.GetInt("websocket.rate_burst"),
		},
		Signaling: SignalingConfig{
			QueueSize: v.GetInt("signaling.queue_size"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("websocket ping interval must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket ping interval (%s) must be shorter than pong wait (%s)",
			c.WebSocket.PingInterval, c.WebSocket.PongWait)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return errors.New("websocket send buffer must be positive")
	}
	if c.Signaling.QueueSize <= 0 {
		return errors.New("signaling queue size must be positive")
	}
	if c.Environment == "production" && c.JWTSecret == "change-me-in-production" {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

// splitList accepts either a YAML list or a comma-separated string
// (environment variables can only carry the latter).
func splitList(raw interface{}) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []interface{}:
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
