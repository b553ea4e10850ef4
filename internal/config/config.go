package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                 string
	AppEnv                  string
	AppPort                 string
	DatabaseURL             string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration
	RedisPoolSize           int
	RedisURL                string
	NATSURL                 string
	RealtimeChannel         string
	JWTSecret               string
	SuspiciousThreshold     int
	SuspiciousWindow        time.Duration
	MessagingRateLimitMax   int
	MessagingRateLimitEvery time.Duration
	ProxyHeader             string
	TrustedProxies          []string
}

// BehindProxy reports whether client addresses should be read from a proxy header.
func (c Config) BehindProxy() bool {
	return c.ProxyHeader != "" && len(c.TrustedProxies) > 0
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TUTORLINK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "TutorLink API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("realtime.channel", "tutorlink")
	v.SetDefault("audit.suspicious_threshold", 5)
	v.SetDefault("audit.suspicious_window", "10m")
	v.SetDefault("messaging.rate_limit_max", 30)
	v.SetDefault("messaging.rate_limit_window", "1m")

	window, err := parseDuration(v.GetString("audit.suspicious_window"), 10*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid audit suspicious window: %w", err)
	}

	rateWindow, err := parseDuration(v.GetString("messaging.rate_limit_window"), time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid messaging rate limit window: %w", err)
	}

	connLifetime, err := parseDuration(v.GetString("database.conn_max_lifetime"), 30*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid database connection lifetime: %w", err)
	}

	cfg := Config{
		AppName:                 v.GetString("app.name"),
		AppEnv:                  v.GetString("app.env"),
		AppPort:                 v.GetString("app.port"),
		DatabaseURL:             v.GetString("database.url"),
		DatabaseMaxOpenConns:    v.GetInt("database.max_open_conns"),
		DatabaseMaxIdleConns:    v.GetInt("database.max_idle_conns"),
		DatabaseConnMaxLifetime: connLifetime,
		RedisPoolSize:           v.GetInt("redis.pool_size"),
		RedisURL:                v.GetString("redis.url"),
		NATSURL:                 v.GetString("nats.url"),
		RealtimeChannel:         v.GetString("realtime.channel"),
		JWTSecret:               v.GetString("jwt.secret"),
		SuspiciousThreshold:     v.GetInt("audit.suspicious_threshold"),
		SuspiciousWindow:        window,
		MessagingRateLimitMax:   v.GetInt("messaging.rate_limit_max"),
		MessagingRateLimitEvery: rateWindow,
		ProxyHeader:             strings.TrimSpace(v.GetString("server.proxy_header")),
		TrustedProxies:          splitList(v.GetString("server.trusted_proxies")),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.SuspiciousThreshold <= 0 {
		cfg.SuspiciousThreshold = 5
	}

	if cfg.MessagingRateLimitMax <= 0 {
		cfg.MessagingRateLimitMax = 30
	}

	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
