package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string
	// TrustedProxies are extra CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	PostgresDSN  string

	// AMQP, optional. Empty URL disables the change feed.
	AMQPURL               string
	AMQPExchange          string
	AMQPChangeQueue       string
	AMQPNotificationQueue string

	// Worker
	CycleInterval time.Duration
	Timezone      string
	// SeenCacheSize is the initial bound of the surfaced-notification set;
	// it grows to fit the set derived in a cycle.
	SeenCacheSize int
	// SeenCacheTTL, when non-zero, lets a notification surface again after
	// it expires. Zero keeps ids for the process lifetime.
	SeenCacheTTL time.Duration

	// Alerts
	AppLink      string
	EmailAPIURL  string
	EmailTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validBackends   = []string{"memory", "sqlite", "postgres"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/teambudget.db"),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),

		AMQPURL:               getEnv("AMQP_URL", ""),
		AMQPExchange:          getEnv("AMQP_EXCHANGE", "teambudget"),
		AMQPChangeQueue:       getEnv("AMQP_CHANGE_QUEUE", "budget_changes"),
		AMQPNotificationQueue: getEnv("AMQP_NOTIFICATION_QUEUE", "budget_notifications"),

		CycleInterval: getEnvDuration("CYCLE_INTERVAL", time.Hour),
		Timezone:      getEnv("TIMEZONE", "UTC"),
		SeenCacheSize: getEnvInt("SEEN_CACHE_SIZE", 1000),
		SeenCacheTTL:  getEnvDuration("SEEN_CACHE_TTL", 0),

		AppLink:      getEnv("APP_LINK", "http://localhost:8081"),
		EmailAPIURL:  getEnv("EMAIL_API_URL", "https://api.emailjs.com/api/v1.0/email/send"),
		EmailTimeout: getEnvDuration("EMAIL_TIMEOUT", 10*time.Second),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPChangeQueue == "" {
			errors = append(errors, "AMQP change queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPNotificationQueue == "" {
			errors = append(errors, "AMQP notification queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CycleInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cycle interval %v: must be at least 1 second", c.CycleInterval))
	} else if c.CycleInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid cycle interval %v: must be at most 24 hours", c.CycleInterval))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.SeenCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid seen cache size %d: must be at least 1", c.SeenCacheSize))
	}
	if c.SeenCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid seen cache ttl %v: must not be negative", c.SeenCacheTTL))
	}

	if c.AppLink != "" {
		if u, err := url.Parse(c.AppLink); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid app link '%s': must be an absolute URL", c.AppLink))
		}
	}
	if u, err := url.Parse(c.EmailAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("invalid email API URL '%s': must be http or https", c.EmailAPIURL))
	}
	if c.EmailTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid email timeout %v: must be positive", c.EmailTimeout))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
