package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// SessionQueueSize bounds each session's outbound event queue. A session
	// that falls this far behind is disconnected rather than blocking the hub.
	SessionQueueSize int `mapstructure:"session_queue_size" yaml:"session_queue_size"`

	// Read-receipt persistence retry policy (tunable, not contract).
	ReceiptRetryAttempts int           `mapstructure:"receipt_retry_attempts" yaml:"receipt_retry_attempts"`
	ReceiptRetryBackoff  time.Duration `mapstructure:"receipt_retry_backoff" yaml:"receipt_retry_backoff"`

	// Optional redis presence mirror. Disabled when addr is empty.
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	PresenceTTL   time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                 ":8080",
		ReadHeaderTimeout:    5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		DatabasePath:         "chatconnect.db",
		LogLevel:             "info",
		JWTIssuer:            "chatconnect",
		JWTAudience:          "chatconnect",
		TokenTTL:             7 * 24 * time.Hour,
		SessionQueueSize:     32,
		ReceiptRetryAttempts: 3,
		ReceiptRetryBackoff:  500 * time.Millisecond,
		PresenceTTL:          60 * time.Second,
	}
}
