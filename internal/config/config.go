package config

import (
	"fmt"
	"time"
)

// Config is the full service configuration, populated from the environment.
type Config struct {
	App       AppConfig       `env-prefix:"APP_"`
	Database  DatabaseConfig  `env-prefix:"DB_"`
	Redis     RedisConfig     `env-prefix:"REDIS_"`
	Kafka     KafkaConfig     `env-prefix:"KAFKA_"`
	MFA       MFAConfig       `env-prefix:"MFA_"`
	RateLimit RateLimitConfig `env-prefix:"RATE_LIMIT_"`
	Cleanup   CleanupConfig   `env-prefix:"CLEANUP_"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name        string `env:"NAME" env-default:"mfa-service"`
	Environment string `env:"ENV" env-default:"development"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	MetricsAddr string `env:"METRICS_ADDR" env-default:":9090"`
}

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	Host         string        `env:"HOST" env-default:"localhost"`
	Port         int           `env:"PORT" env-default:"5432"`
	User         string        `env:"USER" env-default:"mfa"`
	Password     string        `env:"PASSWORD" env-default:""`
	DBName       string        `env:"NAME" env-default:"mfa"`
	SSLMode      string        `env:"SSL_MODE" env-default:"disable"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" env-default:"2"`
	ConnMaxLife  time.Duration `env:"CONN_MAX_LIFE" env-default:"30m"`
	MigrationsUp bool          `env:"MIGRATIONS_UP" env-default:"true"`
}

// RedisConfig holds the rate limiter backend settings.
type RedisConfig struct {
	Addr     string `env:"ADDR" env-default:"localhost:6379"`
	Password string `env:"PASSWORD" env-default:""`
	DB       int    `env:"DB" env-default:"0"`
}

// KafkaConfig holds the event producer settings.
type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" env-default:"false"`
	Brokers []string `env:"BROKERS" env-default:"localhost:9092"`
	Topic   string   `env:"TOPIC" env-default:"mfa-events"`
}

// MFAConfig holds the enrollment and challenge policy.
type MFAConfig struct {
	Issuer               string        `env:"ISSUER" env-default:"Aurora ID"`
	TOTPDigits           int           `env:"TOTP_DIGITS" env-default:"6"`
	TOTPPeriodSeconds    int           `env:"TOTP_PERIOD_SECONDS" env-default:"30"`
	TOTPWindow           int           `env:"TOTP_WINDOW" env-default:"1"`
	TOTPSecretLength     int           `env:"TOTP_SECRET_LENGTH" env-default:"20"`
	RecoveryCodeCount    int           `env:"RECOVERY_CODE_COUNT" env-default:"8"`
	SetupCodeLength      int           `env:"SETUP_CODE_LENGTH" env-default:"6"`
	SetupCodeTTL         time.Duration `env:"SETUP_CODE_TTL" env-default:"10m"`
	EmailCodeLength      int           `env:"EMAIL_CODE_LENGTH" env-default:"6"`
	ChallengeMaxAttempts int           `env:"CHALLENGE_MAX_ATTEMPTS" env-default:"3"`
	ChallengeTTL         time.Duration `env:"CHALLENGE_TTL" env-default:"5m"`
	PushChallengeTTL     time.Duration `env:"PUSH_CHALLENGE_TTL" env-default:"5m"`
	PushSetupTTL         time.Duration `env:"PUSH_SETUP_TTL" env-default:"5m"`
}

// RateLimitRule bounds one operation class per user.
type RateLimitRule struct {
	Enabled bool          `env:"ENABLED" env-default:"true"`
	Limit   int           `env:"LIMIT" env-default:"5"`
	Window  time.Duration `env:"WINDOW" env-default:"15m"`
}

// RateLimitConfig groups the per-operation rules.
type RateLimitConfig struct {
	ChallengeCreate RateLimitRule `env-prefix:"CHALLENGE_"`
	Send            RateLimitRule `env-prefix:"SEND_"`
}

// CleanupConfig holds the retention policy of the background worker.
type CleanupConfig struct {
	Interval                  time.Duration `env:"INTERVAL" env-default:"10m"`
	ChallengeRetention        time.Duration `env:"CHALLENGE_RETENTION" env-default:"24h"`
	PushChallengeRetention    time.Duration `env:"PUSH_CHALLENGE_RETENTION" env-default:"24h"`
	UnverifiedMethodRetention time.Duration `env:"UNVERIFIED_METHOD_RETENTION" env-default:"72h"`
}

// Validate rejects out-of-range policy values before anything is wired.
func (c *Config) Validate() error {
	m := c.MFA
	if m.TOTPDigits < 6 || m.TOTPDigits > 8 {
		return fmt.Errorf("MFA_TOTP_DIGITS must be between 6 and 8, got %d", m.TOTPDigits)
	}
	if m.TOTPPeriodSeconds < 15 || m.TOTPPeriodSeconds > 120 {
		return fmt.Errorf("MFA_TOTP_PERIOD_SECONDS must be between 15 and 120, got %d", m.TOTPPeriodSeconds)
	}
	if m.TOTPSecretLength < 16 || m.TOTPSecretLength > 32 {
		return fmt.Errorf("MFA_TOTP_SECRET_LENGTH must be between 16 and 32, got %d", m.TOTPSecretLength)
	}
	if m.ChallengeMaxAttempts <= 0 {
		return fmt.Errorf("MFA_CHALLENGE_MAX_ATTEMPTS must be positive, got %d", m.ChallengeMaxAttempts)
	}
	if m.ChallengeTTL <= 0 {
		return fmt.Errorf("MFA_CHALLENGE_TTL must be positive, got %s", m.ChallengeTTL)
	}
	if m.PushChallengeTTL < time.Minute || m.PushChallengeTTL > 30*time.Minute {
		return fmt.Errorf("MFA_PUSH_CHALLENGE_TTL must be between 1m and 30m, got %s", m.PushChallengeTTL)
	}
	if m.PushSetupTTL < time.Minute || m.PushSetupTTL > 30*time.Minute {
		return fmt.Errorf("MFA_PUSH_SETUP_TTL must be between 1m and 30m, got %s", m.PushSetupTTL)
	}
	if m.RecoveryCodeCount <= 0 {
		return fmt.Errorf("MFA_RECOVERY_CODE_COUNT must be positive, got %d", m.RecoveryCodeCount)
	}
	return nil
}
