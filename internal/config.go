package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Approval      ApprovalConfig      `mapstructure:"approval"`
	Escalation    EscalationConfig    `mapstructure:"escalation"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Posting       PostingConfig       `mapstructure:"posting"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m,max=12h"`
	BCryptCost          int           `mapstructure:"bcrypt_cost" validate:"required,min=10,max=15"`
}

// ApprovalConfig drives the threshold policy and the auto-post cascade.
// Amounts and rates are decimal strings so they survive yaml/env without float rounding.
type ApprovalConfig struct {
	AuthorizationThreshold string            `mapstructure:"authorization_threshold"`
	ReferenceCurrency      string            `mapstructure:"reference_currency"`
	AutoPostOnApproval     bool              `mapstructure:"auto_post_on_approval"`
	VoucherPrefix          string            `mapstructure:"voucher_prefix"`
	Rates                  map[string]string `mapstructure:"rates"`
}

type EscalationConfig struct {
	Schedule           string        `mapstructure:"schedule"`
	ReminderAfter      time.Duration `mapstructure:"reminder_after"`
	EscalateAfter      time.Duration `mapstructure:"escalate_after"`
	EscalationCooldown time.Duration `mapstructure:"escalation_cooldown"`
	Timezone           string        `mapstructure:"timezone"`
}

type NotificationConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type PostingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the configuration for container deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			AccessTokenDuration: getEnvAsDuration("JWT_ACCESS_TOKEN_DURATION", time.Hour),
			BCryptCost:          getEnvAsInt("BCRYPT_COST", 12),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Approval: ApprovalConfig{
			AuthorizationThreshold: getEnv("APPROVAL_AUTHORIZATION_THRESHOLD", "10000"),
			ReferenceCurrency:      getEnv("APPROVAL_REFERENCE_CURRENCY", "USD"),
			AutoPostOnApproval:     getEnv("APPROVAL_AUTO_POST", "false") == "true",
			VoucherPrefix:          getEnv("APPROVAL_VOUCHER_PREFIX", "PAY"),
			Rates:                  parseRates(getEnv("APPROVAL_RATES", "")),
		},
		Escalation: EscalationConfig{
			Schedule:           getEnv("ESCALATION_SCHEDULE", "@every 1h"),
			ReminderAfter:      getEnvAsDuration("ESCALATION_REMINDER_AFTER", 24*time.Hour),
			EscalateAfter:      getEnvAsDuration("ESCALATION_ESCALATE_AFTER", 72*time.Hour),
			EscalationCooldown: getEnvAsDuration("ESCALATION_COOLDOWN", 7*24*time.Hour),
			Timezone:           getEnv("ESCALATION_TIMEZONE", "UTC"),
		},
		Notification: NotificationConfig{
			NATSURL:       getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NOTIFICATION_SUBJECT_PREFIX", "notifications.payments"),
		},
		Posting: PostingConfig{
			BaseURL: getEnv("POSTING_BASE_URL", ""),
			APIKey:  getEnv("POSTING_API_KEY", ""),
			Timeout: getEnvAsDuration("POSTING_TIMEOUT", 30*time.Second),
		},
	}
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// parseRates reads "EUR=1.08,IDR=0.000064" into a currency → rate map.
func parseRates(raw string) map[string]string {
	rates := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, rate, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = strings.TrimSpace(rate)
	}
	return rates
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Approval.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("approval config: %v", err))
	}

	if err := c.Escalation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("escalation config: %v", err))
	}

	if err := c.Posting.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("posting config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if c.AccessTokenDuration <= 0 {
		return errors.New("access_token_duration must be positive")
	}
	return nil
}

func (c *ApprovalConfig) Validate() error {
	if c.AuthorizationThreshold == "" {
		return errors.New("authorization_threshold is required")
	}
	if _, err := strconv.ParseFloat(c.AuthorizationThreshold, 64); err != nil {
		return fmt.Errorf("authorization_threshold is not a number: %w", err)
	}
	if len(c.ReferenceCurrency) != 3 {
		return errors.New("reference_currency must be a 3-letter ISO code")
	}
	for code, rate := range c.Rates {
		if _, err := strconv.ParseFloat(rate, 64); err != nil {
			return fmt.Errorf("rate for %s is not a number: %w", code, err)
		}
	}
	return nil
}

func (c *EscalationConfig) Validate() error {
	if c.ReminderAfter <= 0 || c.EscalateAfter <= 0 {
		return errors.New("reminder_after and escalate_after must be positive")
	}
	if c.EscalateAfter < c.ReminderAfter {
		return errors.New("escalate_after must be >= reminder_after")
	}
	if c.EscalationCooldown <= 0 {
		return errors.New("escalation_cooldown must be positive")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %s: %w", c.Timezone, err)
		}
	}
	return nil
}

func (c *PostingConfig) Validate() error {
	if c.BaseURL == "" {
		return nil
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	return nil
}
