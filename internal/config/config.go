package config

import (
	"fmt"
	"os"
	"time"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/gateway"
	"ubertool-booking/internal/pricing"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	JWT          JWTConfig          `yaml:"jwt"`
	Log          LogConfig          `yaml:"log"`
	Payment      PaymentConfig      `yaml:"payment"`
	Booking      BookingConfig      `yaml:"booking"`
	Cancellation CancellationConfig `yaml:"cancellation"`
	Notification NotificationConfig `yaml:"notification"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
}

// ServerConfig contains gRPC server settings. The HTTP side server listens on Port+1.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// WebhookRatePerMinute bounds webhook calls per client IP.
	WebhookRatePerMinute int `yaml:"webhook_rate_per_minute"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Type        string `yaml:"type"` // "postgres" or "memory"
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	SSLMode     string `yaml:"ssl_mode"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// RedisConfig enables the distributed tool lock when Addr is set.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// PaymentConfig contains payment gateway settings
type PaymentConfig struct {
	Provider       string `yaml:"provider"` // "stripe" or "mock"
	SecretKey      string `yaml:"secret_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
	Currency       string `yaml:"currency"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     uint64 `yaml:"max_retries"`
	ChargeDeposit  bool   `yaml:"charge_deposit"`
}

// FeeConfig is a fee added to every new booking.
type FeeConfig struct {
	Type        string `yaml:"type"`
	AmountCents int64  `yaml:"amount_cents"`
	Description string `yaml:"description"`
}

// BookingConfig contains booking lifecycle settings
type BookingConfig struct {
	MinDurationDays    int         `yaml:"min_duration_days"`
	MaxDurationDays    int         `yaml:"max_duration_days"`
	MaxTotalCents      int64       `yaml:"max_total_cents"`
	LockTimeoutSeconds int         `yaml:"lock_timeout_seconds"`
	ActivateOnPayment  bool        `yaml:"activate_on_payment"`
	MaxConflictRetries int         `yaml:"max_conflict_retries"`
	Fees               []FeeConfig `yaml:"fees"`
}

type TierConfig struct {
	MinHoursBeforeStart float64 `yaml:"min_hours_before_start"`
	FeePercent          int     `yaml:"fee_percent"`
}

// CancellationConfig contains the cancellation fee schedule
type CancellationConfig struct {
	Tiers                     []TierConfig `yaml:"tiers"`
	NoCancellationWithinHours float64      `yaml:"no_cancellation_within_hours"`
}

// NotificationConfig contains notification delivery settings
type NotificationConfig struct {
	SendGridAPIKey          string `yaml:"sendgrid_api_key"`
	FromEmail               string `yaml:"from_email"`
	FromName                string `yaml:"from_name"`
	FirebaseCredentialsFile string `yaml:"firebase_credentials_file"`
	QueueSize               int    `yaml:"queue_size"`
	Workers                 int    `yaml:"workers"`
	MaxRetries              uint64 `yaml:"max_retries"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ActivateDueBookings    string `yaml:"activate_due_bookings"`
	CompleteEndedBookings  string `yaml:"complete_ended_bookings"`
	ReconcileStalePayments string `yaml:"reconcile_stale_payments"`
	RetryOwedRefunds       string `yaml:"retry_owed_refunds"`
	StalePaymentMinutes    int    `yaml:"stale_payment_minutes"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_TYPE"); val != "" {
		c.Database.Type = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Payment
	if val := os.Getenv("STRIPE_SECRET_KEY"); val != "" {
		c.Payment.SecretKey = val
	}
	if val := os.Getenv("STRIPE_WEBHOOK_SECRET"); val != "" {
		c.Payment.WebhookSecret = val
	}

	// Notification
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Notification.SendGridAPIKey = val
	}
	if val := os.Getenv("FIREBASE_CREDENTIALS_FILE"); val != "" {
		c.Notification.FirebaseCredentialsFile = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65534 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.WebhookRatePerMinute == 0 {
		c.Server.WebhookRatePerMinute = 600
	}

	// Database validation
	switch c.Database.Type {
	case "":
		c.Database.Type = "postgres"
		fallthrough
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}

	if c.Redis.LockTTLSeconds == 0 {
		c.Redis.LockTTLSeconds = 30
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Payment validation
	switch c.Payment.Provider {
	case "":
		c.Payment.Provider = "mock"
	case "mock":
	case "stripe":
		if c.Payment.SecretKey == "" {
			return fmt.Errorf("stripe secret key is required")
		}
		if c.Payment.WebhookSecret == "" {
			return fmt.Errorf("stripe webhook secret is required")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Payment.Provider)
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "usd"
	}
	if c.Payment.TimeoutSeconds == 0 {
		c.Payment.TimeoutSeconds = 10
	}
	if c.Payment.MaxRetries == 0 {
		c.Payment.MaxRetries = 2
	}

	// Booking defaults
	if c.Booking.MinDurationDays == 0 {
		c.Booking.MinDurationDays = pricing.DefaultLimits.MinDurationDays
	}
	if c.Booking.MaxDurationDays == 0 {
		c.Booking.MaxDurationDays = pricing.DefaultLimits.MaxDurationDays
	}
	if c.Booking.MinDurationDays < 1 || c.Booking.MaxDurationDays < c.Booking.MinDurationDays {
		return fmt.Errorf("invalid booking duration bounds: %d..%d days", c.Booking.MinDurationDays, c.Booking.MaxDurationDays)
	}
	if c.Booking.LockTimeoutSeconds == 0 {
		c.Booking.LockTimeoutSeconds = 5
	}
	if c.Booking.MaxConflictRetries == 0 {
		c.Booking.MaxConflictRetries = 3
	}
	for i, fee := range c.Booking.Fees {
		if fee.Type == "" || fee.AmountCents < 0 {
			return fmt.Errorf("invalid booking fee #%d", i+1)
		}
	}

	// Cancellation defaults
	if len(c.Cancellation.Tiers) == 0 {
		for _, t := range pricing.DefaultPolicy.Tiers {
			c.Cancellation.Tiers = append(c.Cancellation.Tiers, TierConfig{MinHoursBeforeStart: t.MinHoursBeforeStart, FeePercent: t.FeePercent})
		}
	}
	if err := c.CancellationPolicy().Validate(); err != nil {
		return err
	}

	// Notification defaults
	if c.Notification.QueueSize == 0 {
		c.Notification.QueueSize = 256
	}
	if c.Notification.Workers == 0 {
		c.Notification.Workers = 2
	}
	if c.Notification.MaxRetries == 0 {
		c.Notification.MaxRetries = 3
	}
	if c.Notification.FromName == "" {
		c.Notification.FromName = "Ubertool"
	}

	// Scheduler defaults
	if c.Scheduler.ActivateDueBookings == "" {
		c.Scheduler.ActivateDueBookings = "0 5 0 * * *" // 00:05 UTC
	}
	if c.Scheduler.CompleteEndedBookings == "" {
		c.Scheduler.CompleteEndedBookings = "0 10 0 * * *" // 00:10 UTC
	}
	if c.Scheduler.ReconcileStalePayments == "" {
		c.Scheduler.ReconcileStalePayments = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.RetryOwedRefunds == "" {
		c.Scheduler.RetryOwedRefunds = "0 0 * * * *" // hourly
	}
	if c.Scheduler.StalePaymentMinutes == 0 {
		c.Scheduler.StalePaymentMinutes = 30
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the gRPC server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetHTTPAddress returns the address of the HTTP side server
func (c *Config) GetHTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port+1)
}

func (c *Config) PricingLimits() pricing.Limits {
	return pricing.Limits{
		MinDurationDays: c.Booking.MinDurationDays,
		MaxDurationDays: c.Booking.MaxDurationDays,
		MaxTotalCents:   c.Booking.MaxTotalCents,
	}
}

func (c *Config) CancellationPolicy() pricing.CancellationPolicy {
	policy := pricing.CancellationPolicy{NoCancellationWithinHours: c.Cancellation.NoCancellationWithinHours}
	for _, t := range c.Cancellation.Tiers {
		policy.Tiers = append(policy.Tiers, pricing.Tier{MinHoursBeforeStart: t.MinHoursBeforeStart, FeePercent: t.FeePercent})
	}
	return policy
}

// BookingFees returns the configured fees. Dates are stamped at booking time.
func (c *Config) BookingFees() []domain.Fee {
	fees := make([]domain.Fee, 0, len(c.Booking.Fees))
	for _, f := range c.Booking.Fees {
		fees = append(fees, domain.Fee{Type: f.Type, AmountCents: f.AmountCents, Description: f.Description})
	}
	return fees
}

func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		Provider:      c.Payment.Provider,
		SecretKey:     c.Payment.SecretKey,
		WebhookSecret: c.Payment.WebhookSecret,
		Timeout:       time.Duration(c.Payment.TimeoutSeconds) * time.Second,
		MaxRetries:    c.Payment.MaxRetries,
	}
}

func (c *Config) StalePaymentAge() time.Duration {
	return time.Duration(c.Scheduler.StalePaymentMinutes) * time.Minute
}
