package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DB"`
	Redis     RedisConfig     `yaml:"redis" envconfig:"REDIS"`
	NewRelic  NewRelicConfig  `yaml:"new_relic" envconfig:"NEW_RELIC"`
	Log       LogConfig       `yaml:"log" envconfig:"LOG"`
	JWT       JWTConfig       `yaml:"jwt" envconfig:"JWT"`
	Pricing   PricingConfig   `yaml:"pricing" envconfig:"PRICING"`
	Payment   PaymentConfig   `yaml:"payment" envconfig:"PAYMENT"`
	Omise     OmiseConfig     `yaml:"omise" envconfig:"OMISE"`
	SendGrid  SendGridConfig  `yaml:"sendgrid" envconfig:"SENDGRID"`
	AMQP      AMQPConfig      `yaml:"amqp" envconfig:"AMQP"`
	Scheduler SchedulerConfig `yaml:"scheduler" envconfig:"SCHEDULER"`
	Tx        TxConfig        `yaml:"tx" envconfig:"TX"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	IdempotencyTTL  time.Duration `yaml:"idempotency_ttl" envconfig:"IDEMPOTENCY_TTL"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host         string `yaml:"host" envconfig:"HOST"`
	Port         string `yaml:"port" envconfig:"PORT"`
	User         string `yaml:"user" envconfig:"USER"`
	Password     string `yaml:"password" envconfig:"PASSWORD"`
	DBName       string `yaml:"name" envconfig:"NAME"`
	SSLMode      string `yaml:"ssl_mode" envconfig:"SSLMODE"`
	MaxOpenConns int    `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	AutoMigrate  bool   `yaml:"auto_migrate" envconfig:"AUTO_MIGRATE"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	Password        string        `yaml:"password" envconfig:"PASSWORD"`
	DB              int           `yaml:"db" envconfig:"DB"`
	VehicleCacheTTL time.Duration `yaml:"vehicle_cache_ttl" envconfig:"VEHICLE_CACHE_TTL"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `yaml:"app_name" envconfig:"APP_NAME"`
	LicenseKey string `yaml:"license_key" envconfig:"LICENSE_KEY"`
	Enabled    bool   `yaml:"enabled" envconfig:"ENABLED"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json or text
}

// JWTConfig holds bearer token verification settings.
type JWTConfig struct {
	Secret string `yaml:"secret" envconfig:"SECRET"`
	Issuer string `yaml:"issuer" envconfig:"ISSUER"`
}

// PricingConfig holds pricing policy.
type PricingConfig struct {
	MonthDays int    `yaml:"month_days" envconfig:"MONTH_DAYS"`
	Currency  string `yaml:"currency" envconfig:"CURRENCY"`
}

// PaymentConfig holds payment policy.
type PaymentConfig struct {
	SettlementTimeout time.Duration `yaml:"settlement_timeout" envconfig:"SETTLEMENT_TIMEOUT"`
	LockTTL           time.Duration `yaml:"lock_ttl" envconfig:"LOCK_TTL"`
	StalePaymentAfter time.Duration `yaml:"stale_after" envconfig:"STALE_AFTER"`
	ReceiptBaseURL    string        `yaml:"receipt_base_url" envconfig:"RECEIPT_BASE_URL"`
	CashSlipSecret    string        `yaml:"cash_slip_secret" envconfig:"CASH_SLIP_SECRET"` // defaults to jwt.secret
	CashSlipTTL       time.Duration `yaml:"cash_slip_ttl" envconfig:"CASH_SLIP_TTL"`
}

// OmiseConfig holds the card and UPI settlement provider keys.
type OmiseConfig struct {
	PublicKey string `yaml:"public_key" envconfig:"PUBLIC_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"SECRET_KEY"`
}

// Enabled reports whether both keys are set.
func (c OmiseConfig) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// SendGridConfig holds receipt email settings.
type SendGridConfig struct {
	APIKey    string `yaml:"api_key" envconfig:"API_KEY"`
	FromEmail string `yaml:"from_email" envconfig:"FROM_EMAIL"`
	FromName  string `yaml:"from_name" envconfig:"FROM_NAME"`
}

// AMQPConfig holds the domain event broker settings. An empty URL disables publishing.
type AMQPConfig struct {
	URL      string `yaml:"url" envconfig:"URL"`
	Exchange string `yaml:"exchange" envconfig:"EXCHANGE"`
}

// SchedulerConfig holds the sweep schedules (cron with seconds).
type SchedulerConfig struct {
	Enabled          bool          `yaml:"enabled" envconfig:"ENABLED"`
	CompletionSpec   string        `yaml:"completion_spec" envconfig:"COMPLETION_SPEC"`
	StalePaymentSpec string        `yaml:"stale_payment_spec" envconfig:"STALE_PAYMENT_SPEC"`
	JobTimeout       time.Duration `yaml:"job_timeout" envconfig:"JOB_TIMEOUT"`
}

// TxConfig holds transaction retry policy.
type TxConfig struct {
	MaxRetries int `yaml:"max_retries" envconfig:"MAX_RETRIES"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			IdempotencyTTL:  24 * time.Hour,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "postgres",
			Password:     "postgres",
			DBName:       "vehicle_rental",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			VehicleCacheTTL: 60 * time.Second,
		},
		NewRelic: NewRelicConfig{
			AppName: "vehicle-rental-service",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Pricing: PricingConfig{
			MonthDays: 30,
			Currency:  "THB",
		},
		Payment: PaymentConfig{
			SettlementTimeout: 10 * time.Second,
			LockTTL:           30 * time.Second,
			StalePaymentAfter: 5 * time.Minute,
			ReceiptBaseURL:    "http://localhost:8080",
			CashSlipTTL:       24 * time.Hour,
		},
		SendGrid: SendGridConfig{
			FromName: "Vehicle Rental",
		},
		AMQP: AMQPConfig{
			Exchange: "rental.events",
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			CompletionSpec:   "0 */5 * * * *",
			StalePaymentSpec: "30 * * * * *",
			JobTimeout:       time.Minute,
		},
		Tx: TxConfig{
			MaxRetries: 3,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if cfg.Payment.CashSlipSecret == "" {
		cfg.Payment.CashSlipSecret = cfg.JWT.Secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Pricing.MonthDays <= 0 {
		errs = append(errs, fmt.Errorf("pricing.month_days must be positive, got %d", c.Pricing.MonthDays))
	}
	if c.Pricing.Currency == "" {
		errs = append(errs, errors.New("pricing.currency is required"))
	}
	if c.Payment.SettlementTimeout <= 0 {
		errs = append(errs, errors.New("payment.settlement_timeout must be positive"))
	}
	if c.Payment.LockTTL <= c.Payment.SettlementTimeout {
		errs = append(errs, errors.New("payment.lock_ttl must exceed payment.settlement_timeout"))
	}
	if c.Payment.StalePaymentAfter <= c.Payment.SettlementTimeout {
		errs = append(errs, errors.New("payment.stale_after must exceed payment.settlement_timeout"))
	}
	if c.Payment.CashSlipTTL <= 0 {
		errs = append(errs, errors.New("payment.cash_slip_ttl must be positive"))
	}
	if c.Tx.MaxRetries < 0 {
		errs = append(errs, errors.New("tx.max_retries must not be negative"))
	}
	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		errs = append(errs, errors.New("new_relic.license_key is required when new relic is enabled"))
	}

	return errors.Join(errs...)
}
