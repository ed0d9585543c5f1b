// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	SinkStore = "store"
	SinkMongo = "mongo"
)

// Config holds all configuration for the chit fund server.
type Config struct {
	Port           int    `mapstructure:"PORT"`
	DatabasePath   string `mapstructure:"DATABASE_PATH"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	// Empty disables token checks; every request acts as DevAdminID.
	JWTSecret  string `mapstructure:"JWT_SECRET"`
	DevAdminID string `mapstructure:"DEV_ADMIN_ID"`

	CommissionRate float64 `mapstructure:"COMMISSION_RATE"`

	NotificationSink      string `mapstructure:"NOTIFICATION_SINK"`
	MongoURI              string `mapstructure:"MONGO_URI"`
	MongoDatabase         string `mapstructure:"MONGO_DATABASE"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	NotificationExchange  string `mapstructure:"NOTIFICATION_EXCHANGE"`
	NotificationWorkers   int    `mapstructure:"NOTIFICATION_WORKERS"`
	NotificationQueueSize int    `mapstructure:"NOTIFICATION_QUEUE_SIZE"`
	NotificationRetries   int    `mapstructure:"NOTIFICATION_RETRIES"`

	// Empty disables the contribution reminder job.
	ReminderSchedule string `mapstructure:"REMINDER_SCHEDULE"`
}

var keys = []string{
	"PORT", "DATABASE_PATH", "LOG_LEVEL", "ALLOWED_ORIGINS",
	"JWT_SECRET", "DEV_ADMIN_ID", "COMMISSION_RATE",
	"NOTIFICATION_SINK", "MONGO_URI", "MONGO_DATABASE",
	"RABBITMQ_URL", "NOTIFICATION_EXCHANGE",
	"NOTIFICATION_WORKERS", "NOTIFICATION_QUEUE_SIZE", "NOTIFICATION_RETRIES",
	"REMINDER_SCHEDULE",
}

// LoadConfig reads a local .env file if present, then the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("PORT", 8080)
	viper.SetDefault("DATABASE_PATH", "chitfund.db")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("ALLOWED_ORIGINS", "*")
	viper.SetDefault("DEV_ADMIN_ID", "00000000-0000-0000-0000-000000000001")
	viper.SetDefault("COMMISSION_RATE", 0.05)
	viper.SetDefault("NOTIFICATION_SINK", SinkStore)
	viper.SetDefault("MONGO_DATABASE", "chitfund")
	viper.SetDefault("NOTIFICATION_EXCHANGE", "chitfund.notifications")
	viper.SetDefault("NOTIFICATION_WORKERS", 4)
	viper.SetDefault("NOTIFICATION_QUEUE_SIZE", 256)
	viper.SetDefault("NOTIFICATION_RETRIES", 3)
	viper.SetDefault("REMINDER_SCHEDULE", "0 9 1 * *") // 09:00 on day-of-month 1
	viper.AutomaticEnv()

	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and required combinations.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.CommissionRate < 0 || c.CommissionRate > 1 {
		errs = append(errs, fmt.Errorf("COMMISSION_RATE must be between 0 and 1, got %v", c.CommissionRate))
	}
	if c.NotificationWorkers < 1 {
		errs = append(errs, fmt.Errorf("NOTIFICATION_WORKERS must be at least 1, got %d", c.NotificationWorkers))
	}
	if c.NotificationQueueSize < 1 {
		errs = append(errs, fmt.Errorf("NOTIFICATION_QUEUE_SIZE must be at least 1, got %d", c.NotificationQueueSize))
	}
	if c.NotificationRetries < 0 {
		errs = append(errs, fmt.Errorf("NOTIFICATION_RETRIES must not be negative, got %d", c.NotificationRetries))
	}
	switch c.NotificationSink {
	case SinkStore:
	case SinkMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			errs = append(errs, errors.New("MONGO_URI is required when NOTIFICATION_SINK=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFICATION_SINK must be %q or %q, got %q", SinkStore, SinkMongo, c.NotificationSink))
	}
	return errors.Join(errs...)
}

// Rate returns the default commission rate as a decimal.
func (c *Config) Rate() decimal.Decimal {
	return decimal.NewFromFloat(c.CommissionRate)
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// AuthEnabled reports whether bearer tokens are checked.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}
