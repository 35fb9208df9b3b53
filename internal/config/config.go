package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// ForecastConfig holds forecast defaults. They seed the settings row on first
// start; afterwards the stored settings win.
type ForecastConfig struct {
	DefaultWeeks        int     `mapstructure:"default_weeks"`
	MaxWeeks            int     `mapstructure:"max_weeks"`
	LowBalanceThreshold float64 `mapstructure:"low_balance_threshold"`
	Currency            string  `mapstructure:"currency"`
}

// MonitorConfig holds low-balance monitoring configuration
type MonitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Weeks    int           `mapstructure:"weeks"` // 0 = settings default
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// EmailConfig holds SMTP notification configuration
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort string   `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CASHCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8080", "http://127.0.0.1:8080"})

	v.SetDefault("forecast.default_weeks", 8)
	v.SetDefault("forecast.max_weeks", 520)
	v.SetDefault("forecast.low_balance_threshold", 0.0)
	v.SetDefault("forecast.currency", "USD")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.schedule", "@every 6h")
	v.SetDefault("monitor.weeks", 0)
	v.SetDefault("monitor.cooldown", "24h")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_port", "587")

	v.SetDefault("storage.db_path", "./data/cashcast.db")
	v.SetDefault("storage.max_entries", 10000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.read_timeout and server.write_timeout must be positive")
	}

	// Validate Forecast config
	if c.Forecast.DefaultWeeks < 1 {
		return fmt.Errorf("forecast.default_weeks must be at least 1")
	}
	if c.Forecast.MaxWeeks < c.Forecast.DefaultWeeks {
		return fmt.Errorf("forecast.max_weeks must be at least forecast.default_weeks")
	}
	if c.Forecast.Currency == "" {
		return fmt.Errorf("forecast.currency is required")
	}

	// Validate Monitor config
	if c.Monitor.Enabled {
		if c.Monitor.Schedule == "" {
			return fmt.Errorf("monitor.schedule is required when monitor is enabled")
		}
		if c.Monitor.Weeks < 0 || c.Monitor.Weeks > c.Forecast.MaxWeeks {
			return fmt.Errorf("monitor.weeks must be between 0 and forecast.max_weeks")
		}
		if c.Monitor.Cooldown < 0 {
			return fmt.Errorf("monitor.cooldown must not be negative")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Email config
	if c.Email.Enabled {
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("email.smtp_host is required when email is enabled")
		}
		if c.Email.From == "" {
			return fmt.Errorf("email.from is required when email is enabled")
		}
		if len(c.Email.To) == 0 {
			return fmt.Errorf("email.to must contain at least one recipient when email is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxEntries < 1 {
		return fmt.Errorf("storage.max_entries must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
