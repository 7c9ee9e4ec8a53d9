// Package config loads application configuration from a yaml file, a
// local .env file and environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Validation ValidationConfig `mapstructure:"validation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// OCRConfig holds OCR provider configuration
type OCRConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	APIURL          string        `mapstructure:"api_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Language        string        `mapstructure:"language"`
	PDFTextFastPath bool          `mapstructure:"pdf_text_fast_path"`
}

// ValidationConfig holds receipt validation policy
type ValidationConfig struct {
	AutoApproveThreshold     int  `mapstructure:"auto_approve_threshold"`
	RequireTransactionID     bool `mapstructure:"require_transaction_id"`
	AutoExtractTransactionID bool `mapstructure:"auto_extract_transaction_id"`
	PDFSupport               bool `mapstructure:"pdf_support"`
}

// StorageConfig holds receipt storage configuration
type StorageConfig struct {
	ReceiptsDir string `mapstructure:"receipts_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. A .env
// file in the working directory is read first so local development does
// not need exported variables.
func Load(configPath string) (*Config, error) {
	_ = gotenv.Load()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	// OCR requests can take a while; keep the write window generous.
	viper.SetDefault("server.write_timeout", 120*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/payments.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// OCR defaults
	viper.SetDefault("ocr.api_url", "https://api.ocr.space/parse/image")
	viper.SetDefault("ocr.timeout", 90*time.Second)
	viper.SetDefault("ocr.language", "eng")
	viper.SetDefault("ocr.pdf_text_fast_path", true)

	// Validation defaults
	viper.SetDefault("validation.auto_approve_threshold", 85)
	viper.SetDefault("validation.require_transaction_id", false)
	viper.SetDefault("validation.auto_extract_transaction_id", true)
	viper.SetDefault("validation.pdf_support", true)

	// Storage defaults
	viper.SetDefault("storage.receipts_dir", "data/receipts")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("ocr.api_key", "OCR_SPACE_API_KEY")
	viper.BindEnv("database.path", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Validation.AutoApproveThreshold < 0 || c.Validation.AutoApproveThreshold > 100 {
		return fmt.Errorf("validation.auto_approve_threshold must be between 0 and 100")
	}
	if c.Storage.ReceiptsDir == "" {
		return fmt.Errorf("storage.receipts_dir is required")
	}
	// OCR API key may be empty: validation then falls back to manual review.
	return nil
}
