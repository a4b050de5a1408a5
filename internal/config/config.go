package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure.
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Web         WebConfig         `mapstructure:"web"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains settings for the external compression tool.
type CompressionConfig struct {
	// Level is the base compression level (1-9); it is adjusted per file
	// by content classification.
	Level int `mapstructure:"level"`

	// Binary is the external parallel compression tool executable.
	Binary string `mapstructure:"binary"`

	// KeepSource disables deletion of source files after compression.
	KeepSource bool `mapstructure:"keep_source"`

	// Timeout bounds each child-process wait; zero disables the bound.
	Timeout time.Duration `mapstructure:"timeout"`
}

// PerformanceConfig contains performance tuning settings.
type PerformanceConfig struct {
	// TotalUnits is the processing-unit budget; 0 means all available CPUs.
	TotalUnits int `mapstructure:"total_units"`
}

// WebConfig contains settings for the web collaborator.
type WebConfig struct {
	Port           int    `mapstructure:"port"`
	WorkDir        string `mapstructure:"work_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			Level:      6,
			Binary:     "pigz",
			KeepSource: false,
			Timeout:    0,
		},
		Performance: PerformanceConfig{
			TotalUnits: 0,
		},
		Web: WebConfig{
			Port:           8080,
			WorkDir:        "uploads",
			MaxUploadBytes: 0, // 0 means no limit
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "file-compressor.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.file-compressor")
		viper.AddConfigPath("/etc/file-compressor")
	}

	// Enable environment variable support
	viper.SetEnvPrefix("FILE_COMPRESSOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Unmarshal config
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate and normalize config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ValidLevel reports whether level is an acceptable compression level.
func ValidLevel(level int) bool {
	return level >= 1 && level <= 9
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !ValidLevel(c.Compression.Level) {
		return fmt.Errorf("invalid compression level: %d (valid: 1-9)", c.Compression.Level)
	}

	if c.Compression.Binary == "" {
		c.Compression.Binary = "pigz"
	}

	if c.Performance.TotalUnits < 0 {
		return fmt.Errorf("total_units must not be negative: %d", c.Performance.TotalUnits)
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port: %d", c.Web.Port)
	}
	if c.Web.WorkDir == "" {
		c.Web.WorkDir = "uploads"
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}
