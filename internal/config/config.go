package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
)

type Config struct {
	// Backend API
	APIBaseURL    string
	APITimeout    time.Duration
	UploadTimeout time.Duration

	// Upload queue
	QueuePath                string
	KeepQueueOnUploadFailure bool

	// Google Sheets publishing (optional)
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		APIBaseURL:               getEnv("INVOICE_API_URL", "http://localhost:8000/api"),
		APITimeout:               getEnvDuration("INVOICE_API_TIMEOUT", 30*time.Second),
		UploadTimeout:            getEnvDuration("UPLOAD_TIMEOUT", 10*time.Minute),
		QueuePath:                getEnv("UPLOAD_QUEUE_PATH", defaultQueuePath()),
		KeepQueueOnUploadFailure: getEnvBool("UPLOAD_KEEP_QUEUE_ON_FAILURE", false),
		GoogleSheetURL:           getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:     getEnv("GOOGLE_SHEET_WORKSHEET", "Invoices"),
		LogLevel:                 getEnv("LOG_LEVEL", "warn"),
		LogFormat:                getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:            getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	var problems []string

	u, err := url.Parse(c.APIBaseURL)
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("INVOICE_API_URL is not a valid URL: %v", err))
	case u.Scheme != "http" && u.Scheme != "https":
		problems = append(problems, fmt.Sprintf("INVOICE_API_URL must use http or https, got %q", u.Scheme))
	case u.Host == "":
		problems = append(problems, "INVOICE_API_URL must include a host")
	}

	if c.APITimeout <= 0 {
		problems = append(problems, "INVOICE_API_TIMEOUT must be positive")
	}
	if c.UploadTimeout <= 0 {
		problems = append(problems, "UPLOAD_TIMEOUT must be positive")
	}
	if c.QueuePath == "" {
		problems = append(problems, "UPLOAD_QUEUE_PATH cannot be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func defaultQueuePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "invoicectl-queue.db"
	}
	return filepath.Join(dir, "invoicectl", "queue.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// plain integers are seconds
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
