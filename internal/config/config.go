package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP (email notification queue)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Batch orchestration
	BatchSize       int
	ReviewBatchSize int
	MaxIterations   int
	ThresholdBuffer float64

	// Review generation
	AITimeout     time.Duration
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Scheduling
	StaleThreshold     time.Duration
	AnalysisInterval   time.Duration
	ReaperInterval     time.Duration
	AnalysisWindowDays int
	WeightCacheTTL     time.Duration

	// Ops
	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

func Load() *Config {
	cfg := &Config{
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/spendwatch.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spendwatch"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "analysis_review_emails"),

		BatchSize:       getEnvInt("BATCH_SIZE", 100),
		ReviewBatchSize: getEnvInt("REVIEW_BATCH_SIZE", 50),
		MaxIterations:   getEnvInt("MAX_ITERATIONS", 1000),
		ThresholdBuffer: getEnvFloat("THRESHOLD_BUFFER", 0.05),

		AITimeout:     time.Duration(getEnvInt("AI_TIMEOUT_MS", 15000)) * time.Millisecond,
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		StaleThreshold:     time.Duration(getEnvInt("STALE_THRESHOLD_HOURS", 2)) * time.Hour,
		AnalysisInterval:   getEnvDuration("ANALYSIS_INTERVAL", 24*time.Hour),
		ReaperInterval:     getEnvDuration("REAPER_INTERVAL", 30*time.Minute),
		AnalysisWindowDays: getEnvInt("ANALYSIS_WINDOW_DAYS", 14),
		WeightCacheTTL:     getEnvDuration("WEIGHT_CACHE_TTL", 10*time.Minute),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// AMQP is optional; when set it must be complete
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.BatchSize < 1 || c.BatchSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid batch size %d: must be between 1 and 10000", c.BatchSize))
	}
	if c.ReviewBatchSize < 1 || c.ReviewBatchSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid review batch size %d: must be between 1 and 10000", c.ReviewBatchSize))
	}
	if c.MaxIterations < 1 {
		errors = append(errors, fmt.Sprintf("invalid max iterations %d: must be at least 1", c.MaxIterations))
	}
	if c.ThresholdBuffer < 0 || c.ThresholdBuffer >= 1 {
		errors = append(errors, fmt.Sprintf("invalid threshold buffer %g: must be in [0, 1)", c.ThresholdBuffer))
	}

	if c.AITimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid AI timeout %v: must be at least 100ms", c.AITimeout))
	}
	if c.OpenAIBaseURL != "" {
		if _, err := url.ParseRequestURI(c.OpenAIBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid OpenAI base URL '%s': %v", c.OpenAIBaseURL, err))
		}
	}

	if c.StaleThreshold < time.Hour {
		errors = append(errors, fmt.Sprintf("invalid stale threshold %v: must be at least 1 hour", c.StaleThreshold))
	}
	if c.AnalysisInterval < time.Minute || c.AnalysisInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid analysis interval %v: must be between 1 minute and 7 days", c.AnalysisInterval))
	}
	if c.ReaperInterval < time.Minute || c.ReaperInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reaper interval %v: must be between 1 minute and 24 hours", c.ReaperInterval))
	}
	if c.AnalysisWindowDays < 1 || c.AnalysisWindowDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid analysis window %d days: must be between 1 and 366", c.AnalysisWindowDays))
	}

	if c.WeightCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid weight cache TTL %v: must not be negative", c.WeightCacheTTL))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AIEnabled reports whether an AI provider key is configured
func (c *Config) AIEnabled() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
