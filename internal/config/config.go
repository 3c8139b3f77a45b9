/**
 * Configuration for the textread service
 *
 * Loads configuration from environment variables, optionally seeded from a
 * dotenv file. Both the HTTP server and the mail worker share this struct.
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvFileVariable points at an alternative dotenv file
const EnvFileVariable = "TEXTREAD_ENV_FILE"

// Mail delivery modes
const (
	MailDeliveryQueue  = "queue"
	MailDeliveryDirect = "direct"
)

// Tesseract engines
const (
	TesseractEngineCLI     = "cli"
	TesseractEngineLibrary = "library"
)

// Config holds service configuration
type Config struct {
	// HTTP listener
	HTTPAddr string

	// PostgreSQL configuration (users, sender profiles)
	DatabaseURL string

	// Redis configuration (OTP codes, mail queue)
	RedisURL string

	// Primary OCR provider (OCR.Space)
	OCRSpaceAPIKey string
	OCRSpaceURL    string
	OCRLanguage    string

	// Secondary OCR provider (Google Vision); empty key disables it
	GoogleVisionAPIKey string
	GoogleVisionURL    string

	// Tertiary OCR provider (local tesseract)
	TesseractPath   string
	TesseractEngine string

	// Pipeline limits
	TempDir              string
	MaxUploadSize        int64
	ProviderTimeout      time.Duration
	VariantConcurrency   int
	PreprocessingEnabled bool

	// OTP + mail
	OTPTTL            time.Duration
	MailDelivery      string
	MailQueue         string
	WorkerConcurrency int
	SMTPHost          string
	SMTPPort          int

	LogLevel    string
	Environment string
}

// LoadEnvFile loads a dotenv file into the process environment. A missing file
// is reported but is not fatal, variables already set win.
func LoadEnvFile() (string, error) {
	path := getEnvOrDefault(EnvFileVariable, ".env")
	if err := godotenv.Load(path); err != nil {
		return path, fmt.Errorf("load %s: %w", path, err)
	}
	return path, nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:             getEnvOrDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		OCRSpaceAPIKey:       getEnvOrDefault("OCR_SPACE_API_KEY", "helloworld"),
		OCRSpaceURL:          getEnvOrDefault("OCR_SPACE_URL", "https://api.ocr.space/parse/image"),
		OCRLanguage:          getEnvOrDefault("OCR_LANGUAGE", "eng"),
		GoogleVisionAPIKey:   getEnvOrDefault("GOOGLE_VISION_API_KEY", ""),
		GoogleVisionURL:      getEnvOrDefault("GOOGLE_VISION_URL", "https://vision.googleapis.com/v1/images:annotate"),
		TesseractPath:        getEnvOrDefault("TESSERACT_PATH", "tesseract"),
		TesseractEngine:      strings.ToLower(getEnvOrDefault("TESSERACT_ENGINE", TesseractEngineCLI)),
		TempDir:              getEnvOrDefault("TEMP_DIR", filepath.Join(os.TempDir(), "textread")),
		MaxUploadSize:        getEnvAsInt64OrDefault("MAX_UPLOAD_SIZE", 5*1024*1024), // 5MB
		ProviderTimeout:      time.Duration(getEnvAsIntOrDefault("PROVIDER_TIMEOUT_SECONDS", 60)) * time.Second,
		VariantConcurrency:   getEnvAsIntOrDefault("VARIANT_CONCURRENCY", 1),
		PreprocessingEnabled: getEnvAsBoolOrDefault("PREPROCESSING_ENABLED", true),
		OTPTTL:               time.Duration(getEnvAsIntOrDefault("OTP_TTL_SECONDS", 60)) * time.Second,
		MailDelivery:         strings.ToLower(getEnvOrDefault("MAIL_DELIVERY", MailDeliveryQueue)),
		MailQueue:            getEnvOrDefault("MAIL_QUEUE", "mail"),
		WorkerConcurrency:    getEnvAsIntOrDefault("WORKER_CONCURRENCY", 5),
		SMTPHost:             getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:             getEnvAsIntOrDefault("SMTP_PORT", 465),
		LogLevel:             strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Environment:          getEnvOrDefault("APP_ENV", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.OCRSpaceURL == "" {
		return fmt.Errorf("OCR_SPACE_URL is required")
	}

	if c.MaxUploadSize < 1024 || c.MaxUploadSize > 100*1024*1024 { // 1KB to 100MB
		return fmt.Errorf("MAX_UPLOAD_SIZE must be between 1KB and 100MB, got %d", c.MaxUploadSize)
	}

	if c.ProviderTimeout < time.Second || c.ProviderTimeout > 10*time.Minute {
		return fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be between 1 and 600, got %v", c.ProviderTimeout.Seconds())
	}

	if c.VariantConcurrency < 1 || c.VariantConcurrency > 16 {
		return fmt.Errorf("VARIANT_CONCURRENCY must be between 1 and 16, got %d", c.VariantConcurrency)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.OTPTTL < time.Second {
		return fmt.Errorf("OTP_TTL_SECONDS must be positive, got %v", c.OTPTTL.Seconds())
	}

	switch c.MailDelivery {
	case MailDeliveryQueue, MailDeliveryDirect:
	default:
		return fmt.Errorf("MAIL_DELIVERY must be %q or %q, got %q", MailDeliveryQueue, MailDeliveryDirect, c.MailDelivery)
	}

	switch c.TesseractEngine {
	case TesseractEngineCLI, TesseractEngineLibrary:
	default:
		return fmt.Errorf("TESSERACT_ENGINE must be %q or %q, got %q", TesseractEngineCLI, TesseractEngineLibrary, c.TesseractEngine)
	}

	return nil
}

// VisionEnabled reports whether the secondary provider is configured
func (c *Config) VisionEnabled() bool {
	return c.GoogleVisionAPIKey != ""
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
