package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/textread?sslmode=disable")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.OCRSpaceAPIKey != "helloworld" {
		t.Fatalf("expected demo OCR.Space key, got %q", cfg.OCRSpaceAPIKey)
	}
	if cfg.OCRLanguage != "eng" {
		t.Fatalf("expected eng, got %q", cfg.OCRLanguage)
	}
	if cfg.MaxUploadSize != 5*1024*1024 {
		t.Fatalf("expected 5MB upload limit, got %d", cfg.MaxUploadSize)
	}
	if cfg.ProviderTimeout != 60*time.Second {
		t.Fatalf("expected 60s provider timeout, got %v", cfg.ProviderTimeout)
	}
	if cfg.OTPTTL != 60*time.Second {
		t.Fatalf("expected 60s OTP TTL, got %v", cfg.OTPTTL)
	}
	if cfg.VisionEnabled() {
		t.Fatalf("vision must be disabled without an API key")
	}
	if !cfg.PreprocessingEnabled {
		t.Fatalf("preprocessing should default to enabled")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/textread")
	t.Setenv("GOOGLE_VISION_API_KEY", "vision-key")
	t.Setenv("VARIANT_CONCURRENCY", "4")
	t.Setenv("PREPROCESSING_ENABLED", "false")
	t.Setenv("MAIL_DELIVERY", "DIRECT")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if !cfg.VisionEnabled() {
		t.Fatalf("vision should be enabled")
	}
	if cfg.VariantConcurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.VariantConcurrency)
	}
	if cfg.PreprocessingEnabled {
		t.Fatalf("preprocessing should be disabled")
	}
	if cfg.MailDelivery != MailDeliveryDirect {
		t.Fatalf("expected direct mail delivery, got %q", cfg.MailDelivery)
	}
	if cfg.ProviderTimeout != 60*time.Second {
		t.Fatalf("unparsable timeout should fall back to default, got %v", cfg.ProviderTimeout)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseURL:        "postgres://localhost/textread",
			RedisURL:           "redis://localhost:6379/0",
			OCRSpaceURL:        "https://api.ocr.space/parse/image",
			MaxUploadSize:      5 * 1024 * 1024,
			ProviderTimeout:    60 * time.Second,
			VariantConcurrency: 1,
			WorkerConcurrency:  5,
			OTPTTL:             time.Minute,
			MailDelivery:       MailDeliveryQueue,
			TesseractEngine:    TesseractEngineCLI,
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: true},
		{name: "tiny upload limit", mutate: func(c *Config) { c.MaxUploadSize = 10 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.VariantConcurrency = 0 }, wantErr: true},
		{name: "unknown mail delivery", mutate: func(c *Config) { c.MailDelivery = "carrier-pigeon" }, wantErr: true},
		{name: "unknown tesseract engine", mutate: func(c *Config) { c.TesseractEngine = "gpu" }, wantErr: true},
		{name: "short provider timeout", mutate: func(c *Config) { c.ProviderTimeout = time.Millisecond }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("TEXTREAD_TEST_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(EnvFileVariable, envPath)
	t.Cleanup(func() { os.Unsetenv("TEXTREAD_TEST_VALUE") })

	path, err := LoadEnvFile()
	if err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if path != envPath {
		t.Fatalf("expected %s, got %s", envPath, path)
	}
	if got := os.Getenv("TEXTREAD_TEST_VALUE"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}

	t.Setenv(EnvFileVariable, filepath.Join(dir, "missing.env"))
	if _, err := LoadEnvFile(); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}
