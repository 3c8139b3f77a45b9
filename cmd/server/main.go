/**
 * Textread API - Main Entry Point
 *
 * HTTP service for image-to-text and account flows.
 *
 * Architecture:
 * - OCR pipeline: preprocessing variants -> OCR.Space -> Google Vision -> tesseract
 * - PostgreSQL for users and mail sender profiles
 * - Redis for OTP codes and the mail queue (consumed by cmd/worker)
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/textread-service/internal/api"
	"github.com/adverant/nexus/textread-service/internal/auth"
	"github.com/adverant/nexus/textread-service/internal/clients"
	"github.com/adverant/nexus/textread-service/internal/config"
	"github.com/adverant/nexus/textread-service/internal/logging"
	"github.com/adverant/nexus/textread-service/internal/mailer"
	"github.com/adverant/nexus/textread-service/internal/processor"
	"github.com/adverant/nexus/textread-service/internal/queue"
	"github.com/adverant/nexus/textread-service/internal/storage"
)

func main() {
	// Load environment variables
	if path, err := config.LoadEnvFile(); err != nil {
		log.Printf("Warning: %s not found, using system environment variables", path)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLoggerWithWriter("Textread", logging.ParseLevel(cfg.LogLevel), os.Stdout)

	log.Printf("Textread API starting...")
	log.Printf("Configuration loaded: HTTP=%s, Redis=%s, Mail=%s, Variants=%d, Env=%s",
		cfg.HTTPAddr, cfg.RedisURL, cfg.MailDelivery, cfg.VariantConcurrency, cfg.Environment)

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		log.Fatalf("Failed to create temp dir %s: %v", cfg.TempDir, err)
	}

	// Storage
	log.Printf("Connecting to PostgreSQL...")
	db, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	log.Printf("Connecting to Redis...")
	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := storage.NewRedisClient(startCtx, cfg.RedisURL)
	cancelStart()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	otps := storage.NewOTPStore(redisClient, cfg.OTPTTL)

	// OTP delivery
	var dispatcher auth.OTPDispatcher
	switch cfg.MailDelivery {
	case config.MailDeliveryDirect:
		m, err := mailer.NewOTPMailer(db, mailer.Config{
			Host:   cfg.SMTPHost,
			Port:   cfg.SMTPPort,
			Logger: logger.Named("OTPMailer"),
		})
		if err != nil {
			log.Fatalf("Failed to initialize mailer: %v", err)
		}
		dispatcher = m
		log.Printf("OTP mail delivered inline via %s:%d", cfg.SMTPHost, cfg.SMTPPort)
	default:
		producer, err := queue.NewProducer(&queue.ProducerConfig{
			RedisURL:  cfg.RedisURL,
			QueueName: cfg.MailQueue,
			OTPTTL:    cfg.OTPTTL,
			Logger:    logger.Named("MailProducer"),
		})
		if err != nil {
			log.Fatalf("Failed to initialize mail producer: %v", err)
		}
		defer producer.Close()
		dispatcher = producer
		log.Printf("OTP mail queued on %q", cfg.MailQueue)
	}

	accounts, err := auth.NewService(auth.Config{
		Users:      db,
		OTPs:       otps,
		Dispatcher: dispatcher,
		Logger:     logger.Named("AuthService"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize account service: %v", err)
	}

	// OCR pipeline
	log.Printf("Initializing OCR pipeline...")
	proc, err := buildProcessor(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize OCR pipeline: %v", err)
	}

	pipelineTimeout := processor.CascadeBudget(cfg.ProviderTimeout, cfg.VariantConcurrency, len(processor.DefaultPSMModes))

	server, err := api.NewServer(&api.ServerConfig{
		Addr:            cfg.HTTPAddr,
		Processor:       proc,
		Auth:            accounts,
		TempDir:         cfg.TempDir,
		MaxUploadSize:   cfg.MaxUploadSize,
		SecureCookies:   cfg.Environment == "production",
		PipelineTimeout: pipelineTimeout,
		HealthChecks: map[string]api.Pinger{
			"postgres": db,
			"redis":    otps,
		},
		Logger: logger.Named("HTTPServer"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize HTTP server: %v", err)
	}

	errCh := make(chan error, 1)
	server.Start(errCh)

	log.Printf("===========================================")
	log.Printf("Textread API is READY on %s", cfg.HTTPAddr)
	log.Printf("===========================================")
	log.Printf("OCR: OCR.Space -> Vision (%v) -> tesseract (%s)", cfg.VisionEnabled(), cfg.TesseractEngine)
	log.Printf("Max upload: %d bytes, provider timeout: %v, request budget: %v",
		cfg.MaxUploadSize, cfg.ProviderTimeout, pipelineTimeout)
	log.Printf("===========================================")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-errCh:
		log.Printf("HTTP server failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	} else {
		log.Printf("HTTP server stopped")
	}

	log.Printf("Shutdown complete")
}

func buildProcessor(cfg *config.Config, logger *logging.Logger) (*processor.ImageProcessor, error) {
	ocrSpace := clients.NewOCRSpaceClient(cfg.OCRSpaceURL, cfg.OCRSpaceAPIKey, cfg.ProviderTimeout).
		WithLogger(logger.Named("OCRSpaceClient"))

	pcfg := &processor.ProcessorConfig{
		TempDir:              cfg.TempDir,
		VariantConcurrency:   cfg.VariantConcurrency,
		PreprocessingEnabled: cfg.PreprocessingEnabled,
		Primary:              processor.NewOCRSpaceProvider(ocrSpace, cfg.OCRLanguage),
		Logger:               logger.Named("ImageProcessor"),
	}

	if cfg.VisionEnabled() {
		vision := clients.NewVisionClient(cfg.GoogleVisionURL, cfg.GoogleVisionAPIKey, cfg.ProviderTimeout).
			WithLogger(logger.Named("VisionClient"))
		pcfg.Secondary = processor.NewVisionProvider(vision)
	}

	tess, err := processor.NewTesseractOCR(&processor.TesseractConfig{
		TesseractPath: cfg.TesseractPath,
		Engine:        cfg.TesseractEngine,
		Language:      cfg.OCRLanguage,
		Timeout:       cfg.ProviderTimeout,
		Logger:        logger.Named("TesseractOCR"),
	})
	if err != nil {
		logger.Warn("Tesseract unavailable, local fallback disabled", "error", err)
	} else {
		pcfg.Tertiary = tess
	}

	return processor.NewImageProcessor(pcfg)
}
