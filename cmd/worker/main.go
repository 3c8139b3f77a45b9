/**
 * Textread Mail Worker - Main Entry Point
 *
 * Consumes OTP mail jobs enqueued by the API and delivers them over SMTP
 * using the active sender profile from PostgreSQL.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/textread-service/internal/config"
	"github.com/adverant/nexus/textread-service/internal/logging"
	"github.com/adverant/nexus/textread-service/internal/mailer"
	"github.com/adverant/nexus/textread-service/internal/queue"
	"github.com/adverant/nexus/textread-service/internal/storage"
)

const statsInterval = time.Minute

func main() {
	// Load environment variables
	if path, err := config.LoadEnvFile(); err != nil {
		log.Printf("Warning: %s not found, using system environment variables", path)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLoggerWithWriter("MailWorker", logging.ParseLevel(cfg.LogLevel), os.Stdout)

	log.Printf("Textread Mail Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Queue=%s, Workers=%d, SMTP=%s:%d",
		cfg.RedisURL, cfg.MailQueue, cfg.WorkerConcurrency, cfg.SMTPHost, cfg.SMTPPort)

	log.Printf("Connecting to PostgreSQL...")
	db, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	if err := healthCheck(db); err != nil {
		log.Fatalf("Startup health check failed: %v", err)
	}

	m, err := mailer.NewOTPMailer(db, mailer.Config{
		Host:   cfg.SMTPHost,
		Port:   cfg.SMTPPort,
		Logger: logger.Named("OTPMailer"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize mailer: %v", err)
	}

	log.Printf("Connecting to Redis queue...")
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.MailQueue,
		Concurrency: cfg.WorkerConcurrency,
		Mailer:      m,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}
	log.Printf("Queue consumer started successfully")

	log.Printf("===========================================")
	log.Printf("Textread Mail Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.MailQueue)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Queue stats: %v", consumer.GetStatistics())
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-ticker.C:
			logger.Info("Queue statistics", "stats", consumer.GetStatistics(), "db_pool", db.Stats())
		}
	}

	log.Printf("Received shutdown signal, initiating graceful shutdown...")
	consumer.Stop()

	log.Printf("Shutdown complete")
}

func healthCheck(db *storage.PostgresClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
