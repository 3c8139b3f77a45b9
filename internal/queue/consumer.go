/**
 * Queue Consumer for the Textread mail worker
 *
 * Consumes OTP mail jobs from Redis and hands them to the SMTP mailer.
 */

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/textread-service/internal/logging"
	"github.com/adverant/nexus/textread-service/internal/storage"
)

// OTPDispatcher delivers one OTP mail
type OTPDispatcher interface {
	DispatchOTP(ctx context.Context, email, code string) error
}

// queueInspector is the subset of *asynq.Inspector used for statistics
type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector queueInspector
	handler   *MailHandler
	config    *ConsumerConfig
	logger    *logging.Logger
	stopOnce  sync.Once
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Mailer      OTPDispatcher
	SendTimeout time.Duration // default 30s
	Logger      *logging.Logger
}

// MailHandler processes mail tasks. It is separate from Consumer so tasks can
// be handled without a running server.
type MailHandler struct {
	mailer  OTPDispatcher
	timeout time.Duration
	logger  *logging.Logger
}

// NewMailHandler creates a handler delivering through mailer
func NewMailHandler(mailer OTPDispatcher, timeout time.Duration, logger *logging.Logger) *MailHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewLogger("MailWorker")
	}
	return &MailHandler{mailer: mailer, timeout: timeout, logger: logger}
}

// RetryDelay is exponential backoff: 5s, 10s, 20s, capped at 60s
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n > 4 {
		return 60 * time.Second
	}
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Mailer == nil {
		return nil, fmt.Errorf("Mailer is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("MailWorker")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: RetryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
		},
	)

	consumer := &Consumer{
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(redisOpt),
		handler:   NewMailHandler(cfg.Mailer, cfg.SendTimeout, logger),
		config:    cfg,
		logger:    logger,
	}
	consumer.mux.HandleFunc(TypeSendOTPMail, consumer.handler.HandleSendOTP)

	return consumer, nil
}

// Start runs the server in the background until ctx is done or Stop is called
func (c *Consumer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("queue consumer not started: %w", err)
	}

	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			c.Stop()
		}()
	}
	return nil
}

// Stop waits for in-flight jobs and releases Redis connections. Safe to call
// more than once.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping queue consumer")
		c.server.Shutdown()
		if err := c.inspector.Close(); err != nil {
			c.logger.Warn("Failed to close queue inspector", "error", err)
		}
		c.logger.Info("Queue consumer stopped")
	})
}

// HandleSendOTP delivers one OTP mail
func (h *MailHandler) HandleSendOTP(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	payload, err := ParseSendOTPPayload(task)
	if err != nil {
		// malformed jobs never succeed
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	jobID, _ := asynq.GetTaskID(ctx)
	log := h.logger.With("job", jobID, "to", payload.Email)

	sendCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.mailer.DispatchOTP(sendCtx, payload.Email, payload.Code); err != nil {
		if errors.Is(err, storage.ErrSenderNotConfigured) {
			log.Error("No active sender profile, dropping job", "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		log.Warn("OTP mail failed", "duration", time.Since(startTime), "error", err)
		return fmt.Errorf("OTP mail failed: %w", err)
	}

	log.Info("OTP mail delivered", "duration", time.Since(startTime))
	return nil
}

// GetStatistics returns consumer settings plus the queue's current counts.
// An unreachable or not yet created queue is reported under "error".
func (c *Consumer) GetStatistics() map[string]interface{} {
	stats := map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}

	info, err := c.inspector.GetQueueInfo(c.config.QueueName)
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}

	stats["pending"] = info.Pending
	stats["active"] = info.Active
	stats["retry"] = info.Retry
	stats["archived"] = info.Archived
	stats["processed_today"] = info.Processed
	stats["failed_today"] = info.Failed
	return stats
}
