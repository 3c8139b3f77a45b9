/**
 * Queue Producer for the Textread API
 *
 * Enqueues OTP mails so the request path never waits on SMTP.
 */

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/textread-service/internal/logging"
)

// Enqueuer is the subset of *asynq.Client used by Producer
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Producer submits mail tasks
type Producer struct {
	client   Enqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
	// a code is useless once it expires
	retention time.Duration
	logger    *logging.Logger
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	RedisURL  string
	QueueName string
	MaxRetry  int
	Timeout   time.Duration
	OTPTTL    time.Duration
	Client    Enqueuer // overrides RedisURL
	Logger    *logging.Logger
}

// NewProducer creates a producer on the configured queue
func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	client := cfg.Client
	if client == nil {
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("RedisURL is required")
		}
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client = asynq.NewClient(redisOpt)
	}

	p := &Producer{
		client:    client,
		queue:     cfg.QueueName,
		maxRetry:  cfg.MaxRetry,
		timeout:   cfg.Timeout,
		retention: cfg.OTPTTL,
		logger:    cfg.Logger,
	}
	if p.maxRetry <= 0 {
		p.maxRetry = 3
	}
	if p.timeout <= 0 {
		p.timeout = 30 * time.Second
	}
	if p.retention <= 0 {
		p.retention = 60 * time.Second
	}
	if p.logger == nil {
		p.logger = logging.NewLogger("MailProducer")
	}
	return p, nil
}

// DispatchOTP enqueues an OTP mail for email
func (p *Producer) DispatchOTP(ctx context.Context, email, code string) error {
	task, err := NewSendOTPTask(email, code)
	if err != nil {
		return err
	}

	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queue),
		asynq.MaxRetry(p.maxRetry),
		asynq.Timeout(p.timeout),
		asynq.Deadline(time.Now().Add(p.retention)),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue OTP mail: %w", err)
	}

	if info != nil {
		p.logger.Debug("OTP mail enqueued", "task_id", info.ID, "queue", info.Queue, "to", email)
	}
	return nil
}

// Close releases the Redis connection
func (p *Producer) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}
	return nil
}
