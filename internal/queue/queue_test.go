package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/textread-service/internal/logging"
	"github.com/adverant/nexus/textread-service/internal/storage"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(f.tasks)), Queue: "mail"}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type recordingMailer struct {
	email, code string
	err         error
}

func (r *recordingMailer) DispatchOTP(_ context.Context, email, code string) error {
	r.email, r.code = email, code
	return r.err
}

func TestProducerDispatchOTP(t *testing.T) {
	enq := &fakeEnqueuer{}
	p, err := NewProducer(&ProducerConfig{
		QueueName: "mail",
		MaxRetry:  4,
		Client:    enq,
		Logger:    logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}

	if err := p.DispatchOTP(context.Background(), " ana@example.com ", "482913"); err != nil {
		t.Fatalf("DispatchOTP: %v", err)
	}
	if len(enq.tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(enq.tasks))
	}

	task := enq.tasks[0]
	if task.Type() != TypeSendOTPMail {
		t.Fatalf("task type = %s", task.Type())
	}
	payload, err := ParseSendOTPPayload(task)
	if err != nil {
		t.Fatalf("ParseSendOTPPayload: %v", err)
	}
	if payload.Email != "ana@example.com" || payload.Code != "482913" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	seen := map[asynq.OptionType]interface{}{}
	for _, o := range enq.opts[0] {
		seen[o.Type()] = o.Value()
	}
	if seen[asynq.QueueOpt] != "mail" {
		t.Errorf("queue option = %v", seen[asynq.QueueOpt])
	}
	if seen[asynq.MaxRetryOpt] != 4 {
		t.Errorf("max retry option = %v", seen[asynq.MaxRetryOpt])
	}
	if _, ok := seen[asynq.DeadlineOpt]; !ok {
		t.Errorf("deadline option missing")
	}
}

func TestProducerErrors(t *testing.T) {
	if _, err := NewProducer(&ProducerConfig{RedisURL: "redis://localhost:6379"}); err == nil {
		t.Fatalf("missing queue should fail")
	}
	if _, err := NewProducer(&ProducerConfig{QueueName: "mail"}); err == nil {
		t.Fatalf("missing redis URL should fail")
	}

	p, _ := NewProducer(&ProducerConfig{QueueName: "mail", Client: &fakeEnqueuer{err: errors.New("redis down")}, Logger: logging.Discard()})
	if err := p.DispatchOTP(context.Background(), "a@example.com", "123456"); err == nil {
		t.Fatalf("enqueue failure should surface")
	}
	if err := p.DispatchOTP(context.Background(), "", "123456"); err == nil {
		t.Fatalf("empty email should fail")
	}
}

func TestHandleSendOTP(t *testing.T) {
	task, err := NewSendOTPTask("ana@example.com", "111222")
	if err != nil {
		t.Fatalf("NewSendOTPTask: %v", err)
	}

	t.Run("delivers", func(t *testing.T) {
		m := &recordingMailer{}
		h := NewMailHandler(m, time.Second, logging.Discard())
		if err := h.HandleSendOTP(context.Background(), task); err != nil {
			t.Fatalf("HandleSendOTP: %v", err)
		}
		if m.email != "ana@example.com" || m.code != "111222" {
			t.Fatalf("mailer got %q %q", m.email, m.code)
		}
	})

	t.Run("transient failure retries", func(t *testing.T) {
		h := NewMailHandler(&recordingMailer{err: errors.New("dial tcp: timeout")}, time.Second, logging.Discard())
		err := h.HandleSendOTP(context.Background(), task)
		if err == nil || errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("expected retryable error, got %v", err)
		}
	})

	t.Run("missing sender skips retry", func(t *testing.T) {
		mailErr := fmt.Errorf("failed to load sender profile: %w", storage.ErrSenderNotConfigured)
		h := NewMailHandler(&recordingMailer{err: mailErr}, time.Second, logging.Discard())
		if err := h.HandleSendOTP(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("expected SkipRetry, got %v", err)
		}
	})

	t.Run("malformed payload skips retry", func(t *testing.T) {
		h := NewMailHandler(&recordingMailer{}, time.Second, logging.Discard())
		bad := asynq.NewTask(TypeSendOTPMail, []byte(`{"email":""}`))
		if err := h.HandleSendOTP(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("expected SkipRetry, got %v", err)
		}
	})
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 60 * time.Second},
		{30, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.n, nil, nil); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestNewConsumerValidation(t *testing.T) {
	m := &recordingMailer{}
	cases := []*ConsumerConfig{
		{QueueName: "mail", Mailer: m},
		{RedisURL: "redis://localhost:6379", Mailer: m},
		{RedisURL: "redis://localhost:6379", QueueName: "mail"},
		{RedisURL: "ftp://nowhere", QueueName: "mail", Mailer: m},
	}
	for i, cfg := range cases {
		if _, err := NewConsumer(cfg); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

type fakeInspector struct {
	info   *asynq.QueueInfo
	err    error
	closed int
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

func (f *fakeInspector) Close() error {
	f.closed++
	return nil
}

func newTestConsumer(t *testing.T) *Consumer {
	t.Helper()
	c, err := NewConsumer(&ConsumerConfig{
		RedisURL:    "redis://127.0.0.1:1",
		QueueName:   "mail",
		Concurrency: 2,
		Mailer:      &recordingMailer{},
		Logger:      logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return c
}

func TestConsumerStatistics(t *testing.T) {
	c := newTestConsumer(t)
	c.inspector = &fakeInspector{info: &asynq.QueueInfo{Queue: "mail", Pending: 3, Retry: 1, Processed: 12, Failed: 2}}

	stats := c.GetStatistics()
	if stats["queue"] != "mail" || stats["concurrency"] != 2 {
		t.Fatalf("unexpected settings %v", stats)
	}
	if stats["pending"] != 3 || stats["retry"] != 1 || stats["processed_today"] != 12 || stats["failed_today"] != 2 {
		t.Fatalf("unexpected counts %v", stats)
	}

	c.inspector = &fakeInspector{err: errors.New("NOT_FOUND: queue not found")}
	stats = c.GetStatistics()
	if _, ok := stats["error"]; !ok || stats["queue"] != "mail" {
		t.Fatalf("inspector failure should be reported, got %v", stats)
	}
}

func TestConsumerStartHonoursContext(t *testing.T) {
	c := newTestConsumer(t)
	inspector := &fakeInspector{}
	c.inspector = inspector

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Start on a cancelled context = %v", err)
	}

	c.Stop()
	c.Stop()
	if inspector.closed != 1 {
		t.Fatalf("inspector closed %d times, want 1", inspector.closed)
	}
}
