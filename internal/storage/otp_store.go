package storage

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrOTPExpired is returned when no code is stored for the address
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPMismatch is returned when the submitted code differs
	ErrOTPMismatch = errors.New("invalid otp")
)

const otpKeyPrefix = "textread:otp:"

// NewRedisClient parses redisURL and verifies the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// OTPStore keeps one-time codes in Redis with a TTL
type OTPStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOTPStore creates a store whose codes expire after ttl
func NewOTPStore(client *redis.Client, ttl time.Duration) *OTPStore {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &OTPStore{client: client, ttl: ttl}
}

// TTL returns the code lifetime
func (s *OTPStore) TTL() time.Duration {
	return s.ttl
}

func otpKey(email string) string {
	return otpKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

// Save stores code for email, replacing any previous code
func (s *OTPStore) Save(ctx context.Context, email, code string) error {
	if err := s.client.Set(ctx, otpKey(email), code, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

// Verify checks code against the stored one. A match consumes the code.
func (s *OTPStore) Verify(ctx context.Context, email, code string) error {
	key := otpKey(email)

	stored, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrOTPExpired
	}
	if err != nil {
		return fmt.Errorf("failed to read otp: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		return ErrOTPMismatch
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete otp: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (s *OTPStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Stats returns Redis connection pool statistics
func (s *OTPStore) Stats() map[string]interface{} {
	ps := s.client.PoolStats()
	return map[string]interface{}{
		"total_conns": ps.TotalConns,
		"idle_conns":  ps.IdleConns,
		"hits":        ps.Hits,
		"misses":      ps.Misses,
		"timeouts":    ps.Timeouts,
	}
}
