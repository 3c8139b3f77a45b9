/**
 * PostgreSQL Client for the textread service
 *
 * Handles the users table (registration, verification, password reset) and
 * the send_mail table holding the active OTP sender profile.
 *
 * Expected columns:
 *   users(id, name, email, password, verify)           verify is 'true'/'false'
 *   send_mail(email, password, sender_name, email_title, email_description, status)
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	// ErrUserNotFound is returned when no user row matches
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when an insert hits the unique email index
	ErrEmailTaken = errors.New("email already registered")
	// ErrSenderNotConfigured is returned when send_mail has no active row
	ErrSenderNotConfigured = errors.New("no active mail sender configured")
)

const uniqueViolation = "23505"

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// User is a row of the users table
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Verified     bool
}

// SenderProfile is the active row of the send_mail table
type SenderProfile struct {
	Email        string
	Password     string
	SenderName   string
	Subject      string
	BodyTemplate string // HTML, "$otp" is replaced with the code
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// NewPostgresClientFromDB wraps an existing handle
func NewPostgresClientFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

// CreateUser inserts an unverified user and returns its id
func (p *PostgresClient) CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error) {
	if email == "" {
		return 0, fmt.Errorf("email is required")
	}

	query := `
		INSERT INTO users (name, email, password, verify)
		VALUES ($1, $2, $3, 'false')
		RETURNING id
	`

	var id int64
	err := p.db.QueryRowContext(ctx, query, name, email, passwordHash).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, ErrEmailTaken
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}

	return id, nil
}

// FindUserByEmail loads a user by email
func (p *PostgresClient) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, name, email, password, verify
		FROM users
		WHERE email = $1
		LIMIT 1
	`

	var user User
	var verify sql.NullString
	err := p.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &verify,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user.Verified = verify.Valid && verify.String == "true"
	return &user, nil
}

// UpdateVerify sets the verify column and returns the affected row count
func (p *PostgresClient) UpdateVerify(ctx context.Context, email, verify string) (int64, error) {
	result, err := p.db.ExecContext(ctx, `UPDATE users SET verify = $1 WHERE email = $2`, verify, email)
	if err != nil {
		return 0, fmt.Errorf("failed to update verify status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows, nil
}

// UpdatePassword stores a new password hash and returns the affected row count
func (p *PostgresClient) UpdatePassword(ctx context.Context, email, passwordHash string) (int64, error) {
	result, err := p.db.ExecContext(ctx, `UPDATE users SET password = $1 WHERE email = $2`, passwordHash, email)
	if err != nil {
		return 0, fmt.Errorf("failed to update password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows, nil
}

// GetActiveSender returns the send_mail row flagged active
func (p *PostgresClient) GetActiveSender(ctx context.Context) (*SenderProfile, error) {
	query := `
		SELECT email, password, sender_name, email_title, email_description
		FROM send_mail
		WHERE status = 'true'
		LIMIT 1
	`

	var s SenderProfile
	err := p.db.QueryRowContext(ctx, query).Scan(
		&s.Email, &s.Password, &s.SenderName, &s.Subject, &s.BodyTemplate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSenderNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sender profile: %w", err)
	}
	return &s, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Stats returns database connection pool statistics
func (p *PostgresClient) Stats() map[string]interface{} {
	s := p.db.Stats()
	return map[string]interface{}{
		"open_connections": s.OpenConnections,
		"in_use":           s.InUse,
		"idle":             s.Idle,
		"wait_count":       s.WaitCount,
		"wait_duration_ms": s.WaitDuration.Milliseconds(),
	}
}
