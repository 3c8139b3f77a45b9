package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMockClient(t *testing.T) (*PostgresClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresClientFromDB(db), mock
}

func TestCreateUser(t *testing.T) {
	client, mock := newMockClient(t)
	insert := regexp.QuoteMeta(`INSERT INTO users (name, email, password, verify)`)

	mock.ExpectQuery(insert).
		WithArgs("ana", "ana@example.com", "$2a$hash").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := client.CreateUser(context.Background(), "ana", "ana@example.com", "$2a$hash")
	if err != nil || id != 42 {
		t.Fatalf("CreateUser = %d, %v", id, err)
	}

	mock.ExpectQuery(insert).
		WithArgs("ana", "ana@example.com", "$2a$hash").
		WillReturnError(&pq.Error{Code: "23505"})

	if _, err := client.CreateUser(context.Background(), "ana", "ana@example.com", "$2a$hash"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserByEmail(t *testing.T) {
	client, mock := newMockClient(t)
	query := regexp.QuoteMeta(`SELECT id, name, email, password, verify`)

	mock.ExpectQuery(query).
		WithArgs("ana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password", "verify"}).
			AddRow(int64(7), "ana", "ana@example.com", "$2a$hash", "true"))

	user, err := client.FindUserByEmail(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if user.ID != 7 || !user.Verified || user.PasswordHash != "$2a$hash" {
		t.Fatalf("unexpected user %+v", user)
	}

	mock.ExpectQuery(query).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	if _, err := client.FindUserByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	mock.ExpectQuery(query).
		WithArgs("new@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password", "verify"}).
			AddRow(int64(8), "new", "new@example.com", "$2a$hash", nil))

	user, err = client.FindUserByEmail(context.Background(), "new@example.com")
	if err != nil || user.Verified {
		t.Fatalf("NULL verify should read as unverified: %+v %v", user, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdates(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET verify = $1 WHERE email = $2`)).
		WithArgs("true", "ana@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET password = $1 WHERE email = $2`)).
		WithArgs("$2a$new", "ghost@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := client.UpdateVerify(context.Background(), "ana@example.com", "true")
	if err != nil || rows != 1 {
		t.Fatalf("UpdateVerify = %d, %v", rows, err)
	}
	rows, err = client.UpdatePassword(context.Background(), "ghost@example.com", "$2a$new")
	if err != nil || rows != 0 {
		t.Fatalf("UpdatePassword = %d, %v", rows, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetActiveSender(t *testing.T) {
	client, mock := newMockClient(t)
	query := regexp.QuoteMeta(`FROM send_mail`)

	mock.ExpectQuery(query).
		WillReturnRows(sqlmock.NewRows([]string{"email", "password", "sender_name", "email_title", "email_description"}).
			AddRow("noreply@example.com", "app-pass", "Textread", "Your code", "<b>$otp</b>"))

	sender, err := client.GetActiveSender(context.Background())
	if err != nil {
		t.Fatalf("GetActiveSender: %v", err)
	}
	if sender.Email != "noreply@example.com" || sender.BodyTemplate != "<b>$otp</b>" {
		t.Fatalf("unexpected sender %+v", sender)
	}

	mock.ExpectQuery(query).WillReturnError(sql.ErrNoRows)
	if _, err := client.GetActiveSender(context.Background()); !errors.Is(err, ErrSenderNotConfigured) {
		t.Fatalf("expected ErrSenderNotConfigured, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPoolStats(t *testing.T) {
	client, _ := newMockClient(t)

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	stats := client.Stats()
	if open, ok := stats["open_connections"].(int); !ok || open < 1 {
		t.Fatalf("expected an open connection after Ping, got %v", stats)
	}
	for _, key := range []string{"in_use", "idle", "wait_count", "wait_duration_ms"} {
		if _, ok := stats[key]; !ok {
			t.Fatalf("missing %q in %v", key, stats)
		}
	}
}
