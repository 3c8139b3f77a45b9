/**
 * Account service
 *
 * Registration, login, verification flags, password reset and email OTPs.
 * Domain outcomes are returned as Response values; only storage failures
 * surface as errors.
 */

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/adverant/nexus/textread-service/internal/errors"
	"github.com/adverant/nexus/textread-service/internal/logging"
	"github.com/adverant/nexus/textread-service/internal/storage"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// UserStore is the persistence surface the service needs
type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error)
	FindUserByEmail(ctx context.Context, email string) (*storage.User, error)
	UpdateVerify(ctx context.Context, email, verify string) (int64, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) (int64, error)
}

// OTPStore keeps issued codes
type OTPStore interface {
	Save(ctx context.Context, email, code string) error
	Verify(ctx context.Context, email, code string) error
	TTL() time.Duration
}

// OTPDispatcher delivers a code to an address, either queued or inline
type OTPDispatcher interface {
	DispatchOTP(ctx context.Context, email, code string) error
}

// UserView is the public part of a user record
type UserView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Response is the JSON envelope for every account endpoint
type Response struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Email   string    `json:"email,omitempty"`
	User    *UserView `json:"user,omitempty"`
}

func success(msg string) Response { return Response{Status: StatusSuccess, Message: msg} }
func failure(msg string) Response { return Response{Status: StatusError, Message: msg} }

// OK reports whether the outcome was a success
func (r Response) OK() bool { return r.Status == StatusSuccess }

// Config wires the service collaborators
type Config struct {
	Users      UserStore
	OTPs       OTPStore
	Dispatcher OTPDispatcher
	BcryptCost int // defaults to bcrypt.DefaultCost
	Logger     *logging.Logger
	// GenerateCode overrides the OTP source, for tests
	GenerateCode func() (string, error)
}

// Service implements the account operations
type Service struct {
	users      UserStore
	otps       OTPStore
	dispatcher OTPDispatcher
	cost       int
	logger     *logging.Logger
	genCode    func() (string, error)
}

// NewService validates cfg and builds a Service
func NewService(cfg Config) (*Service, error) {
	if cfg.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.OTPs == nil {
		return nil, fmt.Errorf("OTP store is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("OTP dispatcher is required")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.GenerateCode == nil {
		cfg.GenerateCode = GenerateOTP
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("AuthService")
	}

	return &Service{
		users:      cfg.Users,
		otps:       cfg.OTPs,
		dispatcher: cfg.Dispatcher,
		cost:       cfg.BcryptCost,
		logger:     cfg.Logger,
		genCode:    cfg.GenerateCode,
	}, nil
}

// OTPTTL is the lifetime of an issued code
func (s *Service) OTPTTL() time.Duration {
	return s.otps.TTL()
}

// GenerateOTP returns a uniformly random code in 100000..999999
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// ValidEmail accepts a bare address only
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func normalize(email string) string {
	return strings.TrimSpace(email)
}

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Register creates an unverified account
func (s *Service) Register(ctx context.Context, username, email, password string) (Response, error) {
	username, email = strings.TrimSpace(username), normalize(email)
	if username == "" || email == "" || password == "" {
		return failure("All fields are required"), nil
	}

	existing, err := s.users.FindUserByEmail(ctx, email)
	switch {
	case err == nil && existing.Verified:
		return failure("Email already registered"), nil
	case err == nil:
		// unverified accounts may re-register to restart verification
		return success("User registered successfully"), nil
	case !errors.Is(err, storage.ErrUserNotFound):
		return Response{}, apperrors.NewDatabaseFailedError("find user", err)
	}

	hash, err := s.hash(password)
	if err != nil {
		return failure("Registration failed"), nil
	}

	id, err := s.users.CreateUser(ctx, username, email, hash)
	if errors.Is(err, storage.ErrEmailTaken) {
		return failure("Email already registered"), nil
	}
	if err != nil {
		return Response{}, apperrors.NewDatabaseFailedError("create user", err)
	}

	s.logger.Info("User registered", "user_id", id, "email", email)
	return success("User registered successfully"), nil
}

// Login checks credentials and returns the user
func (s *Service) Login(ctx context.Context, email, password string) (Response, error) {
	email = normalize(email)
	if email == "" || password == "" {
		return failure("Email and password are required"), nil
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrUserNotFound) {
		return failure("Invalid email or password"), nil
	}
	if err != nil {
		return Response{}, apperrors.NewDatabaseFailedError("find user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return failure("Invalid email or password"), nil
	}
	if !user.Verified {
		return failure("User is not verified"), nil
	}

	resp := success("Login successful")
	resp.User = &UserView{ID: user.ID, Name: user.Name, Email: user.Email}
	return resp, nil
}

// CheckVerify reports whether email belongs to a verified user
func (s *Service) CheckVerify(ctx context.Context, email string) (Response, error) {
	email = normalize(email)
	if email == "" {
		return failure("Email is required"), nil
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrUserNotFound) {
		return failure("User not found"), nil
	}
	if err != nil {
		return Response{}, apperrors.NewDatabaseFailedError("find user", err)
	}
	if !user.Verified {
		return failure("User not found"), nil
	}
	return success("User is verified"), nil
}

// VerifyUser sets the verify flag for email
func (s *Service) VerifyUser(ctx context.Context, email, verify string) (Response, error) {
	email, verify = normalize(email), strings.TrimSpace(verify)
	if email == "" || verify == "" {
		return failure("Email and verify value are required"), nil
	}

	rows, err := s.users.UpdateVerify(ctx, email, verify)
	if err != nil {
		s.logger.Error("Verify update failed", "email", email, "error", err)
		return failure("Failed to update verify status"), nil
	}
	if rows == 0 {
		return failure("No user found with this email or already updated"), nil
	}
	return success("Verify status updated successfully"), nil
}

// ResetPassword replaces the stored hash for email
func (s *Service) ResetPassword(ctx context.Context, email, password string) (Response, error) {
	email = normalize(email)
	if email == "" || password == "" {
		return failure("Email and password are required"), nil
	}

	if _, err := s.users.FindUserByEmail(ctx, email); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return failure("Email not found"), nil
		}
		return Response{}, apperrors.NewDatabaseFailedError("find user", err)
	}

	hash, err := s.hash(password)
	if err != nil {
		return Response{}, apperrors.NewInternalError(err)
	}

	rows, err := s.users.UpdatePassword(ctx, email, hash)
	if err != nil {
		return Response{}, apperrors.NewDatabaseFailedError("update password", err)
	}
	if rows == 0 {
		return failure("Email not found"), nil
	}
	return success("Password reset successfully"), nil
}

// SendOTP issues a code for email and dispatches it
func (s *Service) SendOTP(ctx context.Context, email string) (Response, error) {
	email = normalize(email)
	if !ValidEmail(email) {
		return failure("Invalid Email"), nil
	}

	code, err := s.genCode()
	if err != nil {
		return Response{}, apperrors.NewInternalError(err)
	}
	if err := s.otps.Save(ctx, email, code); err != nil {
		return Response{}, apperrors.NewStorageFailedError("failed to store otp", err)
	}

	if err := s.dispatcher.DispatchOTP(ctx, email, code); err != nil {
		s.logger.Error("OTP dispatch failed", "email", email, "error", err)
		return failure("Failed to send OTP"), nil
	}

	resp := success("OTP sent to email")
	resp.Email = email
	return resp, nil
}

// VerifyOTP compares code with the one issued for email
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (Response, error) {
	email = normalize(email)
	if email == "" {
		return failure("OTP expired"), nil
	}

	err := s.otps.Verify(ctx, email, code)
	switch {
	case err == nil:
		resp := success("OTP verified")
		resp.Email = email
		return resp, nil
	case errors.Is(err, storage.ErrOTPExpired):
		return failure("OTP expired"), nil
	case errors.Is(err, storage.ErrOTPMismatch):
		return failure("Invalid OTP"), nil
	default:
		return Response{}, apperrors.NewStorageFailedError("failed to read otp", err)
	}
}
