/**
 * OTP mailer
 *
 * Renders the active sender profile's template and delivers it over SMTP.
 * Used inline (MAIL_DELIVERY=direct) and by the mail worker.
 */

package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/adverant/nexus/textread-service/internal/logging"
	"github.com/adverant/nexus/textread-service/internal/storage"
)

// OTPPlaceholder is replaced with the code in subject and body templates
const OTPPlaceholder = "$otp"

// SenderSource provides the active sender profile
type SenderSource interface {
	GetActiveSender(ctx context.Context) (*storage.SenderProfile, error)
}

// SendFunc delivers a composed message with the given dialer
type SendFunc func(d *gomail.Dialer, m *gomail.Message) error

// Config holds SMTP settings shared by every sender profile
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
	Send    SendFunc // defaults to d.DialAndSend
	Logger  *logging.Logger
}

// OTPMailer sends one-time codes by email
type OTPMailer struct {
	senders SenderSource
	host    string
	port    int
	timeout time.Duration
	send    SendFunc
	logger  *logging.Logger
}

// NewOTPMailer creates a mailer reading sender credentials from senders
func NewOTPMailer(senders SenderSource, cfg Config) (*OTPMailer, error) {
	if senders == nil {
		return nil, fmt.Errorf("sender source is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 465
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Send == nil {
		cfg.Send = func(d *gomail.Dialer, m *gomail.Message) error {
			return d.DialAndSend(m)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("OTPMailer")
	}

	return &OTPMailer{
		senders: senders,
		host:    cfg.Host,
		port:    cfg.Port,
		timeout: cfg.Timeout,
		send:    cfg.Send,
		logger:  cfg.Logger,
	}, nil
}

// RenderTemplate substitutes the code into a template
func RenderTemplate(template, code string) string {
	return strings.ReplaceAll(template, OTPPlaceholder, code)
}

// ComposeOTPMessage builds the HTML message for one recipient
func ComposeOTPMessage(sender *storage.SenderProfile, to, code string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", sender.Email, sender.SenderName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", RenderTemplate(sender.Subject, code))
	m.SetBody("text/html", RenderTemplate(sender.BodyTemplate, code))
	return m
}

// DispatchOTP looks up the active sender and mails code to email
func (o *OTPMailer) DispatchOTP(ctx context.Context, email, code string) error {
	sender, err := o.senders.GetActiveSender(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sender profile: %w", err)
	}

	msg := ComposeOTPMessage(sender, email, code)

	dialer := gomail.NewDialer(o.host, o.port, sender.Email, sender.Password)
	dialer.SSL = o.port == 465

	// gomail has no context support; run the send and give up on ctx expiry
	done := make(chan error, 1)
	go func() {
		done <- o.send(dialer, msg)
	}()

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send OTP mail: %w", err)
		}
		o.logger.Info("OTP mail sent", "to", email, "from", sender.Email)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("OTP mail cancelled: %w", ctx.Err())
	case <-timer.C:
		return fmt.Errorf("OTP mail timed out after %v", o.timeout)
	}
}
