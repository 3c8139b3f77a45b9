package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// TypeSendOTPMail is the task type for OTP delivery
const TypeSendOTPMail = "mail:send_otp"

// SendOTPPayload is the job data for an OTP mail
type SendOTPPayload struct {
	Email       string    `json:"email"`
	Code        string    `json:"code"`
	RequestedAt time.Time `json:"requestedAt"`
}

// NewSendOTPTask builds the task for one OTP mail
func NewSendOTPTask(email, code string) (*asynq.Task, error) {
	email = strings.TrimSpace(email)
	if email == "" || code == "" {
		return nil, fmt.Errorf("email and code are required")
	}

	payload, err := json.Marshal(SendOTPPayload{
		Email:       email,
		Code:        code,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeSendOTPMail, payload), nil
}

// ParseSendOTPPayload decodes and validates a task payload
func ParseSendOTPPayload(task *asynq.Task) (*SendOTPPayload, error) {
	var p SendOTPPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if p.Email == "" || p.Code == "" {
		return nil, fmt.Errorf("job data missing email or code")
	}
	return &p, nil
}
