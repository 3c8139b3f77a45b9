package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/adverant/nexus/textread-service/internal/auth"
	apperrors "github.com/adverant/nexus/textread-service/internal/errors"
	"github.com/adverant/nexus/textread-service/internal/logging"
)

// EmailCookie remembers the address an OTP was sent to
const EmailCookie = "email"

const maxAuthBody = 64 << 10

// AuthService is implemented by *auth.Service
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (auth.Response, error)
	Login(ctx context.Context, email, password string) (auth.Response, error)
	CheckVerify(ctx context.Context, email string) (auth.Response, error)
	VerifyUser(ctx context.Context, email, verify string) (auth.Response, error)
	ResetPassword(ctx context.Context, email, password string) (auth.Response, error)
	SendOTP(ctx context.Context, email string) (auth.Response, error)
	VerifyOTP(ctx context.Context, email, code string) (auth.Response, error)
	OTPTTL() time.Duration
}

// AuthHandlers serves the /api/auth endpoints
type AuthHandlers struct {
	service AuthService
	secure  bool
	logger  *logging.Logger
}

// NewAuthHandlers creates the account handlers. secure marks cookies Secure.
func NewAuthHandlers(service AuthService, secure bool, logger *logging.Logger) *AuthHandlers {
	if logger == nil {
		logger = logging.NewLogger("AuthHandlers")
	}
	return &AuthHandlers{service: service, secure: secure, logger: logger}
}

// Register mounts every account route on mux
func (h *AuthHandlers) Register(mux *http.ServeMux) {
	mux.Handle("/api/auth/register", h.post(func(r *http.Request, f fields) (auth.Response, error) {
		return h.service.Register(r.Context(), f.get("username"), f.get("email"), f.get("password"))
	}))
	mux.Handle("/api/auth/login", h.post(func(r *http.Request, f fields) (auth.Response, error) {
		return h.service.Login(r.Context(), f.get("email"), f.get("password"))
	}))
	mux.Handle("/api/auth/check_verify", h.post(func(r *http.Request, f fields) (auth.Response, error) {
		return h.service.CheckVerify(r.Context(), f.get("email"))
	}))
	mux.Handle("/api/auth/verify_user", h.post(func(r *http.Request, f fields) (auth.Response, error) {
		return h.service.VerifyUser(r.Context(), f.get("email"), f.get("verify"))
	}))
	mux.Handle("/api/auth/reset_password", h.post(func(r *http.Request, f fields) (auth.Response, error) {
		return h.service.ResetPassword(r.Context(), f.get("email"), f.get("password"))
	}))
	mux.Handle("/api/auth/send_otp", http.HandlerFunc(h.sendOTP))
	mux.Handle("/api/auth/verify_otp", http.HandlerFunc(h.verifyOTP))
}

type authAction func(r *http.Request, f fields) (auth.Response, error)

func (h *AuthHandlers) post(action authAction) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := h.accept(w, r)
		if !ok {
			return
		}
		resp, err := action(r, f)
		h.respond(w, r, resp, err)
	})
}

func (h *AuthHandlers) sendOTP(w http.ResponseWriter, r *http.Request) {
	f, ok := h.accept(w, r)
	if !ok {
		return
	}

	resp, err := h.service.SendOTP(r.Context(), f.get("email"))
	if err == nil && resp.OK() {
		ttl := h.service.OTPTTL()
		http.SetCookie(w, &http.Cookie{
			Name:     EmailCookie,
			Value:    resp.Email,
			Path:     "/",
			MaxAge:   int(ttl / time.Second),
			Expires:  time.Now().Add(ttl),
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	h.respond(w, r, resp, err)
}

func (h *AuthHandlers) verifyOTP(w http.ResponseWriter, r *http.Request) {
	f, ok := h.accept(w, r)
	if !ok {
		return
	}

	email := f.get("email")
	if email == "" {
		if c, err := r.Cookie(EmailCookie); err == nil {
			email = c.Value
		}
	}

	resp, err := h.service.VerifyOTP(r.Context(), email, f.get("otp"))
	if err == nil && resp.OK() {
		http.SetCookie(w, &http.Cookie{
			Name:     EmailCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	h.respond(w, r, resp, err)
}

// accept handles preflight and method checks, then decodes the body
func (h *AuthHandlers) accept(w http.ResponseWriter, r *http.Request) (fields, bool) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return nil, false
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, auth.Response{Status: auth.StatusError, Message: "Method Not Allowed"})
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBody)
	f, err := decodeFields(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, auth.Response{Status: auth.StatusError, Message: "Invalid request body"})
		return nil, false
	}
	return f, true
}

func (h *AuthHandlers) respond(w http.ResponseWriter, r *http.Request, resp auth.Response, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	pe, ok := apperrors.As(err)
	if !ok {
		pe = apperrors.NewInternalError(err)
	}
	pe.WithRequestID(RequestIDFromContext(r.Context()))
	h.logger.Error("Account request failed", "path", r.URL.Path, "details", pe.ToMap())

	msg := "Server error"
	if pe.Code == apperrors.ErrorDatabaseFailed {
		msg = "Database connection failed"
	}
	writeJSON(w, http.StatusInternalServerError, auth.Response{Status: auth.StatusError, Message: msg})
}

// fields is a flat view of a JSON object or form body
type fields map[string]string

func (f fields) get(key string) string {
	return f[key]
}

func decodeFields(r *http.Request) (fields, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	out := fields{}

	if mediaType == "application/json" || mediaType == "" {
		var raw map[string]interface{}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			if mediaType == "" && errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("decode body: %w", err)
		}
		for k, v := range raw {
			switch t := v.(type) {
			case string:
				out[k] = t
			case json.Number, bool:
				out[k] = fmt.Sprint(t)
			}
		}
		return out, nil
	}

	if err := r.ParseMultipartForm(maxAuthBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	for k, v := range r.PostForm {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}
