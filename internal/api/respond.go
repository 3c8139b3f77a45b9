package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/adverant/nexus/textread-service/internal/errors"
	"github.com/adverant/nexus/textread-service/internal/logging"
)

// OCRResponse is the 200 body of the OCR endpoint
type OCRResponse struct {
	Success    bool     `json:"success"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// ErrorResponse is the body of every failed OCR request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON encodes v without HTML escaping so OCR text stays verbatim
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"Server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeError renders err as an OCR error body, logging internal faults
func writeError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	pe, ok := apperrors.As(err)
	if !ok {
		pe = apperrors.NewInternalError(err)
	}
	pe.WithRequestID(RequestIDFromContext(r.Context()))

	if pe.Kind() == apperrors.KindInternal {
		logger.Error("Request failed", "path", r.URL.Path, "details", pe.ToMap())
	} else {
		logger.Debug("Request rejected", "path", r.URL.Path, "code", pe.Code)
	}

	if pe.Code == apperrors.ErrorMethodNotAllowed {
		w.Header().Set("Allow", "POST, OPTIONS")
	}
	writeJSON(w, pe.HTTPStatus(), ErrorResponse{Success: false, Error: pe.PublicMessage()})
}
