/**
 * OCR endpoint
 *
 * Accepts a multipart `image` upload or an `image_url` (form or JSON) and
 * returns the text found by the OCR pipeline.
 */

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/adverant/nexus/textread-service/internal/errors"
	"github.com/adverant/nexus/textread-service/internal/logging"
	"github.com/adverant/nexus/textread-service/internal/processor"
)

const (
	// room for multipart boundaries and small fields on top of the file limit
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
	sniffLen          = 512
)

// OCRHandler serves POST /ocr
type OCRHandler struct {
	processor processor.ImageProcessorInterface
	tempDir   string
	maxUpload int64
	deadline  time.Duration
	logger    *logging.Logger
}

// NewOCRHandler creates the OCR endpoint handler
func NewOCRHandler(proc processor.ImageProcessorInterface, tempDir string, maxUpload int64, logger *logging.Logger) *OCRHandler {
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	if logger == nil {
		logger = logging.NewLogger("OCRHandler")
	}
	return &OCRHandler{processor: proc, tempDir: tempDir, maxUpload: maxUpload, logger: logger}
}

// WithDeadline bounds every request; zero disables the bound
func (h *OCRHandler) WithDeadline(d time.Duration) *OCRHandler {
	h.deadline = d
	return h
}

type ocrJSONRequest struct {
	ImageURL    string          `json:"image_url"`
	Image       json.RawMessage `json:"image"`
	ImageBase64 json.RawMessage `json:"image_base64"`
}

// imageSource is what a request asked us to read
type imageSource struct {
	file     multipart.File
	header   *multipart.FileHeader
	imageURL string
}

func (h *OCRHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		writeError(w, r, h.logger, apperrors.NewMethodNotAllowedError())
		return
	}

	if h.deadline > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), h.deadline)
		defer cancel()
		r = r.WithContext(ctx)
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	src, err := h.readSource(r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var outcome *processor.PipelineOutcome
	if src.file != nil {
		defer src.file.Close()
		outcome, err = h.resolveUpload(r, src)
	} else {
		outcome, err = h.processor.ResolveURL(r.Context(), src.imageURL)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if !outcome.Success {
		writeError(w, r, h.logger, apperrors.NewOCRFailedError(outcome.Provider, outcome.Error))
		return
	}

	writeJSON(w, http.StatusOK, OCRResponse{
		Success:    true,
		Text:       outcome.Text,
		Confidence: outcome.Confidence,
	})
}

// readSource extracts exactly one image source, rejecting base64 payloads
func (h *OCRHandler) readSource(r *http.Request) (*imageSource, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var body ocrJSONRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if isTooLarge(err) {
				return nil, apperrors.NewFileTooLargeError(h.maxUpload)
			}
			return nil, apperrors.NewInvalidUploadError(err)
		}
		if present(body.ImageBase64) || present(body.Image) {
			return nil, apperrors.NewBase64RejectedError()
		}
		return urlSource(body.ImageURL)

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if isTooLarge(err) {
				return nil, apperrors.NewFileTooLargeError(h.maxUpload)
			}
			return nil, apperrors.NewInvalidUploadError(err)
		}

	default:
		if err := r.ParseForm(); err != nil {
			if isTooLarge(err) {
				return nil, apperrors.NewFileTooLargeError(h.maxUpload)
			}
			return nil, apperrors.NewInvalidUploadError(err)
		}
	}

	if strings.TrimSpace(r.FormValue("image_base64")) != "" || strings.TrimSpace(r.PostFormValue("image")) != "" {
		return nil, apperrors.NewBase64RejectedError()
	}

	if r.MultipartForm != nil && len(r.MultipartForm.File["image"]) > 0 {
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, apperrors.NewInvalidUploadError(err)
		}
		if header.Size <= 0 || header.Size > h.maxUpload {
			file.Close()
			return nil, apperrors.NewFileTooLargeError(h.maxUpload)
		}
		return &imageSource{file: file, header: header}, nil
	}

	return urlSource(r.FormValue("image_url"))
}

func (h *OCRHandler) resolveUpload(r *http.Request, src *imageSource) (*processor.PipelineOutcome, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src.file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperrors.NewInvalidUploadError(err)
	}
	head = head[:n]

	mimeType := processor.ResolveMimeType(head, src.header.Header.Get("Content-Type"))
	if !processor.IsSupportedImageMime(mimeType) {
		return nil, apperrors.NewUnsupportedMediaTypeError(mimeType)
	}

	asset, err := processor.PersistUpload(h.tempDir, io.MultiReader(bytes.NewReader(head), src.file), h.maxUpload, mimeType)
	if errors.Is(err, processor.ErrUploadTooLarge) {
		return nil, apperrors.NewFileTooLargeError(h.maxUpload)
	}
	if err != nil {
		return nil, apperrors.NewStorageFailedError("failed to persist upload", err)
	}

	h.logger.Debug("Upload persisted", "file", src.header.Filename, "mime", mimeType, "bytes", asset.Size)
	return h.processor.Resolve(r.Context(), asset)
}

func urlSource(raw string) (*imageSource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !validImageURL(raw) {
		return nil, apperrors.NewMissingImageError()
	}
	return &imageSource{imageURL: raw}, nil
}

func validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// present reports whether a JSON field carried a non-empty value
func present(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	return v != "" && v != "null" && v != `""`
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}
