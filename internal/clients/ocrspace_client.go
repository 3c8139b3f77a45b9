/**
 * OCR.Space Client - primary cloud OCR provider
 *
 * Sends one image per call, either as a multipart file upload or as a public
 * URL. Only ParsedResults[0] is ever read by callers: the engine may return
 * several blocks for multi-page input, which this service does not handle.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/textread-service/internal/logging"
)

// DefaultOCRSpaceURL is the public parse endpoint
const DefaultOCRSpaceURL = "https://api.ocr.space/parse/image"

// OCRSpaceClient handles communication with the OCR.Space parse API
type OCRSpaceClient struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logging.Logger
}

// OCRSpaceRequest describes a single parse call. Exactly one of FilePath or
// ImageURL must be set.
type OCRSpaceRequest struct {
	FilePath          string
	ImageURL          string
	Language          string
	Scale             bool
	DetectOrientation bool
	Engine            int // OCR engine selector, 2 unless set
}

// OCRSpaceResponse is the decoded parse response
type OCRSpaceResponse struct {
	ParsedResults         []OCRSpaceParsedResult `json:"ParsedResults"`
	IsErroredOnProcessing bool                   `json:"IsErroredOnProcessing"`
	ErrorMessage          FlexibleMessage        `json:"ErrorMessage"`
	ErrorDetails          FlexibleMessage        `json:"ErrorDetails"`
}

// OCRSpaceParsedResult is one parsed block
type OCRSpaceParsedResult struct {
	ParsedText     string         `json:"ParsedText"`
	MeanConfidence FlexibleNumber `json:"MeanConfidence"`
}

// FlexibleMessage accepts a string, a list of strings or null
type FlexibleMessage []string

func (m *FlexibleMessage) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = nil
		return nil
	}

	if trimmed[0] == '[' {
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("failed to decode message list: %w", err)
		}
		*m = list
		return nil
	}

	var single string
	if err := json.Unmarshal(trimmed, &single); err != nil {
		// Anything else (numbers, objects) is kept verbatim
		*m = FlexibleMessage{string(trimmed)}
		return nil
	}
	*m = FlexibleMessage{single}
	return nil
}

// String joins the parts like the API documentation renders them
func (m FlexibleMessage) String() string {
	parts := make([]string, 0, len(m))
	for _, p := range m {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "; ")
}

// FlexibleNumber accepts a JSON number or a numeric string; anything else is absent
type FlexibleNumber struct {
	Value *float64
}

func (n *FlexibleNumber) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	trimmed = strings.Trim(trimmed, `"`)
	if trimmed == "" || trimmed == "null" {
		n.Value = nil
		return nil
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		n.Value = nil
		return nil
	}
	n.Value = &v
	return nil
}

// NewOCRSpaceClient creates a new OCR.Space client
func NewOCRSpaceClient(endpoint, apiKey string, timeout time.Duration) *OCRSpaceClient {
	if endpoint == "" {
		endpoint = DefaultOCRSpaceURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OCRSpaceClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.NewLogger("OCRSpaceClient"),
	}
}

// WithLogger swaps the client logger
func (c *OCRSpaceClient) WithLogger(logger *logging.Logger) *OCRSpaceClient {
	c.logger = logger
	return c
}

// Parse submits the image and decodes the response. Transport failures and
// non-JSON bodies are returned as errors; provider-side failures come back in
// the response with IsErroredOnProcessing set.
func (c *OCRSpaceClient) Parse(ctx context.Context, req *OCRSpaceRequest) (*OCRSpaceResponse, error) {
	if req.FilePath == "" && req.ImageURL == "" {
		return nil, fmt.Errorf("either a file path or an image URL is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := c.buildForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("request error: failed to read response body: %w", err)
	}

	var parsed OCRSpaceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("Non-JSON response (HTTP %d)", resp.StatusCode)
	}

	c.logger.Debug("OCR.Space call complete",
		"status", resp.StatusCode,
		"errored", parsed.IsErroredOnProcessing,
		"results", len(parsed.ParsedResults),
		"duration", time.Since(startTime))

	return &parsed, nil
}

func (c *OCRSpaceClient) buildForm(req *OCRSpaceRequest) (io.Reader, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	engine := req.Engine
	if engine == 0 {
		engine = 2
	}
	language := req.Language
	if language == "" {
		language = "eng"
	}

	fields := [][2]string{
		{"apikey", c.apiKey},
		{"language", language},
		{"isOverlayRequired", "false"},
		{"OCREngine", strconv.Itoa(engine)},
		{"scale", strconv.FormatBool(req.Scale)},
		{"detectOrientation", strconv.FormatBool(req.DetectOrientation)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	if req.FilePath != "" {
		file, err := os.Open(req.FilePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open image: %w", err)
		}
		defer file.Close()

		part, err := writer.CreateFormFile("file", filepath.Base(req.FilePath))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file part: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", fmt.Errorf("failed to write file data to form: %w", err)
		}
	} else {
		if err := writer.WriteField("url", req.ImageURL); err != nil {
			return nil, "", fmt.Errorf("failed to write form field url: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}

// FirstResult returns ParsedResults[0] text and confidence, empty when absent
func (r *OCRSpaceResponse) FirstResult() (string, *float64) {
	if r == nil || len(r.ParsedResults) == 0 {
		return "", nil
	}
	first := r.ParsedResults[0]
	return first.ParsedText, first.MeanConfidence.Value
}

// ErrorText returns the provider error message or a generic one
func (r *OCRSpaceResponse) ErrorText() string {
	if msg := r.ErrorMessage.String(); msg != "" {
		return msg
	}
	return "OCR processing error"
}
