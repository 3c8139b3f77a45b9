/**
 * Google Cloud Vision Client - document text detection
 *
 * Secondary provider used when the primary OCR returns empty text. The image
 * is sent inline as base64 with a DOCUMENT_TEXT_DETECTION feature.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adverant/nexus/textread-service/internal/logging"
)

// DefaultVisionURL is the public annotate endpoint
const DefaultVisionURL = "https://vision.googleapis.com/v1/images:annotate"

// FeatureDocumentTextDetection selects dense-text OCR
const FeatureDocumentTextDetection = "DOCUMENT_TEXT_DETECTION"

// VisionClient handles communication with the Vision annotate endpoint
type VisionClient struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logging.Logger
}

// VisionAnnotateRequest is the batch annotate payload
type VisionAnnotateRequest struct {
	Requests []VisionImageRequest `json:"requests"`
}

// VisionImageRequest annotates one image
type VisionImageRequest struct {
	Image    VisionImage     `json:"image"`
	Features []VisionFeature `json:"features"`
}

// VisionImage carries base64 image content
type VisionImage struct {
	Content string `json:"content"`
}

// VisionFeature selects a detection type
type VisionFeature struct {
	Type string `json:"type"`
}

// VisionAnnotateResponse is the batch annotate response
type VisionAnnotateResponse struct {
	Responses []VisionImageResponse `json:"responses"`
}

// VisionImageResponse is the result for one image
type VisionImageResponse struct {
	FullTextAnnotation *VisionTextAnnotation `json:"fullTextAnnotation,omitempty"`
	TextAnnotations    []VisionEntity        `json:"textAnnotations,omitempty"`
	Error              *VisionStatus         `json:"error,omitempty"`
}

// VisionTextAnnotation is the structured document text
type VisionTextAnnotation struct {
	Text  string       `json:"text"`
	Pages []VisionPage `json:"pages"`
}

// VisionPage holds detected blocks
type VisionPage struct {
	Blocks []VisionBlock `json:"blocks"`
}

// VisionBlock carries a 0-1 confidence when the API reports one
type VisionBlock struct {
	Confidence *float64 `json:"confidence,omitempty"`
}

// VisionEntity is a text annotation
type VisionEntity struct {
	Description string `json:"description"`
}

// VisionStatus is a per-image error
type VisionStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewVisionClient creates a new Vision client
func NewVisionClient(endpoint, apiKey string, timeout time.Duration) *VisionClient {
	if endpoint == "" {
		endpoint = DefaultVisionURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &VisionClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.NewLogger("VisionClient"),
	}
}

// WithLogger swaps the client logger
func (c *VisionClient) WithLogger(logger *logging.Logger) *VisionClient {
	c.logger = logger
	return c
}

// DetectDocumentText runs document text detection on raw image bytes.
// Any non-2xx status or undecodable body is an error.
func (c *VisionClient) DetectDocumentText(ctx context.Context, imageData []byte) (*VisionAnnotateResponse, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("image data is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := VisionAnnotateRequest{
		Requests: []VisionImageRequest{
			{
				Image:    VisionImage{Content: base64.StdEncoding.EncodeToString(imageData)},
				Features: []VisionFeature{{Type: FeatureDocumentTextDetection}},
			},
		},
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid vision endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("key", c.apiKey)
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to Vision failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Vision returned error status %d", resp.StatusCode)
	}

	var annotateResp VisionAnnotateResponse
	if err := json.Unmarshal(body, &annotateResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug("Vision call complete",
		"status", resp.StatusCode,
		"responses", len(annotateResp.Responses))

	return &annotateResp, nil
}

// Text prefers the full document text and falls back to the first annotation
func (r *VisionAnnotateResponse) Text() string {
	if r == nil || len(r.Responses) == 0 {
		return ""
	}
	first := r.Responses[0]
	if first.FullTextAnnotation != nil && first.FullTextAnnotation.Text != "" {
		return first.FullTextAnnotation.Text
	}
	if len(first.TextAnnotations) > 0 {
		return first.TextAnnotations[0].Description
	}
	return ""
}

// MeanConfidence averages every block confidence across all pages and rescales
// it to 0-100. Nil when no block reports a confidence.
func (r *VisionAnnotateResponse) MeanConfidence() *float64 {
	if r == nil || len(r.Responses) == 0 || r.Responses[0].FullTextAnnotation == nil {
		return nil
	}
	var sum float64
	count := 0
	for _, page := range r.Responses[0].FullTextAnnotation.Pages {
		for _, block := range page.Blocks {
			if block.Confidence != nil {
				sum += *block.Confidence
				count++
			}
		}
	}
	if count == 0 {
		return nil
	}
	mean := sum / float64(count) * 100.0
	return &mean
}
