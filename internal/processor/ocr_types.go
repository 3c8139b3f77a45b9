/**
 * OCR Types - Shared data structures for the OCR pipeline
 *
 * Common types used by every provider adapter and by the orchestrator.
 */

package processor

import (
	"strings"
)

// VariantKind tags how a variant was derived from the upload
type VariantKind string

const (
	VariantIdentity            VariantKind = "identity"
	VariantDownscale           VariantKind = "downscale"
	VariantUpscale             VariantKind = "upscale"
	VariantContrastLow         VariantKind = "contrast-low"
	VariantContrastHighSharpen VariantKind = "contrast-high+sharpen"
	VariantBinarize            VariantKind = "binarize"
	VariantThresholdLocal      VariantKind = "threshold-local"
)

// Provider names reported in results
const (
	ProviderOCRSpace  = "ocrspace"
	ProviderVision    = "vision"
	ProviderTesseract = "tesseract"
)

// ImageAsset is a temporary image file owned by one pipeline run
type ImageAsset struct {
	Path     string
	MimeType string
	Size     int64
}

// Variant is an ImageAsset plus its provenance
type Variant struct {
	Asset ImageAsset
	Kind  VariantKind
}

// OCRResult is the normalized answer of one provider call.
// A failed result never carries text or confidence; build it with
// FailedResult / SucceededResult.
type OCRResult struct {
	Succeeded    bool
	Text         string
	Confidence   *float64
	ErrorMessage string
	Provider     string
}

// FailedResult builds a result for a provider-side or transport failure
func FailedResult(provider, message string) OCRResult {
	if message == "" {
		message = "OCR processing error"
	}
	return OCRResult{
		Succeeded:    false,
		ErrorMessage: message,
		Provider:     provider,
	}
}

// SucceededResult builds a result for a completed call; text may be empty
func SucceededResult(provider, text string, confidence *float64) OCRResult {
	return OCRResult{
		Succeeded:  true,
		Text:       text,
		Confidence: confidence,
		Provider:   provider,
	}
}

// HasText reports whether the result carries non-whitespace text
func (r OCRResult) HasText() bool {
	return r.Succeeded && strings.TrimSpace(r.Text) != ""
}

// PipelineOutcome is the final answer of one Resolve call
type PipelineOutcome struct {
	Success    bool
	Text       string
	Confidence *float64
	Error      string
	Provider   string
	Variant    VariantKind
}
