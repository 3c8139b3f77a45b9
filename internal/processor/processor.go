/**
 * Image Processor for the textread service
 *
 * Orchestrates OCR for one image:
 * - preprocessing variants, each sent to the primary provider
 * - result selection by confidence and text length
 * - secondary (vision) and tertiary (tesseract) fallbacks when text is empty
 * - removal of every temporary file before returning
 */

package processor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/adverant/nexus/textread-service/internal/errors"
	"github.com/adverant/nexus/textread-service/internal/logging"
)

// ImageProcessorInterface defines the interface for OCR resolution
type ImageProcessorInterface interface {
	Resolve(ctx context.Context, asset ImageAsset) (*PipelineOutcome, error)
	ResolveURL(ctx context.Context, imageURL string) (*PipelineOutcome, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	TempDir              string
	VariantConcurrency   int
	PreprocessingEnabled bool
	Primary              Provider
	Secondary            Provider // nil disables the vision fallback
	Tertiary             Provider // nil disables the local fallback
	Logger               *logging.Logger
}

// ImageProcessor runs the OCR pipeline
type ImageProcessor struct {
	config      *ProcessorConfig
	primary     Provider
	secondary   Provider
	tertiary    Provider
	variants    *VariantGenerator
	concurrency int
	logger      *logging.Logger
}

// NewImageProcessor creates a new image processor
func NewImageProcessor(cfg *ProcessorConfig) (*ImageProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Primary == nil {
		return nil, fmt.Errorf("primary OCR provider is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("ImageProcessor")
	}

	concurrency := cfg.VariantConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	if cfg.Secondary == nil {
		logger.Info("Vision fallback disabled: no API key configured")
	}
	if cfg.Tertiary == nil {
		logger.Warn("Tesseract fallback disabled")
	}

	return &ImageProcessor{
		config:      cfg,
		primary:     cfg.Primary,
		secondary:   cfg.Secondary,
		tertiary:    cfg.Tertiary,
		variants:    NewVariantGenerator(cfg.TempDir, cfg.PreprocessingEnabled, logger.Named("VariantGenerator")),
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// cascadeOverhead covers decoding, filtering and temp file I/O
const cascadeOverhead = 30 * time.Second

// CascadeBudget bounds the wall time of one Resolve when every provider call
// runs into providerTimeout: the largest variant set in rounds of concurrency,
// one vision call and one tesseract call per PSM mode.
func CascadeBudget(providerTimeout time.Duration, concurrency, psmModes int) time.Duration {
	if concurrency < 1 {
		concurrency = 1
	}
	variants := len(PlanVariants(downscaleAbove+1, upscaleBelow-1))
	rounds := (variants + concurrency - 1) / concurrency
	calls := rounds + 1 + psmModes
	return time.Duration(calls)*providerTimeout + cascadeOverhead
}

// Resolve runs the full pipeline on an uploaded image. The processor takes
// ownership of asset: its file is deleted before Resolve returns.
//
// A returned error is always a *errors.ProcessingError (unsupported media type
// or internal). Upstream failures are reported through the outcome.
func (p *ImageProcessor) Resolve(ctx context.Context, asset ImageAsset) (outcome *PipelineOutcome, err error) {
	startTime := time.Now()
	tracker := NewTempFiles(p.logger)
	tracker.Track(asset.Path)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("OCR pipeline panicked", "panic", r, "stack", string(debug.Stack()))
			outcome = nil
			err = apperrors.NewInternalError(fmt.Errorf("panic in OCR pipeline: %v", r))
		}
		if relErr := tracker.ReleaseAll(); relErr != nil {
			p.logger.Warn("Temp file cleanup incomplete", "error", relErr)
		}
	}()

	// Step 1: Validate media type
	if !IsSupportedImageMime(asset.MimeType) {
		return nil, apperrors.NewUnsupportedMediaTypeError(asset.MimeType)
	}

	// Step 2: Build variants
	variants := p.variants.Generate(ctx, asset, tracker)
	p.logger.Info("Step 2: Variants ready", "count", len(variants), "mime", asset.MimeType, "bytes", asset.Size)

	// Step 3: Primary OCR per variant, folded in generation order
	results, err := p.recognizeVariants(ctx, variants)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	bestIdx := selectBest(results)
	if bestIdx < 0 {
		return nil, apperrors.NewInternalError(fmt.Errorf("no variants to recognize"))
	}

	anySucceeded := false
	for i := range results {
		if results[i].Succeeded {
			anySucceeded = true
			if !results[bestIdx].Succeeded {
				// every success scored zero; keep the earliest one
				bestIdx = i
			}
			break
		}
	}

	best := results[bestIdx]
	bestVariant := variants[bestIdx]
	finalVariant := bestVariant.Kind
	p.logger.Info("Step 3: Primary OCR complete",
		"variant", bestVariant.Kind,
		"score", Score(&best),
		"succeeded", best.Succeeded)

	// Step 4: Vision fallback on the best variant
	if !best.HasText() && p.secondary != nil {
		p.logger.Info("Step 4: Primary text empty, trying vision fallback")
		if r := p.secondary.Recognize(ctx, bestVariant.Asset); r.HasText() {
			best = r
		} else if !r.Succeeded {
			p.logger.Warn("Vision fallback failed", "error", r.ErrorMessage)
		}
	}

	// Step 5: Tesseract fallback on a thresholded copy
	if !best.HasText() && p.tertiary != nil {
		p.logger.Info("Step 5: Text still empty, trying tesseract fallback")
		input := bestVariant
		if p.config.PreprocessingEnabled {
			tv, tvErr := p.variants.ThresholdVariant(ctx, bestVariant.Asset, TesseractThreshold, tracker)
			if tvErr != nil {
				p.logger.Warn("Threshold variant failed, using best variant", "error", tvErr)
			} else {
				input = tv
			}
		}
		if r := p.tertiary.Recognize(ctx, input.Asset); r.HasText() {
			best = SucceededResult(r.Provider, r.Text, nil)
			finalVariant = input.Kind
		}
	}

	outcome = p.buildOutcome(best, anySucceeded, finalVariant)
	p.logger.Info("OCR resolved",
		"success", outcome.Success,
		"provider", outcome.Provider,
		"variant", outcome.Variant,
		"chars", len(outcome.Text),
		"duration", time.Since(startTime))
	return outcome, nil
}

// ResolveURL asks the primary provider to fetch and recognize imageURL.
// No preprocessing or fallbacks apply.
func (p *ImageProcessor) ResolveURL(ctx context.Context, imageURL string) (outcome *PipelineOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("OCR URL pipeline panicked", "panic", r)
			outcome = nil
			err = apperrors.NewInternalError(fmt.Errorf("panic in OCR pipeline: %v", r))
		}
	}()

	urlProvider, ok := p.primary.(URLProvider)
	if !ok {
		return nil, apperrors.NewInternalError(fmt.Errorf("provider %s cannot fetch URLs", p.primary.Name()))
	}

	r := urlProvider.RecognizeURL(ctx, imageURL)
	return p.buildOutcome(r, r.Succeeded, ""), nil
}

// recognizeVariants calls the primary provider for every variant on a bounded
// pool. results[i] always belongs to variants[i].
func (p *ImageProcessor) recognizeVariants(ctx context.Context, variants []Variant) ([]OCRResult, error) {
	results := make([]OCRResult, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, v := range variants {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("primary provider panicked on %s variant: %v", v.Kind, r)
				}
			}()
			results[i] = p.primary.Recognize(gctx, v.Asset)
			if !results[i].Succeeded {
				p.logger.Debug("Variant OCR failed", "variant", v.Kind, "error", results[i].ErrorMessage)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *ImageProcessor) buildOutcome(r OCRResult, anySucceeded bool, variant VariantKind) *PipelineOutcome {
	if !r.Succeeded && !anySucceeded {
		return &PipelineOutcome{
			Success:  false,
			Error:    r.ErrorMessage,
			Provider: r.Provider,
			Variant:  variant,
		}
	}
	return &PipelineOutcome{
		Success:    true,
		Text:       r.Text,
		Confidence: r.Confidence,
		Provider:   r.Provider,
		Variant:    variant,
	}
}
