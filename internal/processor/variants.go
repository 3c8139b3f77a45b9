/**
 * Variant Generator - preprocessed copies of an upload
 *
 * Each variant is a PNG under the temp dir, registered with the caller's
 * TempFiles tracker before it is written. The identity variant is always
 * first; a failed step drops only that variant.
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/textread-service/internal/logging"
)

const (
	downscaleAbove  = 2200
	downscaleFactor = 0.6
	upscaleBelow    = 600
	upscaleFactor   = 2.0
)

// VariantGenerator builds the ordered variant set for one image
type VariantGenerator struct {
	tempDir string
	enabled bool
	logger  *logging.Logger
}

// NewVariantGenerator creates a generator writing into tempDir. With enabled
// false, Generate returns the identity variant only.
func NewVariantGenerator(tempDir string, enabled bool, logger *logging.Logger) *VariantGenerator {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &VariantGenerator{
		tempDir: tempDir,
		enabled: enabled,
		logger:  logger,
	}
}

// PlanVariants returns the variant kinds produced for an image of w x h pixels,
// in generation order.
func PlanVariants(w, h int) []VariantKind {
	plan := []VariantKind{VariantIdentity}
	if max(w, h) > downscaleAbove {
		plan = append(plan, VariantDownscale)
	}
	if min(w, h) < upscaleBelow {
		plan = append(plan, VariantUpscale)
	}
	return append(plan, VariantContrastLow, VariantContrastHighSharpen, VariantBinarize)
}

func filterFor(kind VariantKind) func(image.Image) *image.NRGBA {
	switch kind {
	case VariantDownscale:
		return scaleFilter(downscaleFactor)
	case VariantUpscale:
		return scaleFilter(upscaleFactor)
	case VariantContrastLow:
		return contrastLowFilter
	case VariantContrastHighSharpen:
		return contrastHighSharpenFilter
	case VariantBinarize:
		return binarizeFilter(BinarizeThreshold)
	case VariantThresholdLocal:
		return binarizeFilter(TesseractThreshold)
	default:
		return nil
	}
}

// Generate produces the variant set for asset. Files are registered with
// tracker; the identity variant reuses asset itself.
func (g *VariantGenerator) Generate(ctx context.Context, asset ImageAsset, tracker *TempFiles) []Variant {
	variants := []Variant{{Asset: asset, Kind: VariantIdentity}}
	if !g.enabled {
		return variants
	}

	src, err := imaging.Open(asset.Path)
	if err != nil {
		g.logger.Warn("Image could not be decoded, using original only",
			"path", asset.Path, "mime", asset.MimeType, "error", err)
		return variants
	}

	b := src.Bounds()
	seen := map[string]struct{}{asset.Path: {}}
	for _, kind := range PlanVariants(b.Dx(), b.Dy())[1:] {
		if ctx.Err() != nil {
			g.logger.Warn("Variant generation cancelled", "error", ctx.Err())
			break
		}
		v, err := g.render(src, kind, tracker)
		if err != nil {
			g.logger.Warn("Variant generation failed", "variant", kind, "error", err)
			continue
		}
		if _, dup := seen[v.Asset.Path]; dup {
			continue
		}
		seen[v.Asset.Path] = struct{}{}
		variants = append(variants, v)
	}

	g.logger.Debug("Variants generated", "count", len(variants), "width", b.Dx(), "height", b.Dy())
	return variants
}

// ThresholdVariant renders a grayscale hard-threshold copy of asset
func (g *VariantGenerator) ThresholdVariant(ctx context.Context, asset ImageAsset, threshold uint8, tracker *TempFiles) (Variant, error) {
	if err := ctx.Err(); err != nil {
		return Variant{}, err
	}
	src, err := imaging.Open(asset.Path)
	if err != nil {
		return Variant{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return g.save(Binarize(imaging.Grayscale(src), threshold), VariantThresholdLocal, tracker)
}

func (g *VariantGenerator) render(src image.Image, kind VariantKind, tracker *TempFiles) (v Variant, err error) {
	filter := filterFor(kind)
	if filter == nil {
		return Variant{}, fmt.Errorf("unknown variant kind %q", kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("filter %s panicked: %v", kind, r)
		}
	}()
	return g.save(filter(src), kind, tracker)
}

func (g *VariantGenerator) save(img *image.NRGBA, kind VariantKind, tracker *TempFiles) (Variant, error) {
	if err := os.MkdirAll(g.tempDir, 0o755); err != nil {
		return Variant{}, fmt.Errorf("failed to create temp dir: %w", err)
	}

	path := NewTempPath(g.tempDir, string(kind), ".png")
	tracker.Track(path)
	if err := imaging.Save(img, path); err != nil {
		return Variant{}, fmt.Errorf("failed to write variant: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Variant{}, fmt.Errorf("failed to stat variant: %w", err)
	}

	return Variant{
		Asset: ImageAsset{Path: path, MimeType: "image/png", Size: info.Size()},
		Kind:  kind,
	}, nil
}
