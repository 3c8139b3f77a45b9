//go:build gosseract

package processor

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// LibraryEngineAvailable reports whether this binary links libtesseract
const LibraryEngineAvailable = true

// libraryRunner drives libtesseract through gosseract
type libraryRunner struct{}

func newLibraryRunner() (TesseractRunner, error) {
	return &libraryRunner{}, nil
}

func (r *libraryRunner) Run(ctx context.Context, imagePath string, opts TesseractRunOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(opts.Language); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PSM)); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if opts.Whitelist != "" {
		if err := client.SetWhitelist(opts.Whitelist); err != nil {
			return "", fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return text, nil
}
