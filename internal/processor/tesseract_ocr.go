/**
 * Tesseract OCR - Local fallback for short or handwritten text
 *
 * Tries several page-segmentation modes tuned for single characters, words
 * and lines, restricted to ASCII letters, and stops at the first mode that
 * yields text. Runs either the tesseract binary or the linked library.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/textread-service/internal/logging"
)

// DefaultPSMModes is the page-segmentation order: single char, raw line,
// single word, single line.
var DefaultPSMModes = []int{10, 13, 8, 7}

// LetterWhitelist restricts recognition to ASCII letters
const LetterWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Engines
const (
	EngineCLI     = "cli"
	EngineLibrary = "library"
)

// TesseractRunOptions configures one tesseract invocation
type TesseractRunOptions struct {
	Language  string
	PSM       int
	Whitelist string
}

// TesseractRunner performs one recognition pass
type TesseractRunner interface {
	Run(ctx context.Context, imagePath string, opts TesseractRunOptions) (string, error)
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	TesseractPath string
	Engine        string
	Language      string
	Timeout       time.Duration // per mode
	PSMModes      []int
	Runner        TesseractRunner // overrides Engine when set
	Logger        *logging.Logger
}

// TesseractOCR handles the local OCR fallback
type TesseractOCR struct {
	runner   TesseractRunner
	language string
	modes    []int
	timeout  time.Duration
	logger   *logging.Logger
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) (*TesseractOCR, error) {
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.PSMModes) == 0 {
		cfg.PSMModes = DefaultPSMModes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("TesseractOCR")
	}

	runner := cfg.Runner
	if runner == nil {
		switch cfg.Engine {
		case "", EngineCLI:
			runner = &cliRunner{binary: cfg.TesseractPath}
		case EngineLibrary:
			lib, err := newLibraryRunner()
			if err != nil {
				return nil, err
			}
			runner = lib
		default:
			return nil, fmt.Errorf("unknown tesseract engine %q", cfg.Engine)
		}
	}

	return &TesseractOCR{
		runner:   runner,
		language: cfg.Language,
		modes:    cfg.PSMModes,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}, nil
}

func (t *TesseractOCR) Name() string { return ProviderTesseract }

// Recognize returns the first non-empty trimmed text across the PSM modes.
// Confidence is never reported.
func (t *TesseractOCR) Recognize(ctx context.Context, asset ImageAsset) OCRResult {
	for _, psm := range t.modes {
		if err := ctx.Err(); err != nil {
			return FailedResult(ProviderTesseract, err.Error())
		}

		text, err := t.runMode(ctx, asset.Path, psm)
		if err != nil {
			t.logger.Debug("Tesseract mode failed", "psm", psm, "error", err)
			continue
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			t.logger.Debug("Tesseract produced text", "psm", psm, "chars", len(trimmed))
			return SucceededResult(ProviderTesseract, trimmed, nil)
		}
	}
	return FailedResult(ProviderTesseract, "tesseract produced no text")
}

func (t *TesseractOCR) runMode(ctx context.Context, path string, psm int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.runner.Run(ctx, path, TesseractRunOptions{
		Language:  t.language,
		PSM:       psm,
		Whitelist: LetterWhitelist,
	})
}

// cliRunner shells out to the tesseract binary and reads stdout
type cliRunner struct {
	binary string
}

func (r *cliRunner) Run(ctx context.Context, imagePath string, opts TesseractRunOptions) (string, error) {
	args := []string{imagePath, "stdout", "-l", opts.Language, "--psm", strconv.Itoa(opts.PSM)}
	if opts.Whitelist != "" {
		args = append(args, "-c", "tessedit_char_whitelist="+opts.Whitelist)
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
