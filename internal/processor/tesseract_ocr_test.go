package processor

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/adverant/nexus/textread-service/internal/logging"
)

type scriptedRunner struct {
	mu      sync.Mutex
	outputs map[int]string
	errs    map[int]error
	seen    []TesseractRunOptions
}

func (r *scriptedRunner) Run(_ context.Context, _ string, opts TesseractRunOptions) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, opts)
	if err := r.errs[opts.PSM]; err != nil {
		return "", err
	}
	return r.outputs[opts.PSM], nil
}

func (r *scriptedRunner) modes() []int {
	out := make([]int, 0, len(r.seen))
	for _, o := range r.seen {
		out = append(out, o.PSM)
	}
	return out
}

func newScriptedTesseract(t *testing.T, runner TesseractRunner) *TesseractOCR {
	t.Helper()
	ocr, err := NewTesseractOCR(&TesseractConfig{Runner: runner, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("NewTesseractOCR: %v", err)
	}
	return ocr
}

func TestTesseractStopsAtFirstText(t *testing.T) {
	runner := &scriptedRunner{
		outputs: map[int]string{10: "  \n", 13: "", 8: " Hello \n", 7: "never"},
		errs:    map[int]error{},
	}

	result := newScriptedTesseract(t, runner).Recognize(context.Background(), ImageAsset{Path: "/tmp/x.png"})

	if !result.Succeeded || result.Text != "Hello" || result.Confidence != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if got, want := runner.modes(), []int{10, 13, 8}; !reflect.DeepEqual(got, want) {
		t.Fatalf("modes tried = %v, want %v", got, want)
	}
	for _, o := range runner.seen {
		if o.Whitelist != LetterWhitelist || o.Language != "eng" {
			t.Fatalf("unexpected options %+v", o)
		}
	}
}

func TestTesseractSkipsFailingModes(t *testing.T) {
	runner := &scriptedRunner{
		outputs: map[int]string{7: "Q"},
		errs:    map[int]error{10: errors.New("exit status 1"), 13: errors.New("exit status 1")},
	}

	result := newScriptedTesseract(t, runner).Recognize(context.Background(), ImageAsset{Path: "/tmp/x.png"})
	if !result.Succeeded || result.Text != "Q" {
		t.Fatalf("unexpected result %+v", result)
	}
	if got, want := runner.modes(), DefaultPSMModes; !reflect.DeepEqual(got, want) {
		t.Fatalf("modes tried = %v, want %v", got, want)
	}
}

func TestTesseractExhaustedIsSoftFailure(t *testing.T) {
	runner := &scriptedRunner{outputs: map[int]string{}, errs: map[int]error{}}

	result := newScriptedTesseract(t, runner).Recognize(context.Background(), ImageAsset{Path: "/tmp/x.png"})
	if result.Succeeded || result.Text != "" {
		t.Fatalf("expected failed result, got %+v", result)
	}
	if len(runner.seen) != len(DefaultPSMModes) {
		t.Fatalf("all modes should be tried, got %d", len(runner.seen))
	}
}

func TestTesseractCLIMissingBinary(t *testing.T) {
	ocr, err := NewTesseractOCR(&TesseractConfig{
		TesseractPath: filepath.Join(t.TempDir(), "no-such-tesseract"),
		Timeout:       2 * time.Second,
		Logger:        logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewTesseractOCR: %v", err)
	}

	result := ocr.Recognize(context.Background(), ImageAsset{Path: "/tmp/x.png"})
	if result.Succeeded {
		t.Fatalf("missing binary must be a failed result, got %+v", result)
	}
}

func TestTesseractEngineSelection(t *testing.T) {
	if _, err := NewTesseractOCR(&TesseractConfig{Engine: "paddle", Logger: logging.Discard()}); err == nil {
		t.Fatalf("unknown engine should be rejected")
	}

	_, err := NewTesseractOCR(&TesseractConfig{Engine: EngineLibrary, Logger: logging.Discard()})
	if LibraryEngineAvailable && err != nil {
		t.Fatalf("library engine should build: %v", err)
	}
	if !LibraryEngineAvailable && err == nil {
		t.Fatalf("library engine should be unavailable without the gosseract tag")
	}
}
