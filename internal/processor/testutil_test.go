package processor

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// writePNG writes a w x h image with dark "ink" stripes on a light background
func writePNG(t *testing.T, dir string, w, h int) ImageAsset {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 230, G: 225, B: 220, A: 255}
			if (x/7)%3 == 0 && (y/5)%2 == 0 {
				c = color.NRGBA{R: 20, G: 25, B: 30, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}

	path := filepath.Join(dir, "upload.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat fixture: %v", err)
	}
	return ImageAsset{Path: path, MimeType: "image/png", Size: info.Size()}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected no leftover files, found %v", names)
	}
}

func floatPtr(v float64) *float64 { return &v }

// fakeProvider answers from fn and records every path it was given
type fakeProvider struct {
	name string
	fn   func(asset ImageAsset) OCRResult

	mu    sync.Mutex
	calls []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Recognize(_ context.Context, asset ImageAsset) OCRResult {
	f.mu.Lock()
	f.calls = append(f.calls, asset.Path)
	f.mu.Unlock()
	return f.fn(asset)
}

func (f *fakeProvider) RecognizeURL(_ context.Context, imageURL string) OCRResult {
	f.mu.Lock()
	f.calls = append(f.calls, imageURL)
	f.mu.Unlock()
	return f.fn(ImageAsset{Path: imageURL})
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func constProvider(name string, r OCRResult) *fakeProvider {
	return &fakeProvider{name: name, fn: func(ImageAsset) OCRResult { return r }}
}
