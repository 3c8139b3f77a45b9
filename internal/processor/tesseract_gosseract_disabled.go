//go:build !gosseract

package processor

import "errors"

var errLibraryEngineNotCompiled = errors.New("tesseract library engine requires a binary built with -tags gosseract")

// LibraryEngineAvailable reports whether this binary links libtesseract
const LibraryEngineAvailable = false

func newLibraryRunner() (TesseractRunner, error) {
	return nil, errLibraryEngineNotCompiled
}
