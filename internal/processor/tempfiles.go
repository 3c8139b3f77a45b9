package processor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/adverant/nexus/textread-service/internal/logging"
)

// ErrUploadTooLarge is returned by PersistUpload when the body exceeds the limit
var ErrUploadTooLarge = errors.New("upload exceeds size limit")

// TempFiles tracks every file a pipeline run creates so they can be removed
// on any exit path.
type TempFiles struct {
	mu     sync.Mutex
	paths  []string
	seen   map[string]struct{}
	logger *logging.Logger
}

// NewTempFiles creates an empty tracker
func NewTempFiles(logger *logging.Logger) *TempFiles {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TempFiles{
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// Track takes ownership of path. Tracking the same path twice is a no-op.
func (t *TempFiles) Track(path string) {
	if path == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[path]; ok {
		return
	}
	t.seen[path] = struct{}{}
	t.paths = append(t.paths, path)
}

// Paths returns the tracked paths in registration order
func (t *TempFiles) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.paths))
	copy(out, t.paths)
	return out
}

// ReleaseAll removes every tracked file. Missing files are ignored.
func (t *TempFiles) ReleaseAll() error {
	t.mu.Lock()
	paths := t.paths
	t.paths = nil
	t.seen = make(map[string]struct{})
	t.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("Failed to remove temp file", "path", p, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewTempPath returns a fresh path under dir for a file of the given kind
func NewTempPath(dir, kind, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("ocr_%s_%s%s", kind, uuid.NewString(), ext))
}

// PersistUpload streams r into a new file under dir. At most limit bytes are
// accepted; a larger body removes the partial file and returns ErrUploadTooLarge.
func PersistUpload(dir string, r io.Reader, limit int64, mimeType string) (ImageAsset, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ImageAsset{}, fmt.Errorf("failed to create temp dir: %w", err)
	}

	path := NewTempPath(dir, "upload", ExtensionForMime(mimeType))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return ImageAsset{}, fmt.Errorf("failed to create upload file: %w", err)
	}

	n, copyErr := io.Copy(file, io.LimitReader(r, limit+1))
	closeErr := file.Close()

	if copyErr != nil || closeErr != nil || n > limit {
		_ = os.Remove(path)
		if n > limit {
			return ImageAsset{}, ErrUploadTooLarge
		}
		if copyErr != nil {
			return ImageAsset{}, fmt.Errorf("failed to write upload: %w", copyErr)
		}
		return ImageAsset{}, fmt.Errorf("failed to close upload: %w", closeErr)
	}

	return ImageAsset{Path: path, MimeType: mimeType, Size: n}, nil
}
