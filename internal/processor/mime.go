package processor

import (
	"bytes"
	"strings"
)

var supportedImageMimes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
}

// IsSupportedImageMime reports whether the pipeline accepts the MIME type
func IsSupportedImageMime(mimeType string) bool {
	_, ok := supportedImageMimes[normalizeMime(mimeType)]
	return ok
}

// ExtensionForMime returns a file extension for a supported type, ".bin" otherwise
func ExtensionForMime(mimeType string) string {
	if ext, ok := supportedImageMimes[normalizeMime(mimeType)]; ok {
		return ext
	}
	return ".bin"
}

func normalizeMime(mimeType string) string {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	switch m {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	case "image/x-ms-bmp", "image/x-bmp":
		return "image/bmp"
	}
	return m
}

// DetectMimeType detects the real type of an upload from its magic bytes.
// Browsers and proxies often send application/octet-stream for images.
func DetectMimeType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: little-endian or big-endian header
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	return ""
}

// ResolveMimeType prefers the sniffed type and falls back to the declared one
func ResolveMimeType(head []byte, declared string) string {
	if detected := DetectMimeType(head); detected != "" {
		return detected
	}
	return normalizeMime(declared)
}
