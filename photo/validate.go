package photo

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrInvalidFormat = errors.New("image is not a JPEG or PNG")
	ErrTooLarge      = errors.New("image exceeds the size limit")
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

func (f Format) MimeType() string {
	return "image/" + string(f)
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
)

// Validator gates images by magic bytes and size before any model call.
type Validator struct {
	maxBytes int64
}

func NewValidator(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// Validate returns the detected format, or ErrTooLarge / ErrInvalidFormat.
// The size check runs first so an oversized upload is reported as such
// whatever its content.
func (v *Validator) Validate(data []byte) (Format, error) {
	if v.maxBytes > 0 && int64(len(data)) > v.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), v.maxBytes)
	}
	return DetectFormat(data)
}

// DetectFormat sniffs the magic bytes of data.
func DetectFormat(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG, nil
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG, nil
	}
	return "", ErrInvalidFormat
}

// Fingerprint identifies image content for the per-session detection cache.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
