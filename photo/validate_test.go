package photo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tinyJPEG = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("jfif body")...)
	tinyPNG  = append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("png body")...)
)

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name     string
		maxBytes int64
		data     []byte
		want     Format
		wantErr  error
	}{
		{name: "jpeg", maxBytes: 1 << 20, data: tinyJPEG, want: FormatJPEG},
		{name: "png", maxBytes: 1 << 20, data: tinyPNG, want: FormatPNG},
		{name: "text file renamed to jpg", maxBytes: 1 << 20, data: []byte("just some notes about dinner"), wantErr: ErrInvalidFormat},
		{name: "gif is rejected", maxBytes: 1 << 20, data: []byte("GIF89a...."), wantErr: ErrInvalidFormat},
		{name: "truncated png signature", maxBytes: 1 << 20, data: tinyPNG[:4], wantErr: ErrInvalidFormat},
		{name: "empty", maxBytes: 1 << 20, data: nil, wantErr: ErrInvalidFormat},
		{name: "too large", maxBytes: 8, data: tinyJPEG, wantErr: ErrTooLarge},
		{name: "exactly at limit", maxBytes: int64(len(tinyPNG)), data: tinyPNG, want: FormatPNG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewValidator(tt.maxBytes).Validate(tt.data)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_MimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", FormatJPEG.MimeType())
	assert.Equal(t, "image/png", FormatPNG.MimeType())
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(tinyJPEG)
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint(bytes.Clone(tinyJPEG)))
	assert.NotEqual(t, a, Fingerprint(tinyPNG))
}
