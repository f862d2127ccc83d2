package imageutil

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/m-mizutani/goerr/v2"
)

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, "image/png"},
		{"gif87a", []byte("GIF87a trailing"), "image/gif"},
		{"gif89a", []byte("GIF89a trailing"), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"webp without riff", []byte("XXXX\x00\x00\x00\x00WEBPVP8 "), ""},
		{"plain text", []byte("hello world, not an image"), ""},
		{"truncated", []byte{0xFF}, ""},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMIME(tt.data))
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid png", func(t *testing.T) {
		mime, err := Validate([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00})
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := Validate(nil)
		require.Error(t, err)
		assert.True(t, goerr.HasTag(err, apperr.TagValidation))
	})

	t.Run("oversized payload", func(t *testing.T) {
		data := make([]byte, MaxImageBytes+1)
		copy(data, []byte{0xFF, 0xD8, 0xFF})
		_, err := Validate(data)
		require.Error(t, err)
		assert.True(t, goerr.HasTag(err, apperr.TagValidation))
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := Validate([]byte("%PDF-1.7 not an image"))
		require.Error(t, err)
		assert.True(t, goerr.HasTag(err, apperr.TagValidation))
	})
}

func TestDimensions(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 12, 7))
	require.NoError(t, png.Encode(&buf, img))

	w, h, err := Dimensions(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 12, w)
	assert.Equal(t, 7, h)

	_, _, err = Dimensions([]byte("garbage"))
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, apperr.TagValidation))
}
