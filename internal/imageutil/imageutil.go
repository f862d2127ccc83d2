// Package imageutil validates and inspects image payloads before they enter
// the extraction pipeline.
package imageutil

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/m-mizutani/goerr/v2"
	_ "golang.org/x/image/webp"

	"github.com/sherlock-kb/sherlock/internal/apperr"
)

// MaxImageBytes caps downloaded and uploaded image payloads.
const MaxImageBytes = 20 << 20

var magicNumbers = []struct {
	offset int
	sig    []byte
	mime   string
}{
	{0, []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{0, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
	{0, []byte("GIF87a"), "image/gif"},
	{0, []byte("GIF89a"), "image/gif"},
	{8, []byte("WEBP"), "image/webp"},
}

// DetectMIME returns the MIME type implied by the payload's magic bytes, or
// "" when it matches no supported format. WEBP additionally requires the RIFF
// container header.
func DetectMIME(data []byte) string {
	for _, m := range magicNumbers {
		end := m.offset + len(m.sig)
		if len(data) < end {
			continue
		}
		if !bytes.Equal(data[m.offset:end], m.sig) {
			continue
		}
		if m.mime == "image/webp" && !bytes.HasPrefix(data, []byte("RIFF")) {
			continue
		}
		return m.mime
	}
	return ""
}

// Validate checks that data is a non-empty, size-bounded payload in a
// supported image format and returns its MIME type.
func Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", goerr.New("empty image payload", goerr.T(apperr.TagValidation))
	}
	if len(data) > MaxImageBytes {
		return "", goerr.New("image payload too large",
			goerr.T(apperr.TagValidation), goerr.V("bytes", len(data)))
	}
	mime := DetectMIME(data)
	if mime == "" {
		return "", goerr.New("unsupported image format", goerr.T(apperr.TagValidation))
	}
	return mime, nil
}

// Dimensions decodes the image header and returns width and height.
func Dimensions(data []byte) (int, int, error) {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, goerr.Wrap(err, "failed to decode image header", goerr.T(apperr.TagValidation))
	}
	return config.Width, config.Height, nil
}
