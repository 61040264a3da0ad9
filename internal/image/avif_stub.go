//go:build noavif

package image

import (
	"errors"
	"image"
	"io"
)

var errAVIFDisabled = errors.New("avif support disabled (built with -tags noavif)")

// encodeAsAVIF is a stub that returns an error when AVIF support is disabled.
// Build with -tags noavif to disable AVIF encoding support.
func encodeAsAVIF(img image.Image, quality int) ([]byte, error) {
	return nil, errAVIFDisabled
}

func decodeAVIF(r io.Reader) (image.Image, error) {
	return nil, errAVIFDisabled
}

// isAVIFSupported returns false when AVIF encoding is disabled.
func isAVIFSupported() bool {
	return false
}
