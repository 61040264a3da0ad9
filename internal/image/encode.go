package image

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"
)

// PNGCodec is the PNG capability handed to the ico codec.
type PNGCodec struct {
	Level png.CompressionLevel
}

// ParseCompression maps a config name to a PNG compression level.
func ParseCompression(name string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return png.DefaultCompression, nil
	case "best":
		return png.BestCompression, nil
	case "fast":
		return png.BestSpeed, nil
	case "none":
		return png.NoCompression, nil
	}
	return png.DefaultCompression, fmt.Errorf("unknown png compression %q", name)
}

func (c PNGCodec) EncodePNG(img image.Image) ([]byte, error) {
	enc := png.Encoder{CompressionLevel: c.Level}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (PNGCodec) DecodePNG(b []byte) (image.Image, error) {
	return png.Decode(bytes.NewReader(b))
}

func (PNGCodec) DecodePNGConfig(b []byte) (image.Config, error) {
	return png.DecodeConfig(bytes.NewReader(b))
}

// EncodeByFormat encodes a decoded icon for output. Unavailable AVIF falls
// back to WebP, and anything else to PNG.
func EncodeByFormat(img image.Image, format string) ([]byte, string) {
	switch format {
	case "avif":
		if b, err := encodeAsAVIF(img, 75); err == nil && len(b) > 0 {
			return b, "image/avif"
		}
		// Fall through to WebP if AVIF fails
		fallthrough
	case "webp":
		if b, err := encodeAsWebP(img, 85); err == nil && len(b) > 0 {
			return b, "image/webp"
		}
	}

	if b, err := (PNGCodec{}).EncodePNG(img); err == nil {
		return b, "image/png"
	}
	return nil, ""
}

func ContentTypeFor(format string) string {
	switch format {
	case "avif":
		return "image/avif"
	case "webp":
		return "image/webp"
	case "ico":
		return "image/x-icon"
	default:
		return "image/png"
	}
}

// ExtensionFor returns the file extension, with dot, for a content type.
func ExtensionFor(contentType string) string {
	switch contentType {
	case "image/avif":
		return ".avif"
	case "image/webp":
		return ".webp"
	case "image/x-icon":
		return ".ico"
	default:
		return ".png"
	}
}
