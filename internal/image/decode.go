package image

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	xwebp "golang.org/x/image/webp"
)

// ErrICOSource is returned by DecodeSource for ICO input, which callers
// must route through the ico codec.
var ErrICOSource = errors.New("source is an ICO container")

var errUnsupported = errors.New("unsupported raster format")

var rasterDecoders = []struct {
	name   string
	decode func(io.Reader) (image.Image, error)
}{
	{"png", png.Decode},
	{"jpeg", jpeg.Decode},
	{"gif", gif.Decode},
	{"bmp", bmp.Decode},
	{"webp", xwebp.Decode},
	{"avif", decodeAVIF},
}

// DecodeSource decodes an image used as encode input and reports its format.
// SVG input is rasterized at SVGRenderSize.
func DecodeSource(b []byte) (image.Image, string, error) {
	if len(b) == 0 {
		return nil, "", errors.New("empty source image")
	}
	if LooksLikeICO(b) {
		return nil, "ico", ErrICOSource
	}
	if LooksLikeSVG(b) {
		img, err := RasterizeSVG(b, SVGRenderSize)
		if err != nil {
			return nil, "svg", err
		}
		return img, "svg", nil
	}

	for _, d := range rasterDecoders {
		if img, err := d.decode(bytes.NewReader(b)); err == nil {
			return img, d.name, nil
		}
	}
	return nil, "", errUnsupported
}

// LooksLikeICO reports whether b starts with an ICO header (reserved 0, type 1).
func LooksLikeICO(b []byte) bool {
	return len(b) >= 6 && b[0] == 0 && b[1] == 0 && b[2] == 1 && b[3] == 0
}

// LooksLikeSVG sniffs the first kilobyte for an <svg root.
func LooksLikeSVG(b []byte) bool {
	head := b
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimSpace(head)
	if !bytes.HasPrefix(head, []byte("<")) {
		return false
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}
