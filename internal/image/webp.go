//go:build !nowebp

package image

import (
	"bytes"
	"image"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// encodeAsWebP uses libwebp; decoding WebP sources goes through x/image/webp
// and needs no cgo.
func encodeAsWebP(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = 85
	}
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetIcon, float32(quality))
	if err != nil {
		return nil, err
	}
	opts.Method = 4
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isWebPSupported() bool {
	return true
}
