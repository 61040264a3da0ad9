package image

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

// Resampler scales images with an x/image/draw interpolator.
// The zero value uses CatmullRom.
type Resampler struct {
	Kernel draw.Interpolator
}

// ParseResample maps a config name to a Resampler.
func ParseResample(name string) (Resampler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "catmullrom":
		return Resampler{Kernel: draw.CatmullRom}, nil
	case "bilinear":
		return Resampler{Kernel: draw.BiLinear}, nil
	case "approxbilinear":
		return Resampler{Kernel: draw.ApproxBiLinear}, nil
	case "nearest":
		return Resampler{Kernel: draw.NearestNeighbor}, nil
	}
	return Resampler{}, fmt.Errorf("unknown resample filter %q", name)
}

// Resize scales img to exactly width×height. Alpha is copied, not composited.
func (r Resampler) Resize(img image.Image, width, height int) *image.NRGBA {
	kernel := r.Kernel
	if kernel == nil {
		kernel = draw.CatmullRom
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	kernel.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
