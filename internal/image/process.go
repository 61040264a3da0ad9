package image

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"regexp"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers"
	"golang.org/x/image/draw"
)

// SVGRenderSize is the edge length SVG sources are rasterized at, the
// largest size an ICO entry can hold.
const SVGRenderSize = 256

// RasterizeSVG converts SVG bytes to a size×size raster with a transparent
// background. Non-square drawings are centered.
// Uses tdewolff/canvas for high-quality SVG rendering.
func RasterizeSVG(svgBytes []byte, size int) (image.Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid SVG target size %d", size)
	}

	// Preprocess SVG to fix common issues
	svgBytes = preprocessSVG(svgBytes)

	c, err := canvas.ParseSVG(bytes.NewReader(svgBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}

	svgW, svgH := c.Size()
	if svgW <= 0 || svgH <= 0 {
		return nil, fmt.Errorf("invalid SVG dimensions: %v x %v", svgW, svgH)
	}

	// canvas uses mm internally, 1 inch = 25.4 mm. Render so the longer
	// edge lands on size pixels.
	longest := svgW
	if svgH > longest {
		longest = svgH
	}
	dpi := float64(size) / (longest / 25.4)
	if dpi < 72 {
		dpi = 72
	}
	if dpi > 1200 {
		dpi = 1200
	}

	var buf bytes.Buffer
	if err := c.Write(&buf, renderers.PNG(canvas.DPI(dpi))); err != nil {
		return nil, fmt.Errorf("failed to render SVG to PNG: %w", err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("SVG rendered to empty buffer")
	}

	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered PNG: %w", err)
	}

	result := Resampler{}.Resize(SquareCanvas(img), size, size)
	if IsNearlyBlank(result) {
		return nil, fmt.Errorf("SVG rendered as blank image")
	}
	return result, nil
}

// preprocessSVG fixes common SVG issues that cause rendering problems.
func preprocessSVG(data []byte) []byte {
	s := string(data)

	// Ensure SVG has xmlns
	if !strings.Contains(s, "xmlns") && strings.Contains(s, "<svg") {
		s = strings.Replace(s, "<svg", `<svg xmlns="http://www.w3.org/2000/svg"`, 1)
	}

	// Handle currentColor - replace with black as fallback
	s = strings.ReplaceAll(s, "currentColor", "#000000")

	s = flattenGradients(s)

	return []byte(s)
}

var (
	gradientRe  = regexp.MustCompile(`(?s)<(?:linear|radial)Gradient\b([^>]*)>(.*?)</(?:linear|radial)Gradient>`)
	idAttrRe    = regexp.MustCompile(`\bid\s*=\s*["']([^"']+)["']`)
	stopColorRe = regexp.MustCompile(`stop-color\s*[:=]\s*["']?\s*(#[0-9a-fA-F]{3,8}|rgba?\([^)]*\)|[a-zA-Z]+)`)
	paintURLRe  = regexp.MustCompile(`url\(\s*["']?#([^"')\s]+)["']?\s*\)`)
)

// flattenGradients replaces paint references to linear and radial gradients
// with the gradient's first stop color; the rasterizer leaves gradient
// fills empty. References it cannot resolve are left alone.
func flattenGradients(s string) string {
	colors := make(map[string]string)
	for _, m := range gradientRe.FindAllStringSubmatch(s, -1) {
		id := idAttrRe.FindStringSubmatch(m[1])
		stop := stopColorRe.FindStringSubmatch(m[2])
		if id == nil || stop == nil {
			continue
		}
		colors[id[1]] = stop[1]
	}
	if len(colors) == 0 {
		return s
	}
	return paintURLRe.ReplaceAllStringFunc(s, func(ref string) string {
		if c, ok := colors[paintURLRe.FindStringSubmatch(ref)[1]]; ok {
			return c
		}
		return ref
	})
}

// ToNRGBA returns img as a non-premultiplied RGBA buffer with origin (0,0).
// An *image.NRGBA already anchored at the origin is returned as is.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// SquareCanvas centers img on a transparent square whose edge is the longer
// side of img. Square inputs are only normalized to NRGBA.
func SquareCanvas(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return ToNRGBA(img)
	}

	side := max(w, h)
	dst := image.NewNRGBA(image.Rect(0, 0, side, side))
	at := image.Pt((side-w)/2, (side-h)/2)
	draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(b.Size())}, img, b.Min, draw.Src)
	return dst
}

// IsNearlyBlank checks if an image is mostly transparent.
func IsNearlyBlank(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stepX := max(w/16, 1)
	stepY := max(h/16, 1)

	nonTransparent := 0
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			_, _, _, a := img.At(x, y).RGBA()
			if a > 0x0100 {
				nonTransparent++
				if nonTransparent > 8 {
					return false
				}
			}
		}
	}
	return true
}
