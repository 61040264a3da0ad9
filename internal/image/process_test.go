package image

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gradientSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64">
  <defs>
    <linearGradient id="grad" x1="0%" y1="0%" x2="100%" y2="100%">
      <stop offset="0%" style="stop-color:#6366f1"/>
      <stop offset="100%" style="stop-color:#8b5cf6"/>
    </linearGradient>
  </defs>
  <rect width="64" height="64" rx="14" fill="url(#grad)"/>
</svg>`

func TestFlattenGradients(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"attribute stop", `<linearGradient id="g"><stop stop-color="#ff0000"/></linearGradient><path fill="url(#g)"/>`, `fill="#ff0000"`},
		{"style stop", `<radialGradient id='r'><stop style="stop-color: rgb(1,2,3)"/></radialGradient><path style="fill:url('#r')"/>`, `fill:rgb(1,2,3)`},
		{"unknown ref kept", `<linearGradient id="g"><stop stop-color="red"/></linearGradient><path fill="url(#other)"/>`, `fill="url(#other)"`},
		{"no gradients", `<path fill="url(#clip)"/>`, `fill="url(#clip)"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, flattenGradients(tt.in), tt.want)
		})
	}
}

func TestRasterizeSVGWithGradient(t *testing.T) {
	img, err := RasterizeSVG([]byte(gradientSVG), 64)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())

	// The fill is flattened to the first stop.
	r, g, b, a := img.At(32, 32).RGBA()
	assert.Greater(t, a, uint32(0xf000))
	assert.InDelta(t, 0x63, int(r>>8), 4)
	assert.InDelta(t, 0x66, int(g>>8), 4)
	assert.InDelta(t, 0xf1, int(b>>8), 4)
}

func TestRasterizeSVGColorful(t *testing.T) {
	// Test with a colorful SVG
	colorfulSVG := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="100" height="100" viewBox="0 0 100 100">
  <rect width="100" height="100" fill="#ff0000"/>
  <circle cx="50" cy="50" r="30" fill="#00ff00"/>
  <rect x="35" y="35" width="30" height="30" fill="#0000ff"/>
</svg>`)

	img, err := RasterizeSVG(colorfulSVG, 64)
	if err != nil {
		t.Fatalf("Failed to rasterize colorful SVG: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 64 || bounds.Dy() != 64 {
		t.Errorf("Expected 64x64, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	if IsNearlyBlank(img) {
		t.Error("Colorful SVG should not be blank")
	}

	// Check for colors
	hasRed := false
	hasGreen := false
	hasBlue := false

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a < 0x8000 {
				continue
			}
			r8, g8, b8 := r>>8, g>>8, b>>8

			if r8 > 200 && g8 < 100 && b8 < 100 {
				hasRed = true
			}
			if r8 < 100 && g8 > 200 && b8 < 100 {
				hasGreen = true
			}
			if r8 < 100 && g8 < 100 && b8 > 200 {
				hasBlue = true
			}
		}
	}

	if !hasRed {
		t.Error("Expected red color in the rendered image")
	}
	if !hasGreen {
		t.Error("Expected green color in the rendered image")
	}
	if !hasBlue {
		t.Error("Expected blue color in the rendered image")
	}
}

func TestRasterizeSVGWithCurrentColor(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="100" height="100" viewBox="0 0 100 100">
  <rect width="100" height="100" fill="white"/>
  <circle cx="50" cy="50" r="40" fill="currentColor"/>
</svg>`)

	img, err := RasterizeSVG(svg, 64)
	if err != nil {
		t.Fatalf("Failed to rasterize SVG with currentColor: %v", err)
	}

	if IsNearlyBlank(img) {
		t.Error("SVG with currentColor should not be blank")
	}
}

func TestIsNearlyBlank(t *testing.T) {
	opaque := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}

	tests := []struct {
		name     string
		img      image.Image
		expected bool
	}{
		{"nil", nil, true},
		{"transparent", image.NewNRGBA(image.Rect(0, 0, 32, 32)), true},
		{"opaque black", opaque, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsNearlyBlank(tt.img)
			if result != tt.expected {
				t.Errorf("IsNearlyBlank = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestRasterizeSVGNonSquareIsCentered(t *testing.T) {
	wide := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100" viewBox="0 0 200 100">
  <rect width="200" height="100" fill="#ff0000"/>
</svg>`)

	img, err := RasterizeSVG(wide, 64)
	if err != nil {
		t.Fatalf("Failed to rasterize wide SVG: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 64 {
		t.Fatalf("Expected 64x64, got %v", img.Bounds())
	}

	_, _, _, top := img.At(32, 2).RGBA()
	_, _, _, mid := img.At(32, 32).RGBA()
	if top != 0 {
		t.Errorf("Expected transparent padding above a wide drawing, alpha=%d", top)
	}
	if mid == 0 {
		t.Error("Expected drawing in the middle band")
	}
}

func TestRasterizeSVGRejectsBadSize(t *testing.T) {
	if _, err := RasterizeSVG([]byte(`<svg/>`), 0); err == nil {
		t.Error("Expected error for zero size")
	}
}
