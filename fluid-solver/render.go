package fluid

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// MaxDensity is the density drawn at full color strength.
const MaxDensity = 1.0

// DefaultColor returns the base color used by Render.
func DefaultColor() color.RGBA {
	return color.RGBA{R: 0, G: 0, B: 255, A: 0xff}
}

// Render draws the density field over dst using DefaultColor.
func (fs *Solver) Render(dst draw.Image) {
	c := DefaultColor()
	fs.RenderWithColor(dst, int(c.R), int(c.G), int(c.B), 1.0)
}

// RenderWithColor draws the density field over dst. Every grid cell fills its
// share of the dst bounds with the base color {r, g, b} scaled by the cell
// density times intensity.
func (fs *Solver) RenderWithColor(dst draw.Image, r, g, b int, intensity float64) {
	fs.RenderWithBackground(dst, color.RGBA{A: 0xff}, r, g, b, intensity)
}

// RenderWithBackground is like RenderWithColor but lets bg show through the
// cells in proportion to their missing density.
func (fs *Solver) RenderWithBackground(dst draw.Image, bg color.RGBA, r, g, b int, intensity float64) {
	bounds := dst.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()
	if sw <= 0 || sh <= 0 {
		return
	}

	for j := 0; j < fs.height; j++ {
		y0 := bounds.Min.Y + j*sh/fs.height
		y1 := bounds.Min.Y + (j+1)*sh/fs.height
		for i := 0; i < fs.width; i++ {
			x0 := bounds.Min.X + i*sw/fs.width
			x1 := bounds.Min.X + (i+1)*sw/fs.width
			if x0 == x1 || y0 == y1 {
				continue
			}
			c := ShadeOver(fs.d[fs.idx(i, j)], bg, r, g, b, intensity)
			draw.Draw(dst, image.Rect(x0, y0, x1, y1), &image.Uniform{C: c}, image.Point{}, draw.Src)
		}
	}
}

// Shade maps a density value to an opaque color.
func Shade(density float64, r, g, b int, intensity float64) color.RGBA {
	return ShadeOver(density, color.RGBA{A: 0xff}, r, g, b, intensity)
}

// ShadeOver maps a density value to the base color {r, g, b} composited over bg.
func ShadeOver(density float64, bg color.RGBA, r, g, b int, intensity float64) color.RGBA {
	if density < 0 {
		density = 0
	}
	if density > MaxDensity {
		density = MaxDensity
	}
	f := density * intensity
	if math.IsNaN(f) {
		f = 0
	}
	// a saturated cell hides the background completely
	rest := 1 - math.Max(0, math.Min(f, 1))
	return color.RGBA{
		R: channel(float64(r)*f + float64(bg.R)*rest),
		G: channel(float64(g)*f + float64(bg.G)*rest),
		B: channel(float64(b)*f + float64(bg.B)*rest),
		A: 0xff,
	}
}

func channel(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
