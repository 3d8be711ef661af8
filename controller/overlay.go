package controller

import (
	"image"
	"image/draw"

	"github.com/fogleman/gg"
)

const (
	// velocityStride is the distance in cells between two sampled vectors.
	velocityStride = 5
	// velocityLength converts a velocity into a line length in pixels.
	velocityLength = 50
)

// Vector is the velocity of grid cell {X, Y}.
type Vector struct {
	X, Y   int
	VX, VY float64
}

// VelocityField samples the velocity of every velocityStride-th cell,
// skipping the first row and column of samples.
func (c *Controller) VelocityField() []Vector {
	w, h := c.fs.Size()

	var field []Vector
	for i := velocityStride; i < w; i += velocityStride {
		for j := velocityStride; j < h; j += velocityStride {
			vx, err := c.fs.VelocityX(i, j)
			if err != nil {
				continue
			}
			vy, err := c.fs.VelocityY(i, j)
			if err != nil {
				continue
			}
			field = append(field, Vector{X: i, Y: j, VX: vx, VY: vy})
		}
	}
	return field
}

// drawVelocity strokes a half transparent white line per sampled vector.
func (c *Controller) drawVelocity(dst draw.Image) {
	var dc *gg.Context
	rgba, direct := dst.(*image.RGBA)
	if direct {
		dc = gg.NewContextForRGBA(rgba)
	} else {
		dc = gg.NewContextForImage(dst)
	}

	w, h := c.fs.Size()
	b := dst.Bounds()
	cw := float64(b.Dx()) / float64(w)
	ch := float64(b.Dy()) / float64(h)

	dc.SetRGBA(1, 1, 1, 0.5)
	dc.SetLineWidth(1)
	for _, v := range c.VelocityField() {
		x, y := float64(v.X)*cw, float64(v.Y)*ch
		dc.DrawLine(x, y, x+v.VX*velocityLength, y+v.VY*velocityLength)
		dc.Stroke()
	}

	if !direct {
		draw.Draw(dst, b, dc.Image(), image.Point{}, draw.Src)
	}
}
