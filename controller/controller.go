// Package controller holds the caller side policy of a fluid simulation:
// how pointer movement turns into injected density and velocity, and how
// often the solver is decayed and stepped.
package controller

import (
	"image/color"
	"image/draw"
	"math"

	fluid "github.com/esimov/water-fluid/fluid-solver"
)

// frameWrap bounds the frame counter.
const frameWrap = 1000

// Settings configures a Controller.
type Settings struct {
	GridSize  int
	Diffusion float64
	Viscosity float64
	TimeStep  float64

	DensityAmount float64 // density added per pointer event
	VelocityScale float64 // pointer delta to velocity factor
	VelocityClamp float64 // pointer delta is clamped to ±VelocityClamp

	DensityDecay  float64
	VelocityDecay float64
	Vorticity     float64

	FluidColor      color.RGBA
	BackgroundColor color.RGBA
	ColorIntensity  float64
	ShowVelocity    bool // overlay a sample of the velocity field

	FrameSkip int
	Particles int
}

// DefaultSettings returns the settings of the browser front-end.
func DefaultSettings() Settings {
	return Settings{
		GridSize:       100,
		Diffusion:      0.0001,
		Viscosity:      0.0000001,
		TimeStep:       0.2,
		DensityAmount:  5.0,
		VelocityScale:  0.05,
		VelocityClamp:  10,
		DensityDecay:   0.999,
		VelocityDecay:  0.99,
		FluidColor:      color.RGBA{R: 0, G: 100, B: 255, A: 0xff},
		BackgroundColor: color.RGBA{R: 0, G: 0, B: 0, A: 0xff},
		ColorIntensity:  0.5,
	}
}

// Controller drives a single solver. It is not safe for concurrent use.
type Controller struct {
	settings  Settings
	fs        *fluid.Solver
	particles *fluid.ParticleSystem

	frame   int
	pressed bool
	lastX   int
	lastY   int
}

// New creates a controller and its square solver.
func New(s Settings) (*Controller, error) {
	fs, err := fluid.New(s.GridSize, s.GridSize, s.Diffusion, s.Viscosity, s.TimeStep)
	if err != nil {
		return nil, err
	}
	if s.FrameSkip < 0 {
		s.FrameSkip = 0
	}
	return &Controller{
		settings:  s,
		fs:        fs,
		particles: fluid.NewParticleSystem(s.Particles),
	}, nil
}

// Solver returns the underlying solver.
func (c *Controller) Solver() *fluid.Solver { return c.fs }

// Particles returns the tracer particles.
func (c *Controller) Particles() *fluid.ParticleSystem { return c.particles }

// Settings returns the controller settings.
func (c *Controller) Settings() Settings { return c.settings }

// Pressed reports whether a drag is in progress.
func (c *Controller) Pressed() bool { return c.pressed }

// Press starts a drag at surface coordinates {px, py} of a sw x sh surface.
func (c *Controller) Press(px, py, sw, sh int) {
	c.pressed = true
	c.lastX, c.lastY = px, py
	c.Drag(px, py, sw, sh)
}

// Release ends the current drag.
func (c *Controller) Release() {
	c.pressed = false
}

// Drag moves the pointer to surface coordinates {px, py}. While pressed it
// injects density under the pointer and velocity along the pointer movement.
func (c *Controller) Drag(px, py, sw, sh int) {
	if !c.pressed {
		return
	}
	gx, gy, ok := c.cell(px, py, sw, sh)
	if ok {
		dx := clamp(float64(px-c.lastX), c.settings.VelocityClamp)
		dy := clamp(float64(py-c.lastY), c.settings.VelocityClamp)

		c.fs.AddDensity(gx, gy, c.settings.DensityAmount)
		c.fs.AddVelocity(gx, gy, dx*c.settings.VelocityScale, dy*c.settings.VelocityScale)
		c.particles.Spawn(float64(gx)+0.5, float64(gy)+0.5)
	}
	c.lastX, c.lastY = px, py
}

// Splat injects amount of density at grid cell {gx, gy}.
func (c *Controller) Splat(gx, gy int, amount float64) {
	c.fs.AddDensity(gx, gy, amount)
	c.particles.Spawn(float64(gx)+0.5, float64(gy)+0.5)
}

// Reset clears the fluid.
func (c *Controller) Reset() {
	c.fs.Reset()
	c.frame = 0
}

// Tick advances the frame counter and, unless the frame is skipped, decays
// and steps the solver. It reports whether the solver was stepped.
func (c *Controller) Tick() bool {
	active := c.frame%(c.settings.FrameSkip+1) == 0
	c.frame = (c.frame + 1) % frameWrap

	if !active {
		return false
	}
	if c.settings.DensityDecay != 1 || c.settings.VelocityDecay != 1 {
		c.fs.ApplyDecay(c.settings.DensityDecay, c.settings.VelocityDecay)
	}
	if c.settings.Vorticity != 0 {
		c.fs.ApplyVorticity(c.settings.Vorticity)
	}
	c.fs.Step()
	c.particles.Advance(c.fs)
	return true
}

// Render draws the density with the configured colors and, if enabled, the
// velocity overlay.
func (c *Controller) Render(dst draw.Image) {
	col := c.settings.FluidColor
	c.fs.RenderWithBackground(dst, c.settings.BackgroundColor, int(col.R), int(col.G), int(col.B), c.settings.ColorIntensity)
	if c.settings.ShowVelocity {
		c.drawVelocity(dst)
	}
}

// cell maps surface coordinates to a grid cell.
func (c *Controller) cell(px, py, sw, sh int) (int, int, bool) {
	if sw <= 0 || sh <= 0 {
		return 0, 0, false
	}
	w, h := c.fs.Size()
	gx := int(math.Floor(float64(px) / float64(sw) * float64(w)))
	gy := int(math.Floor(float64(py) / float64(sh) * float64(h)))
	if gx < 0 || gx >= w || gy < 0 || gy >= h {
		return 0, 0, false
	}
	return gx, gy, true
}

func clamp(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(v, limit))
}
