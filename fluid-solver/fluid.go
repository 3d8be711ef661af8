package fluid

import (
	"errors"
	"fmt"
	"math"
)

// Iterations is the default number of Gauss-Seidel relaxation sweeps
// used by the diffusion and the pressure solver.
const Iterations = 20

var (
	// ErrInvalidParameter is returned when a solver can't be built from the provided values.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrIndexOutOfRange is returned by the read accessors for coordinates outside the grid.
	ErrIndexOutOfRange = errors.New("index out of range")
)

type cell []float64

// Solver is a stable fluids solver working on a fixed size grid.
// The outer ring of cells is the boundary, the rest is the simulated interior.
// A Solver is not safe for concurrent use.
type Solver struct {
	width      int
	height     int
	dt         float64
	diffusion  float64
	viscosity  float64
	iterations int
	numOfCells int

	vx cell
	vy cell
	d  cell

	vxOld cell
	vyOld cell
	dOld  cell

	// scratch buffers of the pressure solver
	p   cell
	div cell

	curlData cell
}

// BoundaryType tells setBoundary which component of the field is normal to a wall.
type BoundaryType int

const (
	BoundaryNone BoundaryType = iota
	BoundaryHorizontal
	BoundaryVertical
)

// New allocates a zero filled solver of width x height cells.
func New(width, height int, diffusion, viscosity, dt float64) (*Solver, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: grid size must be positive, got %dx%d", ErrInvalidParameter, width, height)
	}
	params := []struct {
		name string
		val  float64
	}{
		{"diffusion", diffusion},
		{"viscosity", viscosity},
		{"time step", dt},
	}
	for _, p := range params {
		if math.IsNaN(p.val) || math.IsInf(p.val, 0) {
			return nil, fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidParameter, p.name, p.val)
		}
		if p.val < 0 {
			return nil, fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalidParameter, p.name, p.val)
		}
	}

	fs := &Solver{
		width:      width,
		height:     height,
		dt:         dt,
		diffusion:  diffusion,
		viscosity:  viscosity,
		iterations: Iterations,
	}
	fs.numOfCells = width * height
	fs.vx = make(cell, fs.numOfCells)
	fs.vy = make(cell, fs.numOfCells)
	fs.d = make(cell, fs.numOfCells)

	fs.vxOld = make(cell, fs.numOfCells)
	fs.vyOld = make(cell, fs.numOfCells)
	fs.dOld = make(cell, fs.numOfCells)

	fs.p = make(cell, fs.numOfCells)
	fs.div = make(cell, fs.numOfCells)
	fs.curlData = make(cell, fs.numOfCells)

	return fs, nil
}

func (fs *Solver) idx(i, j int) int {
	return i + fs.width*j
}

func (fs *Solver) inside(x, y int) bool {
	return x >= 0 && x < fs.width && y >= 0 && y < fs.height
}

// Size returns the grid dimensions.
func (fs *Solver) Size() (int, int) {
	return fs.width, fs.height
}

// SetIterations changes the number of relaxation sweeps. Values below one are ignored.
func (fs *Solver) SetIterations(n int) {
	if n < 1 {
		return
	}
	fs.iterations = n
}

// AddDensity adds amount to the density of the cell at {x, y}.
// Coordinates outside of the grid are ignored.
func (fs *Solver) AddDensity(x, y int, amount float64) {
	if !fs.inside(x, y) {
		return
	}
	fs.d[fs.idx(x, y)] += amount
}

// AddVelocity adds {dx, dy} to the velocity of the cell at {x, y}.
// Coordinates outside of the grid are ignored.
func (fs *Solver) AddVelocity(x, y int, dx, dy float64) {
	if !fs.inside(x, y) {
		return
	}
	i := fs.idx(x, y)
	fs.vx[i] += dx
	fs.vy[i] += dy
}

// ApplyDecay scales every density cell by densityDecay and every velocity component by velocityDecay.
func (fs *Solver) ApplyDecay(densityDecay, velocityDecay float64) {
	for i := 0; i < fs.numOfCells; i++ {
		fs.d[i] *= densityDecay
		fs.vx[i] *= velocityDecay
		fs.vy[i] *= velocityDecay
	}
}

// VelocityX returns the horizontal velocity component of the cell at {x, y}.
func (fs *Solver) VelocityX(x, y int) (float64, error) {
	if !fs.inside(x, y) {
		return 0, fs.rangeError(x, y)
	}
	return fs.vx[fs.idx(x, y)], nil
}

// VelocityY returns the vertical velocity component of the cell at {x, y}.
func (fs *Solver) VelocityY(x, y int) (float64, error) {
	if !fs.inside(x, y) {
		return 0, fs.rangeError(x, y)
	}
	return fs.vy[fs.idx(x, y)], nil
}

// Density returns the density of the cell at {x, y}.
func (fs *Solver) Density(x, y int) (float64, error) {
	if !fs.inside(x, y) {
		return 0, fs.rangeError(x, y)
	}
	return fs.d[fs.idx(x, y)], nil
}

func (fs *Solver) rangeError(x, y int) error {
	return fmt.Errorf("%w: {%d, %d} outside of %dx%d grid", ErrIndexOutOfRange, x, y, fs.width, fs.height)
}

// TotalDensity sums the density over the whole grid.
func (fs *Solver) TotalDensity() float64 {
	var sum float64
	for _, v := range fs.d {
		sum += v
	}
	return sum
}

// Reset clears every field.
func (fs *Solver) Reset() {
	for _, c := range []cell{fs.vx, fs.vy, fs.d, fs.vxOld, fs.vyOld, fs.dOld, fs.p, fs.div, fs.curlData} {
		for i := range c {
			c[i] = 0
		}
	}
}

// Step advances the simulation by one time step.
func (fs *Solver) Step() {
	fs.velocityStep()
	fs.densityStep()
}

func (fs *Solver) velocityStep() {
	fs.swapVx()
	fs.swapVy()
	fs.diffuse(BoundaryHorizontal, fs.vx, fs.vxOld, fs.viscosity)
	fs.diffuse(BoundaryVertical, fs.vy, fs.vyOld, fs.viscosity)

	fs.project(fs.vx, fs.vy)

	fs.swapVx()
	fs.swapVy()
	fs.advect(BoundaryHorizontal, fs.vx, fs.vxOld, fs.vxOld, fs.vyOld)
	fs.advect(BoundaryVertical, fs.vy, fs.vyOld, fs.vxOld, fs.vyOld)

	fs.project(fs.vx, fs.vy)
}

func (fs *Solver) densityStep() {
	fs.swapD()
	fs.diffuse(BoundaryNone, fs.d, fs.dOld, fs.diffusion)

	fs.swapD()
	fs.advect(BoundaryNone, fs.d, fs.dOld, fs.vx, fs.vy)
}

func (fs *Solver) swapVx() {
	fs.vx, fs.vxOld = fs.vxOld, fs.vx
}

func (fs *Solver) swapVy() {
	fs.vy, fs.vyOld = fs.vyOld, fs.vy
}

func (fs *Solver) swapD() {
	fs.d, fs.dOld = fs.dOld, fs.d
}

func (fs *Solver) diffuse(bound BoundaryType, x, x0 cell, rate float64) {
	a := fs.dt * rate * float64(fs.width*fs.height)
	fs.linearSolve(bound, x, x0, a, 1.0+4.0*a)
}

func (fs *Solver) linearSolve(bound BoundaryType, x, x0 cell, a, c float64) {
	invC := 1.0 / c

	for k := 0; k < fs.iterations; k++ {
		for j := 1; j < fs.height-1; j++ {
			for i := 1; i < fs.width-1; i++ {
				x[fs.idx(i, j)] = (x0[fs.idx(i, j)] + a*(x[fs.idx(i-1, j)]+x[fs.idx(i+1, j)]+x[fs.idx(i, j-1)]+x[fs.idx(i, j+1)])) * invC
			}
		}
		fs.setBoundary(bound, x)
	}
}

func (fs *Solver) project(vx, vy cell) {
	n := float64(fs.width)
	p, div := fs.p, fs.div

	for j := 1; j < fs.height-1; j++ {
		for i := 1; i < fs.width-1; i++ {
			div[fs.idx(i, j)] = -0.5 * (vx[fs.idx(i+1, j)] - vx[fs.idx(i-1, j)] + vy[fs.idx(i, j+1)] - vy[fs.idx(i, j-1)]) / n
			p[fs.idx(i, j)] = 0
		}
	}
	fs.setBoundary(BoundaryNone, div)
	fs.setBoundary(BoundaryNone, p)

	// Solve the Poisson equation
	fs.linearSolve(BoundaryNone, p, div, 1, 4)

	// Subtract the pressure gradient to get a mass conserving velocity field.
	for j := 1; j < fs.height-1; j++ {
		for i := 1; i < fs.width-1; i++ {
			vx[fs.idx(i, j)] -= 0.5 * (p[fs.idx(i+1, j)] - p[fs.idx(i-1, j)]) * n
			vy[fs.idx(i, j)] -= 0.5 * (p[fs.idx(i, j+1)] - p[fs.idx(i, j-1)]) * n
		}
	}
	fs.setBoundary(BoundaryHorizontal, vx)
	fs.setBoundary(BoundaryVertical, vy)
}

func (fs *Solver) advect(bound BoundaryType, d, d0, vx, vy cell) {
	var (
		i0, j0, i1, j1 int
		x, y           float64
		s0, t0, s1, t1 float64
	)
	dt0 := fs.dt * float64(fs.width-2)
	maxX := float64(fs.width) - 1.5
	maxY := float64(fs.height) - 1.5

	for j := 1; j < fs.height-1; j++ {
		for i := 1; i < fs.width-1; i++ {
			x = float64(i) - dt0*vx[fs.idx(i, j)]
			y = float64(j) - dt0*vy[fs.idx(i, j)]

			x = math.Max(0.5, math.Min(x, maxX))
			y = math.Max(0.5, math.Min(y, maxY))

			i0 = int(x)
			i1 = i0 + 1
			j0 = int(y)
			j1 = j0 + 1

			s1 = x - float64(i0)
			s0 = 1 - s1
			t1 = y - float64(j0)
			t0 = 1 - t1

			d[fs.idx(i, j)] = s0*(t0*d0[fs.idx(i0, j0)]+t1*d0[fs.idx(i0, j1)]) +
				s1*(t0*d0[fs.idx(i1, j0)]+t1*d0[fs.idx(i1, j1)])
		}
	}
	fs.setBoundary(bound, d)
}

func (fs *Solver) setBoundary(bound BoundaryType, x cell) {
	w, h := fs.width, fs.height
	if w < 3 || h < 3 {
		return
	}

	for j := 1; j < h-1; j++ {
		if bound == BoundaryHorizontal {
			x[fs.idx(0, j)] = -x[fs.idx(1, j)]
			x[fs.idx(w-1, j)] = -x[fs.idx(w-2, j)]
		} else {
			x[fs.idx(0, j)] = x[fs.idx(1, j)]
			x[fs.idx(w-1, j)] = x[fs.idx(w-2, j)]
		}
	}
	for i := 1; i < w-1; i++ {
		if bound == BoundaryVertical {
			x[fs.idx(i, 0)] = -x[fs.idx(i, 1)]
			x[fs.idx(i, h-1)] = -x[fs.idx(i, h-2)]
		} else {
			x[fs.idx(i, 0)] = x[fs.idx(i, 1)]
			x[fs.idx(i, h-1)] = x[fs.idx(i, h-2)]
		}
	}

	x[fs.idx(0, 0)] = 0.5 * (x[fs.idx(1, 0)] + x[fs.idx(0, 1)])
	x[fs.idx(0, h-1)] = 0.5 * (x[fs.idx(1, h-1)] + x[fs.idx(0, h-2)])
	x[fs.idx(w-1, 0)] = 0.5 * (x[fs.idx(w-2, 0)] + x[fs.idx(w-1, 1)])
	x[fs.idx(w-1, h-1)] = 0.5 * (x[fs.idx(w-2, h-1)] + x[fs.idx(w-1, h-2)])
}
