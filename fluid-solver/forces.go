package fluid

import "math"

func (fs *Solver) curl(i, j int) float64 {
	duDy := (fs.vx[fs.idx(i, j+1)] - fs.vx[fs.idx(i, j-1)]) * 0.5
	dvDx := (fs.vy[fs.idx(i+1, j)] - fs.vy[fs.idx(i-1, j)]) * 0.5

	return duDy - dvDx
}

// ApplyVorticity adds a vorticity confinement force of strength epsilon to the
// current velocity field, putting back some of the small scale swirls the
// numerical dissipation removes. It is never called by Step.
func (fs *Solver) ApplyVorticity(epsilon float64) {
	if epsilon == 0 || fs.width < 5 || fs.height < 5 {
		return
	}
	var dx, dy, norm, v float64

	for j := 1; j < fs.height-1; j++ {
		for i := 1; i < fs.width-1; i++ {
			fs.curlData[fs.idx(i, j)] = math.Abs(fs.curl(i, j))
		}
	}

	// The gradient of |curl| needs both neighbours inside the interior.
	// vxOld and vyOld still hold the last step's velocity, every cell is overwritten.
	for j := 2; j < fs.height-2; j++ {
		for i := 2; i < fs.width-2; i++ {
			dx = (fs.curlData[fs.idx(i+1, j)] - fs.curlData[fs.idx(i-1, j)]) * 0.5
			dy = (fs.curlData[fs.idx(i, j+1)] - fs.curlData[fs.idx(i, j-1)]) * 0.5

			norm = math.Sqrt(dx*dx + dy*dy)
			if norm == 0 {
				fs.vxOld[fs.idx(i, j)] = 0
				fs.vyOld[fs.idx(i, j)] = 0
				continue
			}
			dx /= norm
			dy /= norm

			v = fs.curl(i, j)

			fs.vxOld[fs.idx(i, j)] = -dy * v * epsilon
			fs.vyOld[fs.idx(i, j)] = dx * v * epsilon
		}
	}

	for j := 2; j < fs.height-2; j++ {
		for i := 2; i < fs.width-2; i++ {
			k := fs.idx(i, j)
			fs.vx[k] += fs.vxOld[k] * fs.dt
			fs.vy[k] += fs.vyOld[k] * fs.dt
			fs.vxOld[k], fs.vyOld[k] = 0, 0
		}
	}
	fs.setBoundary(BoundaryHorizontal, fs.vx)
	fs.setBoundary(BoundaryVertical, fs.vy)
}

// ApplyBuoyancy pushes dense cells along the vertical axis. Cells denser than the
// grid average are accelerated by -rise per unit of excess density, weight pulls
// every cell by its own density. It is never called by Step.
func (fs *Solver) ApplyBuoyancy(weight, rise float64) {
	if fs.width < 3 || fs.height < 3 {
		return
	}
	var avg float64
	for j := 1; j < fs.height-1; j++ {
		for i := 1; i < fs.width-1; i++ {
			avg += fs.d[fs.idx(i, j)]
		}
	}
	avg /= float64((fs.width - 2) * (fs.height - 2))

	for j := 1; j < fs.height-1; j++ {
		for i := 1; i < fs.width-1; i++ {
			k := fs.idx(i, j)
			fs.vy[k] += (weight*fs.d[k] - rise*(fs.d[k]-avg)) * fs.dt
		}
	}
	fs.setBoundary(BoundaryVertical, fs.vy)
}

// SampleVelocity returns the bilinearly interpolated velocity at the fractional
// grid position {x, y}. Positions outside the grid are clamped to its edge.
func (fs *Solver) SampleVelocity(x, y float64) (float64, float64) {
	x = math.Max(0, math.Min(x, float64(fs.width-1)))
	y = math.Max(0, math.Min(y, float64(fs.height-1)))

	i0, j0 := int(x), int(y)
	i1, j1 := i0+1, j0+1
	if i1 >= fs.width {
		i1 = i0
	}
	if j1 >= fs.height {
		j1 = j0
	}
	s1 := x - float64(i0)
	s0 := 1 - s1
	t1 := y - float64(j0)
	t0 := 1 - t1

	sample := func(c cell) float64 {
		return s0*(t0*c[fs.idx(i0, j0)]+t1*c[fs.idx(i0, j1)]) +
			s1*(t0*c[fs.idx(i1, j0)]+t1*c[fs.idx(i1, j1)])
	}
	return sample(fs.vx), sample(fs.vy)
}
