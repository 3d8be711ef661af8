package fluid

import (
	"math"
	"testing"
)

func TestParticleFollowsFlow(t *testing.T) {
	fs := newSolver(t, 12, 12, 0, 0, 0.1)
	for i := range fs.vx {
		fs.vx[i] = 0.1
		fs.vy[i] = -0.05
	}

	p := NewParticle(5, 5)
	p.Advance(fs)

	if p.X() <= 5 {
		t.Errorf("expected particle to move right, got x=%f", p.X())
	}
	if p.Y() >= 5 {
		t.Errorf("expected particle to move up, got y=%f", p.Y())
	}
	vx, vy := p.Velocity()
	if math.Abs(vx-0.1) > 1e-9 || math.Abs(vy+0.05) > 1e-9 {
		t.Errorf("unexpected sampled velocity {%f, %f}", vx, vy)
	}
	if p.Age() != 1 {
		t.Errorf("expected age 1, got %f", p.Age())
	}
}

func TestParticleDiesOutsideGrid(t *testing.T) {
	fs := newSolver(t, 12, 12, 0, 0, 0.1)
	for i := range fs.vx {
		fs.vx[i] = 5
	}
	p := NewParticle(10, 5)
	p.Advance(fs)
	if !p.Dead() {
		t.Fatalf("expected particle to die after leaving the grid, x=%f", p.X())
	}
	x := p.X()
	p.Advance(fs)
	if p.X() != x {
		t.Errorf("dead particles must not move")
	}
}

func TestParticleDiesOfAge(t *testing.T) {
	fs := newSolver(t, 12, 12, 0, 0, 0.1)
	p := NewParticle(5, 5)
	for i := 0; i <= MaxAge; i++ {
		p.Advance(fs)
	}
	if !p.Dead() {
		t.Errorf("expected particle older than %d to be dead", MaxAge)
	}
}

func TestParticleSystemRecyclesDeadParticles(t *testing.T) {
	fs := newSolver(t, 12, 12, 0, 0, 0.1)
	ps := NewParticleSystem(2)

	if !ps.Spawn(1, 1) || !ps.Spawn(11, 5) {
		t.Fatal("expected free slots")
	}
	if ps.Spawn(3, 3) {
		t.Fatal("expected a full pool to refuse new particles")
	}

	for i := range fs.vx {
		fs.vx[i] = 20
	}
	ps.Advance(fs)
	if n := len(ps.Alive()); n != 0 {
		t.Fatalf("expected every particle to leave the grid, %d alive", n)
	}
	if !ps.Spawn(3, 3) {
		t.Fatal("expected a dead particle to be recycled")
	}
	alive := ps.Alive()
	if len(alive) != 1 || alive[0].X() != 3 || alive[0].Age() != 0 {
		t.Errorf("unexpected recycled particle state")
	}
}

func TestSampleVelocityInterpolates(t *testing.T) {
	fs := newSolver(t, 4, 4, 0, 0, 0.1)
	fs.vx[fs.idx(1, 1)] = 1
	fs.vx[fs.idx(2, 1)] = 3

	vx, _ := fs.SampleVelocity(1.5, 1)
	if vx != 2 {
		t.Errorf("expected interpolated vx 2, got %f", vx)
	}
	vx, _ = fs.SampleVelocity(-3, 1)
	if vx != fs.vx[fs.idx(0, 1)] {
		t.Errorf("expected sample to clamp to the left edge")
	}
	// the far corner has no right/bottom neighbour
	fs.vy[fs.idx(3, 3)] = 7
	if _, vy := fs.SampleVelocity(10, 10); vy != 7 {
		t.Errorf("expected corner sample 7, got %f", vy)
	}
}

func TestApplyVorticityAddsSwirl(t *testing.T) {
	fs := newSolver(t, 16, 16, 0, 0, 0.1)
	c := 8
	for j := c - 2; j <= c+2; j++ {
		for i := c - 2; i <= c+2; i++ {
			fs.vx[fs.idx(i, j)] = -float64(j - c)
			fs.vy[fs.idx(i, j)] = float64(i - c)
		}
	}
	before := append(cell(nil), fs.vx...)
	fs.ApplyVorticity(2)

	changed := false
	for i := range before {
		if fs.vx[i] != before[i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Fatal("vorticity confinement did not modify the velocity field")
	}
	for i := range fs.vxOld {
		if fs.vxOld[i] != 0 || fs.vyOld[i] != 0 {
			t.Fatalf("force buffers not cleared at %d", i)
		}
	}
}

func TestApplyVorticityKeepsCurlFreeFlowAfterStep(t *testing.T) {
	fs := newSolver(t, 16, 16, 0, 0, 0.1)
	fs.AddVelocity(3, 3, 1, 0)
	fs.Step()

	leftover := 0
	for j := 2; j < fs.height-2; j++ {
		for i := 2; i < fs.width-2; i++ {
			if fs.vxOld[fs.idx(i, j)] != 0 || fs.vyOld[fs.idx(i, j)] != 0 {
				leftover++
			}
		}
	}
	if leftover == 0 {
		t.Fatal("expected the step to leave velocity in the previous buffers")
	}

	for i := range fs.vx {
		fs.vx[i] = 0.3
		fs.vy[i] = 0
	}
	fs.ApplyVorticity(1)

	for j := 1; j < fs.height-1; j++ {
		for i := 1; i < fs.width-1; i++ {
			vx, _ := fs.VelocityX(i, j)
			vy, _ := fs.VelocityY(i, j)
			if vx != 0.3 || vy != 0 {
				t.Fatalf("uniform flow changed at (%d,%d): {%f, %f}", i, j, vx, vy)
			}
		}
	}
}

func TestApplyBuoyancyLiftsDenseCells(t *testing.T) {
	fs := newSolver(t, 10, 10, 0, 0, 0.1)
	fs.AddDensity(5, 5, 10)
	fs.ApplyBuoyancy(0, 1)

	vy, _ := fs.VelocityY(5, 5)
	if vy >= 0 {
		t.Errorf("expected dense cell to rise, got vy=%f", vy)
	}
	vy, _ = fs.VelocityY(2, 2)
	if vy <= 0 {
		t.Errorf("expected light cell to sink, got vy=%f", vy)
	}
}

func BenchmarkStep(b *testing.B) {
	fs, err := New(100, 100, 0.0001, 0.0000001, 0.2)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < b.N; i++ {
		fs.AddDensity(50, 50, 5)
		fs.AddVelocity(50, 50, 0.5, 0.2)
		fs.ApplyDecay(0.999, 0.99)
		fs.Step()
	}
}
