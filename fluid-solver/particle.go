package fluid

// MaxAge is the number of advances a tracer particle lives for.
const MaxAge = 300

// Particle is a massless tracer carried by the velocity field.
type Particle struct {
	x, y   float64
	vx, vy float64
	age    float64
	dead   bool
}

// NewParticle spawns a new particle at grid coordinates {x, y}.
func NewParticle(x, y float64) *Particle {
	return &Particle{x: x, y: y}
}

// X returns the particle horizontal grid position.
func (p *Particle) X() float64 { return p.x }

// Y returns the particle vertical grid position.
func (p *Particle) Y() float64 { return p.y }

// Velocity returns the velocity sampled at the last advance.
func (p *Particle) Velocity() (float64, float64) { return p.vx, p.vy }

// Age returns the number of advances the particle survived.
func (p *Particle) Age() float64 { return p.age }

// Dead reports whether the particle left the grid or got too old.
func (p *Particle) Dead() bool { return p.dead }

// Advance moves the particle along the velocity field of fs.
func (p *Particle) Advance(fs *Solver) {
	if p.dead {
		return
	}
	p.vx, p.vy = fs.SampleVelocity(p.x, p.y)
	scale := fs.dt * float64(fs.width-2)
	p.x += p.vx * scale
	p.y += p.vy * scale
	p.age++

	if p.x < 0 || p.y < 0 || p.x > float64(fs.width-1) || p.y > float64(fs.height-1) || p.age > MaxAge {
		p.dead = true
	}
}

// ParticleSystem is a bounded pool of tracer particles.
type ParticleSystem struct {
	particles []*Particle
	limit     int
}

// NewParticleSystem creates an empty pool holding at most limit particles.
func NewParticleSystem(limit int) *ParticleSystem {
	return &ParticleSystem{limit: limit}
}

// Spawn adds a particle at {x, y}, reusing a dead one when the pool is full.
// It returns false when every slot holds a live particle.
func (ps *ParticleSystem) Spawn(x, y float64) bool {
	if len(ps.particles) < ps.limit {
		ps.particles = append(ps.particles, NewParticle(x, y))
		return true
	}
	for _, p := range ps.particles {
		if p.dead {
			*p = Particle{x: x, y: y}
			return true
		}
	}
	return false
}

// Advance moves every live particle along the velocity field of fs.
func (ps *ParticleSystem) Advance(fs *Solver) {
	for _, p := range ps.particles {
		p.Advance(fs)
	}
}

// Alive returns the live particles.
func (ps *ParticleSystem) Alive() []*Particle {
	alive := make([]*Particle, 0, len(ps.particles))
	for _, p := range ps.particles {
		if !p.dead {
			alive = append(alive, p)
		}
	}
	return alive
}
