package main

import (
	"math"
	"math/rand"
)

const (
	particleDrift     = 0.2  // added to vy each tick
	particleFade      = 0.02 // life lost each tick
	maxParticles      = 600
	trailParticleLife = 0.5
)

// Particle is a cosmetic spark. Nothing in scoring or physics reads it.
type Particle struct {
	Pos   Vec2    `msgpack:"p"`
	Vel   Vec2    `msgpack:"v"`
	Life  float64 `msgpack:"l"`
	Size  float64 `msgpack:"s"`
	Color string  `msgpack:"c"`
}

// ParticleEmitter spawns and decays particles into a slice it does not own.
// A nil emitter drops everything.
type ParticleEmitter struct {
	list *[]Particle
	rng  *rand.Rand
}

func NewParticleEmitter(list *[]Particle, rng *rand.Rand) *ParticleEmitter {
	return &ParticleEmitter{list: list, rng: rng}
}

func (e *ParticleEmitter) push(p Particle) {
	if len(*e.list) >= maxParticles {
		return
	}
	*e.list = append(*e.list, p)
}

// Burst sprays count particles outward from pos
func (e *ParticleEmitter) Burst(pos Vec2, color string, count int) {
	if e == nil {
		return
	}
	for i := 0; i < count; i++ {
		angle := e.rng.Float64() * math.Pi * 2
		speed := e.rng.Float64()*10 + 2
		e.push(Particle{
			Pos:   pos,
			Vel:   Vec2{X: math.Cos(angle) * speed, Y: math.Sin(angle) * speed},
			Life:  1.0,
			Size:  e.rng.Float64()*5 + 2,
			Color: color,
		})
	}
}

// Trail leaves a still ghost of a at its current position
func (e *ParticleEmitter) Trail(a *Avatar) {
	if e == nil {
		return
	}
	e.push(Particle{
		Pos:   a.Pos,
		Life:  trailParticleLife,
		Size:  a.Radius,
		Color: "rgba(251, 191, 36, 0.3)",
	})
}

// Decay moves every particle one tick and drops the dead ones
func (e *ParticleEmitter) Decay() {
	if e == nil {
		return
	}
	live := (*e.list)[:0]
	for _, p := range *e.list {
		p.Pos = p.Pos.Add(p.Vel)
		p.Vel.Y += particleDrift
		p.Life -= particleFade
		if p.Life > 0 {
			live = append(live, p)
		}
	}
	*e.list = live
}
