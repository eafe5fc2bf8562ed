package main

import "math"

// Kick tuning
const (
	KickForce        = 18.0
	KickReach        = 25.0
	KickVelocityMul  = 1.5
	MaxBallSpeed     = 30.0
	GroundKickDamp   = 0.3 // vertical share kept for upward kicks off the ground
	AirKickLift      = 1.0 // subtracted from vy on non-grounded kicks
	degenerateKickSq = 0.1 * 0.1
)

// Ball is the single shared ball
type Ball struct {
	Pos      Vec2    `msgpack:"pos"`
	Vel      Vec2    `msgpack:"vel"`
	Radius   float64 `msgpack:"r"`
	Rotation float64 `msgpack:"rot"`
}

// NewBall returns a ball at rest on the centre spawn
func NewBall() Ball {
	b := Ball{Radius: BallRadius}
	b.Reset()
	return b
}

// Reset puts the ball back on the centre spawn at rest
func (b *Ball) Reset() {
	b.Pos = SpawnBall
	b.Vel = Vec2{}
}

// inGoalBand reports whether a side-wall crossing at height y is a goal
func inGoalBand(y float64) bool {
	return y > GoalTopY
}

// bounce reflects one velocity component with restitution, zeroing
// rebounds too small to matter
func bounce(v float64) float64 {
	v *= -BallBounce
	if math.Abs(v) < BounceEpsilon {
		return 0
	}
	return v
}

// updateBall moves the ball one tick and resolves walls, goals and kicks.
// It returns the scoring side (1 or 2) or 0 when no goal was scored.
func (m *Match) updateBall() int {
	s := &m.state
	b := &s.Ball

	applyGravity(&b.Vel)
	b.Vel.X *= BallFriction
	b.Pos = b.Pos.Add(b.Vel)
	b.Rotation += b.Vel.X * BallSpin

	if b.Pos.Y+b.Radius >= FloorY {
		b.Pos.Y = FloorY - b.Radius
		b.Vel.Y = bounce(b.Vel.Y)
	}
	if b.Pos.Y-b.Radius <= 0 {
		b.Pos.Y = b.Radius
		b.Vel.Y = bounce(b.Vel.Y)
	}

	// Goal test must read y before any x clamping
	if b.Pos.X < 0 {
		if inGoalBand(b.Pos.Y) {
			return 2
		}
		b.Pos.X = b.Radius
		b.Vel.X = bounce(b.Vel.X)
	}
	if b.Pos.X > BoardWidth {
		if inGoalBand(b.Pos.Y) {
			return 1
		}
		b.Pos.X = BoardWidth - b.Radius
		b.Vel.X = bounce(b.Vel.X)
	}

	m.resolveKick(&s.P1, b)
	m.resolveKick(&s.P2, b)
	return 0
}

// resolveKick strikes the ball if p is kicking (or sniper-latched) and in reach
func (m *Match) resolveKick(p *Avatar, b *Ball) bool {
	if !p.Kicking() && !p.AbilityActive {
		return false
	}

	d := b.Pos.Sub(p.Pos)
	dist := d.Len()
	minDist := p.Radius + b.Radius + KickReach
	if dist >= minDist {
		return false
	}

	var n Vec2
	if dist*dist < degenerateKickSq {
		// Centres coincide: strike up and forward
		n = Vec2{X: p.facingSign(), Y: -1}.Scale(1 / math.Sqrt2)
	} else {
		n = d.Scale(1 / dist)
	}
	b.Pos = p.Pos.Add(n.Scale(minDist))

	if p.Kind == CharBlaze && p.AbilityActive {
		p.AbilityActive = false
		goal := Vec2{X: p.TargetGoalX(), Y: BoardHeight - GoalHeight/2}
		g := goal.Sub(b.Pos)
		if gl := g.Len(); gl > 0 {
			b.Vel = g.Scale(SnipeSpeed / gl)
		}
		m.particles.Burst(b.Pos, "#ff2121", 40)
		m.events.Kick(p, true)
		return true
	}

	force := math.Max(math.Max(math.Abs(p.Vel.X)*KickVelocityMul, math.Abs(p.Vel.Y)*KickVelocityMul), KickForce)
	if p.Kind == CharStone {
		force *= HeavyKickMul
	}

	b.Vel.X = n.X * force
	if p.Grounded && n.Y < 0 {
		b.Vel.Y = n.Y * GroundKickDamp * force
	} else {
		b.Vel.Y = n.Y*force - AirKickLift
	}

	if speed := b.Vel.Len(); speed > MaxBallSpeed {
		b.Vel = b.Vel.Scale(MaxBallSpeed / speed)
	}

	m.particles.Burst(b.Pos, "#d4d4d4", 5)
	m.events.Kick(p, false)
	return true
}
