package main

// Ability tuning
const (
	SpeedBuffTicks  = 300 // BOLT boost, ~5s at 60Hz
	ShoveRange      = 200.0
	ShoveStunTicks  = 120
	ShoveKnockbackX = 25.0
	ShoveKnockbackY = -10.0
	BlinkOffset     = 40.0
	SnipeSpeed      = 45.0
	HeavyKickMul    = 1.2
)

// ActivationResult reports what a super attempt did
type ActivationResult struct {
	Kind      CharacterKind
	Activated bool
	Distance  float64 // to the opponent, STONE only
}

// tryActivate checks the shared activation precondition and spends the
// meter only when the archetype's own condition holds.
func (m *Match) tryActivate(a, opponent *Avatar, in InputSet) ActivationResult {
	if a.Stunned() || !in.Has(KeySuper) || a.SuperMeter < SuperMeterMax || a.KickTimer > 0 {
		return ActivationResult{Kind: a.Kind}
	}
	res := activateAbility(a.Kind, a, opponent, &m.state.Ball, m.particles)
	if res.Activated {
		a.SuperMeter = 0
	}
	return res
}

// activateAbility applies the archetype's special move. It is the only
// place the four behaviours live.
func activateAbility(kind CharacterKind, self, opponent *Avatar, ball *Ball, fx *ParticleEmitter) ActivationResult {
	res := ActivationResult{Kind: kind}

	switch kind {
	case CharBolt:
		self.SpeedBuff = SpeedBuffTicks
		fx.Burst(self.Pos, Characters[CharBolt].Color, 20)
		res.Activated = true

	case CharStone:
		res.Distance = self.Pos.Dist(opponent.Pos)
		if res.Distance >= ShoveRange {
			return res
		}
		opponent.Stun = ShoveStunTicks
		opponent.Vel.X = self.facingSign() * ShoveKnockbackX
		opponent.Vel.Y = ShoveKnockbackY
		opponent.Grounded = false
		fx.Burst(opponent.Pos, "#666666", 30)
		res.Activated = true

	case CharShadow:
		dir := 1.0
		if self.TargetGoalX() <= ball.Pos.X {
			dir = -1
		}
		self.Pos.X = ball.Pos.X - dir*BlinkOffset
		self.Pos.Y = Clamp(ball.Pos.Y, self.Radius, FloorY-self.Radius)
		self.Vel = Vec2{}
		self.FacingRight = dir > 0
		fx.Burst(self.Pos, "#141414", 20)
		res.Activated = true

	case CharBlaze:
		self.AbilityActive = true
		res.Activated = true
	}
	return res
}
