package main

// Avatar tuning
const (
	SuperMeterMax   = 100.0
	SuperChargeRate = 0.15 // per tick while not stunned
	KickWindow      = 30   // ticks
	KickActiveAfter = 15   // kicking pose while KickTimer > this
	StunDamping     = 0.9
	SpeedBuffMul    = 1.6
	TrailEvery      = 5 // ticks between speed-buff trail particles
)

var (
	SpawnP1   = Vec2{X: 200, Y: FloorY}
	SpawnP2   = Vec2{X: BoardWidth - 200, Y: FloorY}
	SpawnBall = Vec2{X: BoardWidth / 2, Y: 300}
)

// Avatar is one side's circular body
type Avatar struct {
	ID            int           `msgpack:"id"`
	Kind          CharacterKind `msgpack:"kind"`
	Pos           Vec2          `msgpack:"pos"`
	Vel           Vec2          `msgpack:"vel"`
	Radius        float64       `msgpack:"r"`
	Grounded      bool          `msgpack:"gnd"`
	FacingRight   bool          `msgpack:"fr"`
	Score         uint          `msgpack:"sc"`
	SuperMeter    float64       `msgpack:"sm"`
	KickTimer     int           `msgpack:"kt"`
	Stun          int           `msgpack:"st"`
	AbilityActive bool          `msgpack:"aa"`
	SpeedBuff     int           `msgpack:"sb"`
}

// NewAvatar creates the avatar for side id (1 or 2) at its spawn
func NewAvatar(id int, kind CharacterKind) *Avatar {
	a := &Avatar{
		ID:     id,
		Kind:   kind,
		Radius: kind.Def().Radius,
	}
	a.Reset()
	return a
}

// Reset returns the avatar to its spawn. Score and meter survive.
func (a *Avatar) Reset() {
	if a.ID == 1 {
		a.Pos = SpawnP1
		a.FacingRight = true
	} else {
		a.Pos = SpawnP2
		a.FacingRight = false
	}
	a.Vel = Vec2{}
	a.Grounded = false
	a.KickTimer = 0
	a.Stun = 0
	a.AbilityActive = false
	a.SpeedBuff = 0
}

// Kicking reports whether the avatar is in the striking part of its kick window
func (a *Avatar) Kicking() bool {
	return a.KickTimer > KickActiveAfter
}

// Stunned reports whether input is locked out
func (a *Avatar) Stunned() bool {
	return a.Stun > 0
}

// TargetGoalX is the x of the goal line this avatar attacks
func (a *Avatar) TargetGoalX() float64 {
	if a.ID == 1 {
		return BoardWidth
	}
	return 0
}

// AttackDir is +1 when attacking right, -1 when attacking left
func (a *Avatar) AttackDir() float64 {
	if a.ID == 1 {
		return 1
	}
	return -1
}

func (a *Avatar) facingSign() float64 {
	if a.FacingRight {
		return 1
	}
	return -1
}

// chargeMeter adds one tick of passive charge, clamped to the max
func (a *Avatar) chargeMeter() {
	a.SuperMeter = Clamp(a.SuperMeter+SuperChargeRate, 0, SuperMeterMax)
}

// updateAvatar runs one tick of input, abilities and kinematics for a.
// Humans, remote peers and the AI all come through here.
func (m *Match) updateAvatar(a, opponent *Avatar, in InputSet) {
	m.steerAvatar(a, opponent, in, FaceKeep)
}

// steerAvatar is updateAvatar with an explicit turn applied after
// movement, so it wins over the running direction.
func (m *Match) steerAvatar(a, opponent *Avatar, in InputSet, face Facing) {
	if a.Stunned() {
		a.Stun--
		a.Vel.X *= StunDamping
		applyGravity(&a.Vel)
		integrate(a)
		clampToArena(a)
		return
	}

	a.chargeMeter()

	moveSpeed := PlayerSpeed
	if a.SpeedBuff > 0 {
		a.SpeedBuff--
		moveSpeed *= SpeedBuffMul
		if a.SpeedBuff%TrailEvery == 0 {
			m.particles.Trail(a)
		}
	}

	if a.KickTimer > 0 {
		a.KickTimer--
	}

	switch {
	case in.Has(KeyLeft):
		a.Vel.X = -moveSpeed
		a.FacingRight = false
	case in.Has(KeyRight):
		a.Vel.X = moveSpeed
		a.FacingRight = true
	default:
		a.Vel.X = 0
	}
	switch face {
	case FaceLeft:
		a.FacingRight = false
	case FaceRight:
		a.FacingRight = true
	}

	if in.Has(KeyJump) && a.Grounded {
		a.Vel.Y = JumpForce
		a.Grounded = false
	}

	if a.KickTimer == 0 {
		if in.Has(KeySuper) && a.SuperMeter >= SuperMeterMax {
			res := m.tryActivate(a, opponent, in)
			if res.Activated {
				m.events.Ability(a, res)
			}
			a.KickTimer = KickWindow
		} else if in.Has(KeyKick) {
			a.KickTimer = KickWindow
		}
	}

	applyGravity(&a.Vel)
	integrate(a)
	clampToArena(a)
}
