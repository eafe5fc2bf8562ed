package main

import (
	"math"
	"math/rand"
)

const (
	AILookAhead      = 5.0  // ticks of ball travel to predict
	AIStandOff       = 45.0 // preferred gap behind the ball
	AIBehindBias     = 1.5  // stand-off multiplier when the ball is behind
	AIDeadband       = 15.0
	AIJumpAbove      = 50.0 // ball this far above triggers a jump
	AIHopMin         = 20.0
	AIHopMax         = 100.0
	AIJumpReachX     = 60.0
	AIHopChance      = 0.1
	AIKickExtraReach = 35.0
	AIKickChance     = 0.2
	AIFaceRange      = 150.0 // closer than this the AI turns to the ball

	aiStoneRange  = 200.0
	aiShadowGap   = 300.0
	aiBoltGap     = 250.0
	aiBlazeRange  = 100.0
)

// AIController is the single-player opponent. It produces held inputs like
// a human would and never touches state directly.
type AIController struct {
	rng        *rand.Rand
	KickChance float64
	HopChance  float64
}

// NewAIController creates a controller drawing its randomness from rng
func NewAIController(rng *rand.Rand) *AIController {
	return &AIController{
		rng:        rng,
		KickChance: AIKickChance,
		HopChance:  AIHopChance,
	}
}

// Facing is a turn the AI asks for on top of its held inputs. Held
// keys can only face the way the avatar runs.
type Facing int8

const (
	FaceKeep Facing = iota
	FaceLeft
	FaceRight
)

// Decide returns the inputs self should hold this tick. It is for callers
// that can only forward keys, so it only kicks the way self already faces.
func (c *AIController) Decide(self *Avatar, ball *Ball) InputSet {
	in, _ := c.plan(self, ball, false)
	return in
}

// Steer returns the inputs self should hold this tick and which way it
// should face. Standing still, or running within AIFaceRange, it faces the
// ball; otherwise it faces the way it runs.
func (c *AIController) Steer(self *Avatar, ball *Ball) (InputSet, Facing) {
	return c.plan(self, ball, true)
}

func (c *AIController) plan(self *Avatar, ball *Ball, canTurn bool) (InputSet, Facing) {
	var in InputSet
	if self.Stunned() {
		return in, FaceKeep
	}

	dir := self.AttackDir()
	offset := -dir * AIStandOff
	targetX := ball.Pos.X + ball.Vel.X*AILookAhead + offset

	behind := (ball.Pos.X-self.Pos.X)*dir < 0
	if behind {
		targetX = ball.Pos.X + offset*AIBehindBias
	}

	dx := math.Abs(ball.Pos.X - self.Pos.X)
	distToBall := self.Pos.Dist(ball.Pos)

	facingRight := self.FacingRight
	gap := targetX - self.Pos.X
	moving := math.Abs(gap) > AIDeadband
	if moving {
		facingRight = gap > 0
		if facingRight {
			in = in.With(KeyRight)
		} else {
			in = in.With(KeyLeft)
		}
	}

	face := FaceKeep
	if canTurn && (!moving || distToBall < AIFaceRange) && ball.Pos.X != self.Pos.X {
		facingRight = ball.Pos.X > self.Pos.X
		face = FaceLeft
		if facingRight {
			face = FaceRight
		}
	}
	above := self.Pos.Y - ball.Pos.Y

	if self.Grounded && dx < AIJumpReachX {
		switch {
		case above > AIJumpAbove:
			in = in.With(KeyJump)
		case !behind && above > AIHopMin && above < AIHopMax && c.rng.Float64() < c.HopChance:
			in = in.With(KeyJump)
		}
	}

	if self.KickTimer > 0 {
		return in, face
	}

	if self.SuperMeter >= SuperMeterMax && c.wantsSuper(self, dx, distToBall) {
		return in.With(KeySuper), face
	}

	if distToBall < self.Radius+ball.Radius+AIKickExtraReach {
		facesBall := facingRight == (ball.Pos.X > self.Pos.X)
		if facesBall || distToBall < self.Radius {
			if c.rng.Float64() < c.KickChance {
				in = in.With(KeyKick)
			}
		}
	}
	return in, face
}

// wantsSuper is the per-archetype tactical gate on top of a full meter
func (c *AIController) wantsSuper(self *Avatar, dx, distToBall float64) bool {
	switch self.Kind {
	case CharStone:
		return distToBall < aiStoneRange
	case CharShadow:
		return dx > aiShadowGap
	case CharBolt:
		return dx > aiBoltGap
	case CharBlaze:
		return distToBall < aiBlazeRange
	}
	return false
}
