package main

// Arena geometry
const (
	BoardWidth  = 1280.0
	BoardHeight = 720.0
	FloorY      = 620.0
	GoalHeight  = 300.0
	GoalTopY    = BoardHeight - GoalHeight // ball below this line is inside the goal band
)

// Kinematic tuning, in pixels per tick
const (
	Gravity       = 0.5
	BallFriction  = 0.98
	BallBounce    = 0.8 // restitution, < 1
	BounceEpsilon = 1.0 // rebound speeds below this are zeroed
	BallRadius    = 20.0
	BallSpin      = 0.05
	PlayerSpeed   = 6.0
	JumpForce     = -14.0
)

// applyGravity pulls any body down by one tick of gravity
func applyGravity(vel *Vec2) {
	vel.Y += Gravity
}

// integrate advances an avatar by its velocity
func integrate(a *Avatar) {
	a.Pos = a.Pos.Add(a.Vel)
}

// clampToArena keeps an avatar on the floor and between the walls
func clampToArena(a *Avatar) {
	if a.Pos.Y+a.Radius > FloorY {
		a.Pos.Y = FloorY - a.Radius
		a.Vel.Y = 0
		a.Grounded = true
	}
	if a.Pos.X-a.Radius < 0 {
		a.Pos.X = a.Radius
		a.Vel.X = 0
	}
	if a.Pos.X+a.Radius > BoardWidth {
		a.Pos.X = BoardWidth - a.Radius
		a.Vel.X = 0
	}
}
