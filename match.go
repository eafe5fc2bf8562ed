package main

import (
	"fmt"
	"math/rand"
)

// Match timing
const (
	MatchDuration       = 90.0 // seconds
	GoalCelebrationTime = 120  // ticks
)

// MatchPhase is the derived lifecycle state of a match
type MatchPhase int

const (
	PhasePlaying     MatchPhase = 0
	PhaseCelebration MatchPhase = 1
	PhaseEnded       MatchPhase = 2
)

func (p MatchPhase) String() string {
	switch p {
	case PhasePlaying:
		return "playing"
	case PhaseCelebration:
		return "celebration"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("MatchPhase(%d)", int(p))
}

// MatchState is everything a renderer (or a joiner) needs for one frame
type MatchState struct {
	P1              Avatar     `msgpack:"p1"`
	P2              Avatar     `msgpack:"p2"`
	Ball            Ball       `msgpack:"ball"`
	Particles       []Particle `msgpack:"fx"`
	TimeRemaining   float64    `msgpack:"time"`
	Playing         bool       `msgpack:"playing"`
	LastScorer      int        `msgpack:"last"`
	GoalCelebration int        `msgpack:"celebrate"`
}

// NewMatchState builds the kick-off state for the two archetypes
func NewMatchState(k1, k2 CharacterKind) MatchState {
	return MatchState{
		P1:            *NewAvatar(1, k1),
		P2:            *NewAvatar(2, k2),
		Ball:          NewBall(),
		TimeRemaining: MatchDuration,
		Playing:       true,
	}
}

// Phase returns exactly one of playing, celebration or ended
func (s *MatchState) Phase() MatchPhase {
	switch {
	case !s.Playing:
		return PhaseEnded
	case s.GoalCelebration > 0:
		return PhaseCelebration
	default:
		return PhasePlaying
	}
}

// Winner returns 1 or 2 for the side ahead, 0 on a draw
func (s *MatchState) Winner() int {
	switch {
	case s.P1.Score > s.P2.Score:
		return 1
	case s.P2.Score > s.P1.Score:
		return 2
	}
	return 0
}

// Avatar returns the avatar for side 1 or 2
func (s *MatchState) Avatar(id int) *Avatar {
	if id == 1 {
		return &s.P1
	}
	return &s.P2
}

// Clone returns a deep copy safe to hand to another goroutine
func (s *MatchState) Clone() MatchState {
	c := *s
	c.Particles = append([]Particle(nil), s.Particles...)
	return c
}

// MatchObserver receives gameplay events for logging and stats
type MatchObserver interface {
	Goal(scorer int, s *MatchState)
	Kick(a *Avatar, sniped bool)
	Ability(a *Avatar, res ActivationResult)
	Ended(s *MatchState, winner int)
}

type nopObserver struct{}

func (nopObserver) Goal(int, *MatchState)             {}
func (nopObserver) Kick(*Avatar, bool)                {}
func (nopObserver) Ability(*Avatar, ActivationResult) {}
func (nopObserver) Ended(*MatchState, int)            {}

// Match is the authoritative simulation for one game
type Match struct {
	state     MatchState
	ai        [3]*AIController // indexed by side; nil = input-driven
	rng       *rand.Rand
	particles *ParticleEmitter
	events    MatchObserver
	tick      uint64
}

// NewMatch creates a match at kick-off. rng drives AI and particles.
func NewMatch(k1, k2 CharacterKind, rng *rand.Rand) *Match {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	m := &Match{
		state:  NewMatchState(k1, k2),
		rng:    rng,
		events: nopObserver{},
	}
	m.particles = NewParticleEmitter(&m.state.Particles, rng)
	return m
}

// SetAI hands control of side (1 or 2) to the heuristic controller
func (m *Match) SetAI(side int, ai *AIController) {
	m.ai[side] = ai
}

// SetObserver installs an event observer; nil restores the no-op one
func (m *Match) SetObserver(o MatchObserver) {
	if o == nil {
		o = nopObserver{}
	}
	m.events = o
}

// DisableParticles drops all cosmetic particle state
func (m *Match) DisableParticles() {
	m.particles = nil
	m.state.Particles = nil
}

// State exposes the live state to the owning goroutine
func (m *Match) State() *MatchState { return &m.state }

// Tick returns how many steps have run
func (m *Match) Tick() uint64 { return m.tick }

// Step advances one fixed tick. dt is the real time a tick represents.
func (m *Match) Step(dt float64, in1, in2 InputSet) {
	s := &m.state
	if s.Phase() == PhaseEnded {
		return
	}
	m.tick++

	if s.GoalCelebration > 0 {
		s.GoalCelebration--
		if s.GoalCelebration == 0 {
			m.resetPositions()
		}
		m.particles.Decay()
		return
	}

	s.TimeRemaining -= dt
	if s.TimeRemaining <= 0 {
		s.TimeRemaining = 0
		m.end()
		return
	}

	face1, face2 := FaceKeep, FaceKeep
	if ai := m.ai[1]; ai != nil {
		in1, face1 = ai.Steer(&s.P1, &s.Ball)
	}
	m.steerAvatar(&s.P1, &s.P2, in1, face1)

	if ai := m.ai[2]; ai != nil {
		in2, face2 = ai.Steer(&s.P2, &s.Ball)
	}
	m.steerAvatar(&s.P2, &s.P1, in2, face2)

	if scorer := m.updateBall(); scorer != 0 {
		m.scoreGoal(scorer)
	}

	m.particles.Decay()
}

// scoreGoal credits exactly one side and arms the celebration
func (m *Match) scoreGoal(scorer int) {
	s := &m.state
	s.Avatar(scorer).Score++
	s.LastScorer = scorer
	s.GoalCelebration = GoalCelebrationTime
	m.particles.Burst(s.Ball.Pos, "#5eff45", 50)
	m.events.Goal(scorer, s)
}

// resetPositions restores both avatars and the ball to kick-off. Scores
// are untouched; calling it twice is the same as calling it once.
func (m *Match) resetPositions() {
	m.state.P1.Reset()
	m.state.P2.Reset()
	m.state.Ball.Reset()
}

// End stops the match immediately (external exit or time-out)
func (m *Match) End() {
	if m.state.Phase() == PhaseEnded {
		return
	}
	m.state.GoalCelebration = 0
	m.end()
}

func (m *Match) end() {
	m.state.Playing = false
	m.events.Ended(&m.state, m.state.Winner())
}
