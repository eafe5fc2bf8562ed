package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TickRate       = 60 // physics ticks per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = 1 // host sends a snapshot every N ticks
)

// SessionMode selects who drives avatar 2 and whether state crosses the network
type SessionMode int

const (
	ModeLocal      SessionMode = 0 // two humans on one input collaborator
	ModePvE        SessionMode = 1 // AI drives avatar 2
	ModeOnlineHost SessionMode = 2
	ModeOnlineJoin SessionMode = 3
)

func (m SessionMode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModePvE:
		return "pve"
	case ModeOnlineHost:
		return "host"
	case ModeOnlineJoin:
		return "join"
	}
	return fmt.Sprintf("SessionMode(%d)", int(m))
}

// SessionState is the outer lifecycle around a match
type SessionState int

const (
	StateIdle         SessionState = 0
	StateRunning      SessionState = 1
	StateEnded        SessionState = 2
	StateDisconnected SessionState = 3
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

var (
	ErrNoChannel      = errors.New("online mode needs a channel")
	ErrBadCharacter   = errors.New("unknown character")
	ErrSessionRunning = errors.New("session already running")
)

// SessionConfig holds the tick loop tuning
type SessionConfig struct {
	TickRate       int
	BroadcastEvery int
	Particles      bool
}

// DefaultSessionConfig returns the stock 60 Hz settings
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{TickRate: TickRate, BroadcastEvery: BroadcastEvery, Particles: true}
}

// Session owns one match from kick-off to exit. Tick must be called from a
// single goroutine; Snapshot and the held-key sets are safe from any.
type Session struct {
	ID string

	mu       sync.Mutex
	cfg      SessionConfig
	mode     SessionMode
	state    SessionState
	match    *Match
	host     *HostSync
	joiner   *JoinerSync
	rng      *rand.Rand
	observer MatchObserver
	pilot    *AIController

	// P1Keys is the local player; P2Keys is the second local player in ModeLocal
	P1Keys HeldKeys
	P2Keys HeldKeys
}

// NewSession creates an idle session. rng seeds the AI and particles.
func NewSession(cfg SessionConfig, rng *rand.Rand) *Session {
	if cfg.TickRate <= 0 {
		cfg.TickRate = TickRate
	}
	if cfg.BroadcastEvery <= 0 {
		cfg.BroadcastEvery = BroadcastEvery
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Session{
		ID:       uuid.NewString(),
		cfg:      cfg,
		rng:      rng,
		observer: nopObserver{},
	}
}

// AttachHost binds the host side of an open channel
func (s *Session) AttachHost(h *HostSync) { s.host = h }

// AttachJoiner binds the joiner side of an open channel
func (s *Session) AttachJoiner(j *JoinerSync) { s.joiner = j }

// SetObserver installs a gameplay event observer for matches started later
func (s *Session) SetObserver(o MatchObserver) {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
}

// SetAutopilot lets the AI drive the local player (avatar 1, or avatar 2
// when joining)
func (s *Session) SetAutopilot(ai *AIController) { s.pilot = ai }

// StartMatch sets up a fresh match. A joiner builds no match of its own;
// its state arrives from the host.
func (s *Session) StartMatch(k1, k2 CharacterKind, mode SessionMode) error {
	if !k1.Valid() || !k2.Valid() {
		return fmt.Errorf("%w: %d/%d", ErrBadCharacter, k1, k2)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return ErrSessionRunning
	}

	switch mode {
	case ModeOnlineHost:
		if s.host == nil {
			return ErrNoChannel
		}
	case ModeOnlineJoin:
		if s.joiner == nil {
			return ErrNoChannel
		}
	}

	s.mode = mode
	s.match = nil
	s.P1Keys.Set(0)
	s.P2Keys.Set(0)

	if mode != ModeOnlineJoin {
		m := NewMatch(k1, k2, s.rng)
		m.SetObserver(s.observer)
		if !s.cfg.Particles {
			m.DisableParticles()
		}
		if mode == ModePvE {
			m.SetAI(2, NewAIController(s.rng))
		}
		if s.pilot != nil {
			m.SetAI(1, s.pilot)
		}
		s.match = m
	}

	if mode == ModeOnlineHost {
		if err := s.host.SendStart(k1, k2); err != nil {
			s.state = StateDisconnected
			return err
		}
	}

	s.state = StateRunning
	log.Printf("session %s: %s match started, %s vs %s", s.ID[:8], mode, k1, k2)
	return nil
}

// Tick advances one fixed step
func (s *Session) Tick(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}

	if s.mode == ModeOnlineJoin {
		s.tickJoiner()
		return
	}

	in1 := s.P1Keys.Snapshot()
	var in2 InputSet
	switch s.mode {
	case ModeLocal:
		in2 = s.P2Keys.Snapshot()
	case ModeOnlineHost:
		if err := s.host.Poll(); err != nil {
			s.disconnect(err)
			return
		}
		in2 = s.host.RemoteInput()
	}

	s.match.Step(dt, in1, in2)
	st := s.match.State()

	if s.mode == ModeOnlineHost {
		ended := st.Phase() == PhaseEnded
		if ended || s.match.Tick()%uint64(s.cfg.BroadcastEvery) == 0 {
			if err := s.host.Broadcast(st); err != nil {
				s.disconnect(err)
				return
			}
		}
	}

	if st.Phase() == PhaseEnded {
		s.finish(st.Clone())
	}
}

func (s *Session) tickJoiner() {
	if err := s.joiner.Poll(); err != nil {
		s.disconnect(err)
		return
	}
	if s.pilot != nil && s.joiner.Synced() {
		st := s.joiner.State()
		s.P1Keys.Set(s.pilot.Decide(&st.P2, &st.Ball))
	}
	if err := s.joiner.SendInput(s.P1Keys.Snapshot()); err != nil {
		s.disconnect(err)
		return
	}
	if s.joiner.Synced() && s.joiner.HUD().GameOver {
		s.finish(s.joiner.State())
	}
}

func (s *Session) finish(final MatchState) {
	s.state = StateEnded
	log.Printf("session %s: match over %d-%d", s.ID[:8], final.P1.Score, final.P2.Score)
}

func (s *Session) disconnect(err error) {
	s.state = StateDisconnected
	log.Printf("session %s: connection lost: %v", s.ID[:8], err)
}

// Snapshot returns a deep copy of the state to render
func (s *Session) Snapshot() MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.mode == ModeOnlineJoin && s.joiner != nil:
		return s.joiner.State()
	case s.match != nil:
		return s.match.State().Clone()
	}
	return MatchState{}
}

// HUD returns display fields for the current snapshot
func (s *Session) HUD() HUD {
	st := s.Snapshot()
	return DeriveHUD(&st)
}

// Ticks returns how many simulation steps the local match has run
func (s *Session) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil {
		return 0
	}
	return s.match.Tick()
}

// State returns the session lifecycle state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the mode of the current or last match
func (s *Session) Mode() SessionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// EndMatch stops the match on an external exit. The host pushes one last
// snapshot so the joiner sees the final score.
func (s *Session) EndMatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	if s.match != nil {
		s.match.End()
		if s.mode == ModeOnlineHost {
			s.host.Broadcast(s.match.State())
		}
	}
	s.state = StateEnded
}

// Run ticks the session at the configured rate until the match ends,
// the connection drops or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRate)
	dt := 1.0 / float64(s.cfg.TickRate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(dt)
			switch s.State() {
			case StateEnded, StateIdle:
				return nil
			case StateDisconnected:
				return ErrChannelClosed
			}
		case <-ctx.Done():
			s.EndMatch()
			return ctx.Err()
		}
	}
}
