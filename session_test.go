package main

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func newTestSession(seed int64) *Session {
	cfg := DefaultSessionConfig()
	cfg.Particles = false
	return NewSession(cfg, rand.New(rand.NewSource(seed)))
}

func TestStartMatchValidation(t *testing.T) {
	s := newTestSession(1)
	if err := s.StartMatch(CharBolt, 7, ModeLocal); !errors.Is(err, ErrBadCharacter) {
		t.Errorf("expected ErrBadCharacter, got %v", err)
	}
	if err := s.StartMatch(CharBolt, CharStone, ModeOnlineHost); !errors.Is(err, ErrNoChannel) {
		t.Errorf("host without channel: %v", err)
	}
	if err := s.StartMatch(CharBolt, CharStone, ModeOnlineJoin); !errors.Is(err, ErrNoChannel) {
		t.Errorf("joiner without channel: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}

	if err := s.StartMatch(CharBolt, CharStone, ModeLocal); err != nil {
		t.Fatal(err)
	}
	if err := s.StartMatch(CharBolt, CharStone, ModeLocal); !errors.Is(err, ErrSessionRunning) {
		t.Errorf("second start: %v", err)
	}
}

func TestLocalSessionReadsBothKeySets(t *testing.T) {
	s := newTestSession(1)
	if err := s.StartMatch(CharBolt, CharStone, ModeLocal); err != nil {
		t.Fatal(err)
	}

	KeyMapP1.Apply(&s.P1Keys, "d", true)
	KeyMapP2.Apply(&s.P2Keys, "ArrowLeft", true)
	s.Tick(dt)

	snap := s.Snapshot()
	if snap.P1.Vel.X != PlayerSpeed {
		t.Errorf("P1 vx = %v, want %v", snap.P1.Vel.X, PlayerSpeed)
	}
	if snap.P2.Vel.X != -PlayerSpeed {
		t.Errorf("P2 vx = %v, want %v", snap.P2.Vel.X, -PlayerSpeed)
	}
	if s.Ticks() != 1 {
		t.Errorf("ticks = %d", s.Ticks())
	}
}

func TestPvESessionIgnoresSecondKeySet(t *testing.T) {
	s := newTestSession(1)
	if err := s.StartMatch(CharBolt, CharStone, ModePvE); err != nil {
		t.Fatal(err)
	}
	s.P2Keys.Press(KeyRight)
	for i := 0; i < 30; i++ {
		s.Tick(dt)
	}
	// The ball starts to avatar 2's left, so the AI heads that way
	if snap := s.Snapshot(); snap.P2.Pos.X >= SpawnP2.X {
		t.Errorf("AI should move toward the ball, x=%v", snap.P2.Pos.X)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newTestSession(1)
	s.StartMatch(CharBolt, CharStone, ModeLocal)
	snap := s.Snapshot()
	snap.P1.Score = 50
	if s.Snapshot().P1.Score != 0 {
		t.Error("snapshot aliases the live match")
	}
}

func TestEndMatch(t *testing.T) {
	s := newTestSession(1)
	s.StartMatch(CharBolt, CharStone, ModeLocal)
	s.Tick(dt)
	s.EndMatch()

	if s.State() != StateEnded {
		t.Errorf("state = %s, want ended", s.State())
	}
	if s.Snapshot().Playing {
		t.Error("match should be stopped")
	}
	if !s.HUD().GameOver {
		t.Error("HUD should show game over")
	}
	s.EndMatch() // no-op

	if err := s.StartMatch(CharShadow, CharBlaze, ModeLocal); err != nil {
		t.Errorf("restart after end: %v", err)
	}
	if snap := s.Snapshot(); snap.P1.Kind != CharShadow || !snap.Playing {
		t.Errorf("restart state = %+v", snap)
	}
}

// linkedSessions starts a host and a joiner over an in-process pipe
func linkedSessions(t *testing.T) (host, joiner *Session, a, b Channel) {
	t.Helper()
	a, b = NewPipe()
	host, joiner = newTestSession(1), newTestSession(2)
	hs, js := NewHostSync(a), NewJoinerSync(b)

	js.SendHandshake(CharStone, "guest")
	hs.Poll()
	k2, ok := hs.PeerCharacter()
	if !ok {
		t.Fatal("handshake lost")
	}
	host.AttachHost(hs)
	if err := host.StartMatch(CharBlaze, k2, ModeOnlineHost); err != nil {
		t.Fatal(err)
	}
	js.Poll()
	start, ok := js.Started()
	if !ok {
		t.Fatal("start lost")
	}
	joiner.AttachJoiner(js)
	if err := joiner.StartMatch(start.P1Char, start.P2Char, ModeOnlineJoin); err != nil {
		t.Fatal(err)
	}
	return host, joiner, a, b
}

func TestOnlineJoinerDrivesAvatarTwo(t *testing.T) {
	host, joiner, _, _ := linkedSessions(t)

	joiner.P1Keys.Press(KeyLeft)
	joiner.Tick(dt) // forwards the edge
	host.Tick(dt)   // folds it in and broadcasts

	hsnap := host.Snapshot()
	if hsnap.P2.Vel.X != -PlayerSpeed {
		t.Errorf("host P2 vx = %v, want %v", hsnap.P2.Vel.X, -PlayerSpeed)
	}
	if hsnap.P2.Kind != CharStone {
		t.Errorf("host P2 kind = %s", hsnap.P2.Kind)
	}

	joiner.Tick(dt)
	jsnap := joiner.Snapshot()
	if jsnap.P2 != hsnap.P2 || jsnap.Ball != hsnap.Ball {
		t.Error("joiner should mirror the host's state")
	}
	if joiner.Ticks() != 0 {
		t.Error("joiner must not simulate")
	}
}

func TestOnlineMatchEndReachesJoiner(t *testing.T) {
	host, joiner, _, _ := linkedSessions(t)
	host.Tick(dt)
	host.EndMatch()
	joiner.Tick(dt)

	if joiner.State() != StateEnded {
		t.Errorf("joiner state = %s, want ended", joiner.State())
	}
	if !joiner.HUD().GameOver {
		t.Error("joiner HUD should show game over")
	}
}

func TestOnlineDisconnect(t *testing.T) {
	host, joiner, a, _ := linkedSessions(t)
	a.Close()

	host.Tick(dt)
	joiner.Tick(dt)
	if host.State() != StateDisconnected {
		t.Errorf("host state = %s, want disconnected", host.State())
	}
	if joiner.State() != StateDisconnected {
		t.Errorf("joiner state = %s, want disconnected", joiner.State())
	}
}

func TestRunStopsAtFullTime(t *testing.T) {
	cfg := SessionConfig{TickRate: 1000, BroadcastEvery: 1}
	s := NewSession(cfg, rand.New(rand.NewSource(1)))
	s.StartMatch(CharBolt, CharStone, ModeLocal)
	s.match.State().TimeRemaining = 0.05

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != StateEnded {
		t.Errorf("state = %s, want ended", s.State())
	}
}

func TestRunCancelled(t *testing.T) {
	s := newTestSession(1)
	s.StartMatch(CharBolt, CharStone, ModePvE)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.State() != StateEnded {
		t.Errorf("state = %s, want ended", s.State())
	}
	if s.Ticks() == 0 {
		t.Error("no ticks ran")
	}
}

func TestRunReportsDisconnect(t *testing.T) {
	host, _, a, _ := linkedSessions(t)
	time.AfterFunc(30*time.Millisecond, func() { a.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := host.Run(ctx); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("expected ErrChannelClosed, got %v", err)
	}
}

func TestModeAndStateStrings(t *testing.T) {
	if ModeOnlineJoin.String() != "join" || ModePvE.String() != "pve" {
		t.Error("mode names")
	}
	if StateDisconnected.String() != "disconnected" || SessionState(8).String() != "SessionState(8)" {
		t.Error("state names")
	}
}
