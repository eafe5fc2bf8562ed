package main

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrStaleSnapshot = errors.New("stale snapshot")
)

// Channel is an ordered, already-open message pipe to the other peer.
// Send must not retain p after it returns.
type Channel interface {
	Send(p *Packet) error
	Recv() <-chan *Packet
	Done() <-chan struct{}
	Close() error
}

// drain hands every queued packet to fn without blocking. It reports
// ErrChannelClosed once the queue is empty and the channel is done.
func drain(ch Channel, fn func(*Packet)) error {
	for {
		select {
		case p := <-ch.Recv():
			fn(p)
		default:
			select {
			case <-ch.Done():
				return ErrChannelClosed
			default:
				return nil
			}
		}
	}
}

// HostSync is the authoritative side: it broadcasts state and folds the
// joiner's key edges into avatar 2's held set.
type HostSync struct {
	ch       Channel
	seq      uint64
	remote   InputSet
	peerChar CharacterKind
	peerName string
	hasPeer  bool
	dropped  int
}

func NewHostSync(ch Channel) *HostSync {
	return &HostSync{ch: ch}
}

// Poll consumes everything the joiner has sent since the last tick
func (h *HostSync) Poll() error {
	return drain(h.ch, h.handle)
}

func (h *HostSync) handle(p *Packet) {
	if err := p.Validate(); err != nil {
		h.dropped++
		return
	}
	switch p.Kind {
	case PacketInput:
		if p.Input.Down {
			h.remote = h.remote.With(p.Input.Sym)
		} else {
			h.remote = h.remote.Without(p.Input.Sym)
		}
	case PacketHandshake:
		h.peerChar = p.Handshake.Char
		h.peerName = p.Handshake.Name
		h.hasPeer = true
	}
}

// RemoteInput returns the joiner's currently held set
func (h *HostSync) RemoteInput() InputSet { return h.remote }

// PeerCharacter returns the joiner's announced archetype, if any
func (h *HostSync) PeerCharacter() (CharacterKind, bool) { return h.peerChar, h.hasPeer }

// Dropped counts packets rejected by validation
func (h *HostSync) Dropped() int { return h.dropped }

// Seq is the sequence number of the last broadcast
func (h *HostSync) Seq() uint64 { return h.seq }

// Broadcast sends the full state, stamped with the next sequence number
func (h *HostSync) Broadcast(s *MatchState) error {
	h.seq++
	return h.ch.Send(&Packet{Kind: PacketState, Seq: h.seq, State: s})
}

func (h *HostSync) SendHandshake(kind CharacterKind, name string) error {
	return h.ch.Send(&Packet{Kind: PacketHandshake, Handshake: &HandshakeMsg{Char: kind, Name: name}})
}

func (h *HostSync) SendStart(k1, k2 CharacterKind) error {
	h.remote = 0
	return h.ch.Send(&Packet{Kind: PacketStart, Start: &StartMsg{P1Char: k1, P2Char: k2}})
}

// HUD is what a joiner shows, derived purely from the latest snapshot
type HUD struct {
	P1Score    uint
	P2Score    uint
	TimeLeft   int // whole seconds, rounded up
	P1Meter    float64
	P2Meter    float64
	GoalBanner bool
	LastScorer int
	GameOver   bool
	Leader     int // naive projection: whoever is ahead now, 0 when level
}

// DeriveHUD computes display fields from s
func DeriveHUD(s *MatchState) HUD {
	return HUD{
		P1Score:    s.P1.Score,
		P2Score:    s.P2.Score,
		TimeLeft:   int(math.Ceil(s.TimeRemaining)),
		P1Meter:    s.P1.SuperMeter,
		P2Meter:    s.P2.SuperMeter,
		GoalBanner: s.GoalCelebration > 0,
		LastScorer: s.LastScorer,
		GameOver:   !s.Playing,
		Leader:     s.Winner(),
	}
}

// JoinerSync mirrors the host's state and forwards local key edges. It
// never simulates.
type JoinerSync struct {
	ch       Channel
	keys     KeyMap
	state    MatchState
	hud      HUD
	lastSeq  uint64
	haveSeq  bool
	applied  int
	rejected int
	stale    int
	sent     InputSet
	start    *StartMsg
	hostChar CharacterKind
	hostName string
}

// NewJoinerSync wraps ch. Raw keys are read with the first-player layout
// and forwarded as avatar 2's controls.
func NewJoinerSync(ch Channel) *JoinerSync {
	return &JoinerSync{ch: ch, keys: KeyMapP1}
}

// Poll applies everything the host has sent since the last tick
func (j *JoinerSync) Poll() error {
	return drain(j.ch, j.handle)
}

func (j *JoinerSync) handle(p *Packet) {
	switch p.Kind {
	case PacketState:
		if err := j.Apply(p); err != nil {
			if errors.Is(err, ErrStaleSnapshot) {
				j.stale++
			} else {
				j.rejected++
			}
		}
	case PacketStart:
		if p.Validate() == nil {
			// A new match numbers its snapshots from scratch and its host
			// holds none of our keys yet
			j.start = p.Start
			j.haveSeq = false
			j.lastSeq = 0
			j.sent = 0
		}
	case PacketHandshake:
		if p.Validate() == nil {
			j.hostChar = p.Handshake.Char
			j.hostName = p.Handshake.Name
		}
	}
}

// Apply replaces the render state with a STATE packet. Older or equal
// sequence numbers and malformed states leave the current state alone.
func (j *JoinerSync) Apply(p *Packet) error {
	if p.Kind != PacketState {
		return fmt.Errorf("%w: %s is not a snapshot", ErrMalformedSnapshot, p.Kind)
	}
	if j.haveSeq && p.Seq <= j.lastSeq {
		return fmt.Errorf("%w: seq %d after %d", ErrStaleSnapshot, p.Seq, j.lastSeq)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	j.state = p.State.Clone()
	j.lastSeq = p.Seq
	j.haveSeq = true
	j.applied++
	j.hud = DeriveHUD(&j.state)
	return nil
}

// Synced reports whether at least one snapshot has been applied
func (j *JoinerSync) Synced() bool { return j.applied > 0 }

// State returns a copy of the latest applied snapshot
func (j *JoinerSync) State() MatchState { return j.state.Clone() }

func (j *JoinerSync) HUD() HUD { return j.hud }

// Started returns the host's START payload once it has arrived
func (j *JoinerSync) Started() (StartMsg, bool) {
	if j.start == nil {
		return StartMsg{}, false
	}
	return *j.start, true
}

// Stats returns applied, stale and rejected snapshot counts
func (j *JoinerSync) Stats() (applied, stale, rejected int) {
	return j.applied, j.stale, j.rejected
}

func (j *JoinerSync) SendHandshake(kind CharacterKind, name string) error {
	return j.ch.Send(&Packet{Kind: PacketHandshake, Handshake: &HandshakeMsg{Char: kind, Name: name}})
}

// KeyEvent forwards a raw key edge. Unmapped keys are ignored.
func (j *JoinerSync) KeyEvent(key string, down bool) error {
	sym, ok := j.keys[key]
	if !ok {
		return nil
	}
	next := j.sent.Without(sym)
	if down {
		next = j.sent.With(sym)
	}
	return j.SendInput(next)
}

// SendInput forwards the edges between the last sent set and held
func (j *JoinerSync) SendInput(held InputSet) error {
	for _, ev := range DiffInputs(j.sent, held) {
		if err := j.ch.Send(&Packet{Kind: PacketInput, Input: &InputEvent{Sym: ev.Sym, Down: ev.Down}}); err != nil {
			return err
		}
		if ev.Down {
			j.sent = j.sent.With(ev.Sym)
		} else {
			j.sent = j.sent.Without(ev.Sym)
		}
	}
	return nil
}
