package main

import (
	"context"
	"errors"
	"math/rand"
)

// maxSimTicks bounds a runaway simulation; a full match is ~5400 ticks
// plus celebrations
const maxSimTicks = 1_000_000

var ErrSimStalled = errors.New("simulation did not finish")

// SimOptions configures an offline fast-forward match
type SimOptions struct {
	P1, P2    CharacterKind
	Seed      int64
	Online    bool // run host and joiner over an in-process channel
	Particles bool
}

// SimStats counts gameplay events seen by the authoritative side
type SimStats struct {
	Goals     [3]int
	Kicks     int
	Snipes    int
	Abilities map[CharacterKind]int
	Winner    int
}

func (s *SimStats) Goal(scorer int, _ *MatchState) { s.Goals[scorer]++ }

func (s *SimStats) Kick(_ *Avatar, sniped bool) {
	if sniped {
		s.Snipes++
		return
	}
	s.Kicks++
}

func (s *SimStats) Ability(a *Avatar, _ ActivationResult) { s.Abilities[a.Kind]++ }

func (s *SimStats) Ended(_ *MatchState, winner int) { s.Winner = winner }

// SimResult is what a finished simulation reports
type SimResult struct {
	Final  MatchState // host's final state
	Mirror MatchState // joiner's last snapshot, online only
	Ticks  uint64
	Stats  SimStats
	Synced struct {
		Applied, Stale, Rejected int
	}
}

// RunSim plays a whole match as fast as the CPU allows. Both sides are
// driven by the autopilot, so the same seed always yields the same match.
func RunSim(ctx context.Context, opts SimOptions) (*SimResult, error) {
	if !opts.P1.Valid() || !opts.P2.Valid() {
		return nil, ErrBadCharacter
	}
	cfg := DefaultSessionConfig()
	cfg.Particles = opts.Particles
	res := &SimResult{Stats: SimStats{Abilities: make(map[CharacterKind]int)}}

	if opts.Online {
		return res, runOnlineSim(ctx, cfg, opts, res)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	sess := NewSession(cfg, rng)
	sess.SetObserver(&res.Stats)
	sess.SetAutopilot(NewAIController(rng))
	if err := sess.StartMatch(opts.P1, opts.P2, ModePvE); err != nil {
		return nil, err
	}

	dt := 1.0 / float64(cfg.TickRate)
	for i := 0; sess.State() == StateRunning; i++ {
		if i >= maxSimTicks {
			return nil, ErrSimStalled
		}
		if i%cfg.TickRate == 0 && ctx.Err() != nil {
			sess.EndMatch()
			break
		}
		sess.Tick(dt)
	}
	res.Final = sess.Snapshot()
	res.Ticks = sess.Ticks()
	return res, nil
}

// runOnlineSim wires a host and a joiner back to back and ticks them in
// lockstep on one goroutine
func runOnlineSim(ctx context.Context, cfg SessionConfig, opts SimOptions, res *SimResult) error {
	a, b := NewPipe()
	defer a.Close()

	hostRng := rand.New(rand.NewSource(opts.Seed))
	joinRng := rand.New(rand.NewSource(opts.Seed + 1))

	host := NewSession(cfg, hostRng)
	host.SetObserver(&res.Stats)
	host.SetAutopilot(NewAIController(hostRng))
	joiner := NewSession(cfg, joinRng)
	joiner.SetAutopilot(NewAIController(joinRng))

	hs := NewHostSync(a)
	js := NewJoinerSync(b)

	if err := js.SendHandshake(opts.P2, "joiner"); err != nil {
		return err
	}
	if err := hs.Poll(); err != nil {
		return err
	}
	k2, ok := hs.PeerCharacter()
	if !ok {
		return ErrMalformedPacket
	}
	if err := hs.SendHandshake(opts.P1, "host"); err != nil {
		return err
	}

	host.AttachHost(hs)
	if err := host.StartMatch(opts.P1, k2, ModeOnlineHost); err != nil {
		return err
	}
	if err := js.Poll(); err != nil {
		return err
	}
	start, ok := js.Started()
	if !ok {
		return ErrMalformedPacket
	}
	joiner.AttachJoiner(js)
	if err := joiner.StartMatch(start.P1Char, start.P2Char, ModeOnlineJoin); err != nil {
		return err
	}

	dt := 1.0 / float64(cfg.TickRate)
	for i := 0; host.State() == StateRunning || joiner.State() == StateRunning; i++ {
		if i >= maxSimTicks {
			return ErrSimStalled
		}
		if i%cfg.TickRate == 0 && ctx.Err() != nil {
			host.EndMatch()
		}
		host.Tick(dt)
		joiner.Tick(dt)
	}

	res.Final = host.Snapshot()
	res.Mirror = joiner.Snapshot()
	res.Ticks = host.Ticks()
	res.Synced.Applied, res.Synced.Stale, res.Synced.Rejected = js.Stats()
	if joiner.State() == StateDisconnected {
		return ErrChannelClosed
	}
	return nil
}
