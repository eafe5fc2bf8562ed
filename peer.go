package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 30 * time.Second
	handshakePoll    = 20 * time.Millisecond
	lobbyReadWait    = 10 * time.Minute // a host may wait a while for a joiner
	resultGrace      = 5 * time.Second
)

// PeerOptions configures a headless peer
type PeerOptions struct {
	URL      string // relay WebSocket URL, e.g. ws://localhost:8080/ws
	Name     string
	Char     CharacterKind
	Lobby    string // join this lobby; empty creates one
	Passcode string
	Invite   string
	Seed     int64
	Session  SessionConfig
}

// logObserver writes gameplay events to the standard logger
type logObserver struct {
	prefix string
}

func (o logObserver) Goal(scorer int, s *MatchState) {
	log.Printf("%s: goal by %d, %d-%d", o.prefix, scorer, s.P1.Score, s.P2.Score)
}

func (o logObserver) Kick(a *Avatar, sniped bool) {
	if sniped {
		log.Printf("%s: %d fired a snipe", o.prefix, a.ID)
	}
}

func (o logObserver) Ability(a *Avatar, res ActivationResult) {
	log.Printf("%s: %d used %s", o.prefix, a.ID, a.Kind.Def().Ability)
}

func (o logObserver) Ended(s *MatchState, winner int) {
	if winner == 0 {
		log.Printf("%s: full time, draw %d-%d", o.prefix, s.P1.Score, s.P2.Score)
		return
	}
	log.Printf("%s: full time, %d wins %d-%d", o.prefix, winner, s.P1.Score, s.P2.Score)
}

// lobbyConn speaks the JSON lobby protocol before a channel takes over
type lobbyConn struct {
	conn *websocket.Conn
}

func (l *lobbyConn) send(t string, data interface{}) error {
	raw, err := json.Marshal(Envelope{T: t, Data: data})
	if err != nil {
		return err
	}
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteMessage(websocket.TextMessage, raw)
}

// await reads until a message of type want arrives. Relay errors are
// returned as errors; other messages are skipped.
func (l *lobbyConn) await(want string, into interface{}) error {
	for {
		l.conn.SetReadDeadline(time.Now().Add(lobbyReadWait))
		msgType, raw, err := l.conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var env InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		switch env.T {
		case want:
			if into == nil {
				return nil
			}
			return json.Unmarshal(env.D, into)
		case MsgError:
			var e ErrorMsg
			json.Unmarshal(env.D, &e)
			return fmt.Errorf("relay: %s", e.Msg)
		}
	}
}

// RunPeer dials the relay, pairs through a lobby and plays one match with
// the autopilot at the controls
func RunPeer(ctx context.Context, opts PeerOptions) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	lc := &lobbyConn{conn: conn}

	if opts.Lobby == "" {
		if err := lc.send(MsgCreate, CreateMsg{Name: opts.Name, Char: opts.Char.String(), Passcode: opts.Passcode}); err != nil {
			conn.Close()
			return err
		}
		var created CreatedMsg
		if err := lc.await(MsgCreated, &created); err != nil {
			conn.Close()
			return err
		}
		log.Printf("peer: lobby %s open, invite %s", created.LID, created.URL)
	} else {
		join := JoinMsg{LID: opts.Lobby, Name: opts.Name, Char: opts.Char.String(), Passcode: opts.Passcode, Invite: opts.Invite}
		if err := lc.send(MsgJoin, join); err != nil {
			conn.Close()
			return err
		}
	}

	var paired PairedMsg
	if err := lc.await(MsgPaired, &paired); err != nil {
		conn.Close()
		return err
	}
	log.Printf("peer: paired with %s as %s, match %s", paired.Peer, paired.Role, paired.MatchID)

	ch := NewWSChannel(conn)
	defer ch.Close()

	rng := rand.New(rand.NewSource(opts.Seed))
	sess := NewSession(opts.Session, rng)
	sess.SetAutopilot(NewAIController(rng))
	sess.SetObserver(logObserver{prefix: "peer"})

	if paired.Role == RoleHost {
		return hostMatch(ctx, sess, ch, opts)
	}
	return joinMatch(ctx, sess, ch, opts)
}

func hostMatch(ctx context.Context, sess *Session, ch *wsChannel, opts PeerOptions) error {
	hs := NewHostSync(ch)
	if err := hs.SendHandshake(opts.Char, opts.Name); err != nil {
		return err
	}
	err := waitFor(ctx, hs.Poll, func() bool {
		_, ok := hs.PeerCharacter()
		return ok
	})
	if err != nil {
		return fmt.Errorf("waiting for joiner handshake: %w", err)
	}
	k2, _ := hs.PeerCharacter()

	sess.AttachHost(hs)
	if err := sess.StartMatch(opts.Char, k2, ModeOnlineHost); err != nil {
		return err
	}
	runErr := sess.Run(ctx)

	final := sess.Snapshot()
	if sess.State() == StateEnded {
		res := ResultMsg{
			P1Char:  final.P1.Kind.String(),
			P2Char:  final.P2.Kind.String(),
			P1Score: final.P1.Score,
			P2Score: final.P2.Score,
			Ticks:   sess.Ticks(),
		}
		if err := ch.SendJSON(Envelope{T: MsgResult, Data: res}); err != nil {
			log.Printf("peer: result not sent: %v", err)
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func joinMatch(ctx context.Context, sess *Session, ch *wsChannel, opts PeerOptions) error {
	js := NewJoinerSync(ch)
	if err := js.SendHandshake(opts.Char, opts.Name); err != nil {
		return err
	}
	if err := waitFor(ctx, js.Poll, func() bool {
		_, ok := js.Started()
		return ok
	}); err != nil {
		return fmt.Errorf("waiting for start: %w", err)
	}
	start, _ := js.Started()

	sess.AttachJoiner(js)
	if err := sess.StartMatch(start.P1Char, start.P2Char, ModeOnlineJoin); err != nil {
		return err
	}
	runErr := sess.Run(ctx)

	applied, stale, rejected := js.Stats()
	hud := js.HUD()
	log.Printf("peer: final %d-%d, snapshots applied=%d stale=%d rejected=%d",
		hud.P1Score, hud.P2Score, applied, stale, rejected)

	// Hold the seat until the host has reported and left, otherwise the
	// relay closes the lobby before the result arrives
	if runErr == nil {
		select {
		case <-ch.Done():
		case <-time.After(resultGrace):
		case <-ctx.Done():
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// waitFor polls until ready reports true, the poll fails, or the
// handshake timeout passes
func waitFor(ctx context.Context, poll func() error, ready func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	ticker := time.NewTicker(handshakePoll)
	defer ticker.Stop()
	for {
		if err := poll(); err != nil {
			return err
		}
		if ready() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
