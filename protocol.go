package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Lobby messages, client -> server (JSON text frames)
const (
	MsgCreate = "create"
	MsgJoin   = "join"
	MsgList   = "list"
	MsgCheck  = "check"
	MsgLeave  = "leave"
	MsgResult = "result" // host reports the final score
)

// Lobby messages, server -> client
const (
	MsgCreated  = "created"
	MsgJoined   = "joined"
	MsgPaired   = "paired"
	MsgLobbies  = "lobbies"
	MsgChecked  = "checked"
	MsgPeerLeft = "peer_left"
	MsgRecorded = "recorded"
	MsgError    = "error"
)

// Envelope wraps all outgoing lobby messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg opens a lobby and makes the sender its host
type CreateMsg struct {
	Name     string `json:"name"`
	Char     string `json:"char"`
	Passcode string `json:"passcode,omitempty"`
}

// CreatedMsg answers CreateMsg
type CreatedMsg struct {
	LID    string `json:"lid"`
	Invite string `json:"invite"`
	URL    string `json:"url"`
}

// JoinMsg asks to pair with a lobby's host. Either a passcode or a signed
// invite unlocks a private lobby.
type JoinMsg struct {
	LID      string `json:"lid"`
	Name     string `json:"name"`
	Char     string `json:"char"`
	Passcode string `json:"passcode,omitempty"`
	Invite   string `json:"invite,omitempty"`
}

// JoinedMsg answers JoinMsg
type JoinedMsg struct {
	LID  string `json:"lid"`
	Host string `json:"host"`
}

// PairedMsg tells both sides the relay is live and which role they play
type PairedMsg struct {
	LID     string `json:"lid"`
	Role    string `json:"role"` // "host" or "joiner"
	Peer    string `json:"peer"`
	MatchID string `json:"mid"`
}

// LobbyInfo is used in the lobby list
type LobbyInfo struct {
	LID     string `json:"lid"`
	Host    string `json:"host"`
	Char    string `json:"char"`
	Private bool   `json:"private"`
	Players int    `json:"players"`
}

// CheckMsg is sent by a client to check if a lobby exists
type CheckMsg struct {
	LID string `json:"lid"`
}

// CheckedMsg is the response to a lobby check
type CheckedMsg struct {
	LID     string `json:"lid"`
	Exists  bool   `json:"exists"`
	Host    string `json:"host,omitempty"`
	Private bool   `json:"private,omitempty"`
	Players int    `json:"players,omitempty"`
}

// ResultMsg is the host's final score report
type ResultMsg struct {
	P1Char  string `json:"p1c"`
	P2Char  string `json:"p2c"`
	P1Score uint   `json:"p1"`
	P2Score uint   `json:"p2"`
	Ticks   uint64 `json:"ticks"`
}

// ErrorMsg sends an error to the client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// PacketKind tags peer-to-peer frames
type PacketKind uint8

const (
	PacketState     PacketKind = 1
	PacketInput     PacketKind = 2
	PacketHandshake PacketKind = 3
	PacketStart     PacketKind = 4
)

func (k PacketKind) String() string {
	switch k {
	case PacketState:
		return "STATE"
	case PacketInput:
		return "INPUT"
	case PacketHandshake:
		return "HANDSHAKE"
	case PacketStart:
		return "START"
	}
	return fmt.Sprintf("PacketKind(%d)", uint8(k))
}

// InputEvent is one key edge from the joiner, already in avatar-2 symbols
type InputEvent struct {
	Sym  InputSymbol `msgpack:"k"`
	Down bool        `msgpack:"d"`
}

// HandshakeMsg announces the sender's character before kick-off
type HandshakeMsg struct {
	Char CharacterKind `msgpack:"c"`
	Name string        `msgpack:"n,omitempty"`
}

// StartMsg is sent by the host when it starts the match
type StartMsg struct {
	P1Char CharacterKind `msgpack:"p1"`
	P2Char CharacterKind `msgpack:"p2"`
}

// Packet is the binary frame exchanged between peers. Exactly one payload
// matching Kind is set.
type Packet struct {
	Kind      PacketKind    `msgpack:"t"`
	Seq       uint64        `msgpack:"q,omitempty"`
	State     *MatchState   `msgpack:"s,omitempty"`
	Input     *InputEvent   `msgpack:"i,omitempty"`
	Handshake *HandshakeMsg `msgpack:"h,omitempty"`
	Start     *StartMsg     `msgpack:"g,omitempty"`
}

var (
	ErrMalformedPacket   = errors.New("malformed packet")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

// EncodePacket marshals p for a binary frame
func EncodePacket(p *Packet) ([]byte, error) {
	return msgpack.Marshal(p)
}

// DecodePacket unmarshals a binary frame. Payload checks are left to the
// receiving role via Validate.
func DecodePacket(data []byte) (*Packet, error) {
	var p Packet
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	return &p, nil
}

// Validate checks that the payload matches the kind
func (p *Packet) Validate() error {
	switch p.Kind {
	case PacketState:
		if p.State == nil {
			return fmt.Errorf("%w: no state", ErrMalformedSnapshot)
		}
		return p.State.Validate()
	case PacketInput:
		if p.Input == nil {
			return fmt.Errorf("%w: no input", ErrMalformedPacket)
		}
		if _, ok := symbolNames[p.Input.Sym]; !ok {
			return fmt.Errorf("%w: input symbol %d", ErrMalformedPacket, p.Input.Sym)
		}
	case PacketHandshake:
		if p.Handshake == nil || !p.Handshake.Char.Valid() {
			return fmt.Errorf("%w: bad handshake", ErrMalformedPacket)
		}
	case PacketStart:
		if p.Start == nil || !p.Start.P1Char.Valid() || !p.Start.P2Char.Valid() {
			return fmt.Errorf("%w: bad start", ErrMalformedPacket)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrMalformedPacket, p.Kind)
	}
	return nil
}

// Validate rejects snapshots a renderer could not safely draw
func (s *MatchState) Validate() error {
	for i, a := range []*Avatar{&s.P1, &s.P2} {
		if a.ID != i+1 {
			return fmt.Errorf("%w: avatar %d has id %d", ErrMalformedSnapshot, i+1, a.ID)
		}
		if !a.Kind.Valid() {
			return fmt.Errorf("%w: avatar %d kind %d", ErrMalformedSnapshot, a.ID, a.Kind)
		}
		if !a.Pos.Finite() || !a.Vel.Finite() || !isFinite(a.SuperMeter) || a.Radius <= 0 {
			return fmt.Errorf("%w: avatar %d body", ErrMalformedSnapshot, a.ID)
		}
	}
	if !s.Ball.Pos.Finite() || !s.Ball.Vel.Finite() || s.Ball.Radius <= 0 {
		return fmt.Errorf("%w: ball", ErrMalformedSnapshot)
	}
	if !isFinite(s.TimeRemaining) || s.TimeRemaining < 0 {
		return fmt.Errorf("%w: time %v", ErrMalformedSnapshot, s.TimeRemaining)
	}
	if s.LastScorer < 0 || s.LastScorer > 2 {
		return fmt.Errorf("%w: last scorer %d", ErrMalformedSnapshot, s.LastScorer)
	}
	return nil
}
