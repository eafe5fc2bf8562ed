package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 64 * 1024 // a full snapshot with particles
	sendBufSize       = 256
	maxMessagesPerSec = 400 // 60 Hz snapshots plus a burst of key edges per tick
	maxNameLen        = 16
	recentMatchesMax  = 100
)

// Role names sent in PairedMsg
const (
	RoleHost   = "host"
	RoleJoiner = "joiner"
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	lobbyID    string
	role       string
	name       string
	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("relay: ws error: %v", err)
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("relay: rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		if msgType == websocket.BinaryMessage {
			c.relay(message)
		} else {
			c.handleMessage(message)
		}
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("relay: marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// relay forwards a peer frame untouched. Frames before pairing are dropped.
func (c *Client) relay(frame []byte) {
	if c.lobbyID == "" {
		return
	}
	if p := c.hub.lobbies.Partner(c.lobbyID, c); p != nil {
		p.SendBinary(frame)
	}
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("relay: unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgCheck:
		c.handleCheck(env.D)
	case MsgLeave:
		c.handleLeave()
	case MsgResult:
		c.handleResult(env.D)
	}
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return GenerateGuestName()
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

// inLobby reports whether c still holds a seat; a lobby closed by the
// partner leaves a stale ID behind which is cleared here.
func (c *Client) inLobby() bool {
	if c.lobbyID == "" {
		return false
	}
	if c.hub.lobbies.Get(c.lobbyID) == nil {
		c.lobbyID = ""
		c.role = ""
		return false
	}
	return true
}

func (c *Client) handleList() {
	c.SendJSON(Envelope{T: MsgLobbies, Data: c.hub.lobbies.List()})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if c.inLobby() {
		c.sendError(ErrAlreadyInLobby.Error())
		return
	}
	char, err := ParseCharacter(msg.Char)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	var hash string
	if msg.Passcode != "" {
		if hash, err = c.hub.auth.HashPasscode(msg.Passcode); err != nil {
			c.sendError(err.Error())
			return
		}
	}

	c.name = cleanName(msg.Name)
	lobby, err := c.hub.lobbies.Create(c, c.name, char, hash)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.lobbyID = lobby.ID
	c.role = RoleHost

	invite, err := c.hub.auth.IssueInvite(lobby.ID)
	if err != nil {
		log.Printf("lobby: invite for %s: %v", lobby.ID, err)
	}
	c.SendJSON(Envelope{T: MsgCreated, Data: CreatedMsg{
		LID:    lobby.ID,
		Invite: invite,
		URL:    c.hub.InviteURL(lobby.ID, invite),
	}})
	c.hub.updateLive()
	c.hub.analytics.Track(EvtLobbyCreated, lobby.ID, fmt.Sprintf(`{"char":%q,"private":%t}`, char, lobby.Private()))
	log.Printf("lobby: %s created by %s (%s)", lobby.ID, c.name, char)
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if c.inLobby() {
		c.sendError(ErrAlreadyInLobby.Error())
		return
	}
	char, err := ParseCharacter(msg.Char)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	lobby := c.hub.lobbies.Get(msg.LID)
	if lobby == nil {
		c.sendError(ErrLobbyNotFound.Error())
		return
	}
	if lobby.Private() {
		if err := c.unlock(lobby, msg); err != nil {
			c.hub.analytics.Track(EvtJoinRejected, msg.LID, "")
			c.sendError(err.Error())
			return
		}
	}

	c.name = cleanName(msg.Name)
	lobby, err = c.hub.lobbies.Join(msg.LID, c, c.name, char)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.lobbyID = lobby.ID
	c.role = RoleJoiner

	c.SendJSON(Envelope{T: MsgJoined, Data: JoinedMsg{LID: lobby.ID, Host: lobby.HostName}})
	lobby.Host.SendJSON(Envelope{T: MsgPaired, Data: PairedMsg{LID: lobby.ID, Role: RoleHost, Peer: c.name, MatchID: lobby.MatchID}})
	c.SendJSON(Envelope{T: MsgPaired, Data: PairedMsg{LID: lobby.ID, Role: RoleJoiner, Peer: lobby.HostName, MatchID: lobby.MatchID}})
	c.hub.updateLive()
	c.hub.analytics.Track(EvtPaired, lobby.ID, fmt.Sprintf(`{"mid":%q}`, lobby.MatchID))
	log.Printf("lobby: %s paired %s with %s", lobby.ID, lobby.HostName, c.name)
}

// unlock checks a signed invite first, then the passcode
func (c *Client) unlock(lobby *Lobby, msg JoinMsg) error {
	if msg.Invite != "" {
		if err := c.hub.auth.ValidateInvite(msg.Invite, lobby.ID); err == nil {
			return nil
		}
	}
	if msg.Passcode == "" {
		return ErrBadPasscode
	}
	return c.hub.auth.CheckPasscode(lobby.PassHash, msg.Passcode, c.remoteAddr)
}

func (c *Client) handleCheck(data json.RawMessage) {
	var msg CheckMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	info, ok := c.hub.lobbies.Info(msg.LID)
	if !ok {
		c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{LID: msg.LID, Exists: false}})
		return
	}
	c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{
		LID:     msg.LID,
		Exists:  true,
		Host:    info.Host,
		Private: info.Private,
		Players: info.Players,
	}})
}

func (c *Client) handleLeave() {
	if c.lobbyID != "" {
		c.hub.dropFromLobby(c)
		c.hub.updateLive()
	}
}

// handleResult stores the host's final score for the paired match
func (c *Client) handleResult(data json.RawMessage) {
	var msg ResultMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if c.role != RoleHost {
		c.sendError("only the host reports results")
		return
	}
	p1, err1 := ParseCharacter(msg.P1Char)
	p2, err2 := ParseCharacter(msg.P2Char)
	if err := errors.Join(err1, err2); err != nil {
		c.sendError(err.Error())
		return
	}

	lobby, ok := c.hub.lobbies.ClaimResult(c.lobbyID, c)
	if !ok {
		c.sendError("no match to report")
		return
	}

	rec := MatchRecord{
		ID:      lobby.MatchID,
		LobbyID: lobby.ID,
		P1Name:  lobby.HostName,
		P2Name:  lobby.GuestName,
		P1Char:  p1.String(),
		P2Char:  p2.String(),
		P1Score: int(msg.P1Score),
		P2Score: int(msg.P2Score),
		Ticks:   int64(msg.Ticks),
	}
	switch {
	case msg.P1Score > msg.P2Score:
		rec.Winner = 1
	case msg.P2Score > msg.P1Score:
		rec.Winner = 2
	}

	if c.hub.db != nil {
		if err := c.hub.db.RecordMatch(rec); err != nil {
			log.Printf("lobby: record %s: %v", lobby.ID, err)
			c.sendError("could not store result")
			return
		}
	}
	c.hub.analytics.Track(EvtMatchResult, lobby.ID, fmt.Sprintf(`{"p1":%d,"p2":%d}`, msg.P1Score, msg.P2Score))
	c.SendJSON(Envelope{T: MsgRecorded, Data: map[string]string{"mid": lobby.MatchID}})
}
