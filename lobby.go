package main

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	maxLobbies      = 100
	lobbyIDAttempts = 10
)

var (
	ErrLobbyNotFound  = errors.New("lobby not found")
	ErrLobbyFull      = errors.New("lobby full")
	ErrTooManyLobbies = errors.New("too many active lobbies")
	ErrAlreadyInLobby = errors.New("already in a lobby")
)

// Lobby pairs a host with one joiner. Once paired, binary frames from
// either side are relayed verbatim to the other.
type Lobby struct {
	ID        string
	MatchID   string
	Host      *Client
	Guest     *Client
	HostName  string
	GuestName string
	HostChar  CharacterKind
	GuestChar CharacterKind
	PassHash  string
	CreatedAt time.Time
	reported  bool
}

// Private reports whether joining needs a passcode or invite
func (l *Lobby) Private() bool { return l.PassHash != "" }

// Players returns how many seats are taken
func (l *Lobby) Players() int {
	if l.Guest != nil {
		return 2
	}
	return 1
}

func (l *Lobby) partner(c *Client) *Client {
	switch c {
	case l.Host:
		return l.Guest
	case l.Guest:
		return l.Host
	}
	return nil
}

func (l *Lobby) info() LobbyInfo {
	return LobbyInfo{
		LID:     l.ID,
		Host:    l.HostName,
		Char:    l.HostChar.String(),
		Private: l.Private(),
		Players: l.Players(),
	}
}

// LobbyManager handles creation and lookup of lobbies
type LobbyManager struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
	max     int
	rng     *rand.Rand // guarded by mu
}

// NewLobbyManager creates a manager holding at most max lobbies
func NewLobbyManager(max int) *LobbyManager {
	if max <= 0 {
		max = maxLobbies
	}
	return &LobbyManager{
		lobbies: make(map[string]*Lobby),
		max:     max,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create opens a lobby with host as its first seat
func (lm *LobbyManager) Create(host *Client, name string, char CharacterKind, passHash string) (*Lobby, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if len(lm.lobbies) >= lm.max {
		return nil, ErrTooManyLobbies
	}

	var id string
	for i := 0; i < lobbyIDAttempts; i++ {
		cand := ReadableID(lm.rng)
		if _, taken := lm.lobbies[cand]; !taken {
			id = cand
			break
		}
	}
	if id == "" {
		id = ReadableID(lm.rng) + "-" + GenerateID(2)
	}

	l := &Lobby{
		ID:        id,
		Host:      host,
		HostName:  name,
		HostChar:  char,
		PassHash:  passHash,
		CreatedAt: time.Now(),
	}
	lm.lobbies[id] = l
	return l, nil
}

// Get returns a lobby by ID
func (lm *LobbyManager) Get(lid string) *Lobby {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.lobbies[lid]
}

// Info returns the list entry for one lobby
func (lm *LobbyManager) Info(lid string) (LobbyInfo, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	l, ok := lm.lobbies[lid]
	if !ok {
		return LobbyInfo{}, false
	}
	return l.info(), true
}

// Join seats guest in lobby lid and assigns the match ID
func (lm *LobbyManager) Join(lid string, guest *Client, name string, char CharacterKind) (*Lobby, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	l, ok := lm.lobbies[lid]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	if l.Guest != nil || l.Host == guest {
		return nil, ErrLobbyFull
	}
	l.Guest = guest
	l.GuestName = name
	l.GuestChar = char
	l.MatchID = uuid.NewString()
	return l, nil
}

// Partner returns the other seat of c's lobby, or nil before pairing
func (lm *LobbyManager) Partner(lid string, c *Client) *Client {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	l, ok := lm.lobbies[lid]
	if !ok {
		return nil
	}
	return l.partner(c)
}

// Leave removes c's lobby entirely and returns the partner to notify
func (lm *LobbyManager) Leave(lid string, c *Client) *Client {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	l, ok := lm.lobbies[lid]
	if !ok || (l.Host != c && l.Guest != c) {
		return nil
	}
	delete(lm.lobbies, lid)
	return l.partner(c)
}

// ClaimResult lets the host report once per paired lobby. It returns a
// copy of the lobby when the claim succeeds.
func (lm *LobbyManager) ClaimResult(lid string, host *Client) (Lobby, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	l, ok := lm.lobbies[lid]
	if !ok || l.Host != host || l.Guest == nil || l.reported {
		return Lobby{}, false
	}
	l.reported = true
	return *l, true
}

// List returns info about all lobbies, oldest first
func (lm *LobbyManager) List() []LobbyInfo {
	lm.mu.RLock()
	ls := make([]*Lobby, 0, len(lm.lobbies))
	for _, l := range lm.lobbies {
		ls = append(ls, l)
	}
	list := make([]LobbyInfo, len(ls))
	sort.Slice(ls, func(i, j int) bool { return ls[i].CreatedAt.Before(ls[j].CreatedAt) })
	for i, l := range ls {
		list[i] = l.info()
	}
	lm.mu.RUnlock()
	return list
}

// Counts returns the number of waiting and paired lobbies
func (lm *LobbyManager) Counts() (open, paired int) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	for _, l := range lm.lobbies {
		if l.Guest != nil {
			paired++
		} else {
			open++
		}
	}
	return open, paired
}
