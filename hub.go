package main

import (
	"net/url"
	"sync"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub manages all connected clients and routes them to lobbies
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	lobbies    *LobbyManager
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu        sync.Mutex
	ipConns       map[string]int
	totalConns    int
	maxConnsPerIP int
	// Persistence & lobby guard
	db        *DB
	auth      *Auth
	analytics *Analytics
	publicURL string
}

// NewHub creates a Hub. db may be nil, in which case results are not stored.
func NewHub(cfg *Config, db *DB) *Hub {
	perIP := cfg.Server.MaxConnsPerIP
	if perIP <= 0 {
		perIP = maxConnsPerIP
	}
	h := &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client, 64),
		unregister:    make(chan *Client, 64),
		lobbies:       NewLobbyManager(cfg.Server.MaxLobbies),
		ipConns:       make(map[string]int),
		maxConnsPerIP: perIP,
		db:            db,
		auth:          NewAuth(db, cfg.Auth.Secret, cfg.Auth.InviteTTL),
		publicURL:     cfg.Server.PublicURL,
	}
	if db != nil {
		h.analytics = NewAnalytics(db)
	}
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= h.maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			// Tear down the lobby and tell the other side
			if client.lobbyID != "" {
				h.dropFromLobby(client)
			}
		}
		h.updateLive()
	}
}

// dropFromLobby closes c's lobby and notifies the partner
func (h *Hub) dropFromLobby(c *Client) {
	lid := c.lobbyID
	c.lobbyID = ""
	c.role = ""
	partner := h.lobbies.Leave(lid, c)
	if partner != nil {
		partner.SendJSON(Envelope{T: MsgPeerLeft, Data: map[string]string{"lid": lid}})
		h.analytics.Track(EvtPeerLeft, lid, "")
	}
}

func (h *Hub) updateLive() {
	open, paired := h.lobbies.Counts()
	h.analytics.SetLive(h.ClientCount(), open, paired)
}

// InviteURL builds the shareable link for a lobby
func (h *Hub) InviteURL(lid, invite string) string {
	q := url.Values{}
	q.Set("lobby", lid)
	if invite != "" {
		q.Set("invite", invite)
	}
	return h.publicURL + "/?" + q.Encode()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

// Close stops background writers
func (h *Hub) Close() {
	if h.analytics != nil {
		h.analytics.Stop()
	}
}
