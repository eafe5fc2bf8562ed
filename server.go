package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode: %v", err)
	}
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("/qr/", func(w http.ResponseWriter, r *http.Request) {
		handleQR(hub, w, r)
	})

	mux.HandleFunc("/api/lobbies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, hub.lobbies.List())
	})

	mux.HandleFunc("/api/matches", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, []MatchRecord{})
			return
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 || limit > recentMatchesMax {
			limit = 20
		}
		matches, err := hub.db.RecentMatches(limit)
		if err != nil {
			log.Printf("http: matches: %v", err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		if matches == nil {
			matches = []MatchRecord{}
		}
		writeJSON(w, matches)
	})

	mux.HandleFunc("/api/characters", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, []CharacterStatsRow{})
			return
		}
		stats, err := hub.db.CharacterStats()
		if err != nil {
			log.Printf("http: characters: %v", err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		if stats == nil {
			stats = []CharacterStatsRow{}
		}
		writeJSON(w, stats)
	})

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if hub.analytics == nil {
			writeJSON(w, map[string]int{})
			return
		}
		days, err := strconv.Atoi(r.URL.Query().Get("days"))
		if err != nil || days <= 0 {
			days = 7
		}
		counts, err := hub.analytics.EventCounts(days)
		if err != nil {
			log.Printf("http: events: %v", err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, counts)
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		var live LiveMetrics
		if hub.analytics != nil {
			live = hub.analytics.GetLiveMetrics()
		}
		writeJSON(w, live)
	})

	return mux
}

// handleQR serves GET /qr/{lid}.png, an invite link for a live lobby
func handleQR(hub *Hub, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/qr/")
	lid, ok := strings.CutSuffix(name, ".png")
	if !ok || lid == "" {
		http.NotFound(w, r)
		return
	}
	if hub.lobbies.Get(lid) == nil {
		http.Error(w, ErrLobbyNotFound.Error(), http.StatusNotFound)
		return
	}

	invite, err := hub.auth.IssueInvite(lid)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	png, err := qrcode.Encode(hub.InviteURL(lid, invite), qrcode.Medium, qrSize)
	if err != nil {
		log.Printf("http: qr %s: %v", lid, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}
