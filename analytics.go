package main

import (
	"database/sql"
	"log"
	"sync"
	"time"
)

// Event types for relay tracking
const (
	EvtLobbyCreated = "lobby_created"
	EvtPaired       = "paired"
	EvtPeerLeft     = "peer_left"
	EvtMatchResult  = "match_result"
	EvtJoinRejected = "join_rejected"
)

const (
	analyticsBuf        = 1024
	analyticsBatch      = 50
	analyticsFlushEvery = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	LobbyID   string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	// Live metrics
	mu            sync.RWMutex
	connected     int
	openLobbies   int
	pairedLobbies int
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, analyticsBuf),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType, lobbyID, data string) {
	if a == nil {
		return
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		LobbyID:   lobbyID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full, drop event rather than blocking a read pump
	}
}

// SetLive updates the live connection and lobby counts
func (a *Analytics) SetLive(connected, open, paired int) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.connected = connected
	a.openLobbies = open
	a.pairedLobbies = paired
	a.mu.Unlock()
}

// LiveMetrics is served on /api/status
type LiveMetrics struct {
	Connected int `json:"connected"`
	Open      int `json:"open_lobbies"`
	Paired    int `json:"paired_lobbies"`
}

// GetLiveMetrics returns current live metrics
func (a *Analytics) GetLiveMetrics() LiveMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return LiveMetrics{Connected: a.connected, Open: a.openLobbies, Paired: a.pairedLobbies}
}

// Stop flushes pending events and shuts down the writer
func (a *Analytics) Stop() {
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, analyticsBatch)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatch {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain what is already queued; Track never blocks so late
			// events are simply dropped
		drain:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					break drain
				}
			}
			a.flush(batch)
			return
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		log.Printf("analytics: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO relay_events (event_type, lobby_id, data, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		log.Printf("analytics: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		lid := sql.NullString{String: evt.LobbyID, Valid: evt.LobbyID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, lid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Printf("analytics: insert error: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("analytics: commit error: %v", err)
	}
}

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	if a.db == nil {
		return nil, nil
	}
	since := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM relay_events
		WHERE created_at >= ?
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}
