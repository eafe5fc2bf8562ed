package main

import (
	"database/sql"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// MatchRecord is one finished match as reported by its host
type MatchRecord struct {
	ID        string    `json:"id"`
	LobbyID   string    `json:"lid"`
	P1Name    string    `json:"p1_name"`
	P2Name    string    `json:"p2_name"`
	P1Char    string    `json:"p1_char"`
	P2Char    string    `json:"p2_char"`
	P1Score   int       `json:"p1_score"`
	P2Score   int       `json:"p2_score"`
	Winner    int       `json:"winner"` // 0 draw
	Ticks     int64     `json:"ticks"`
	CreatedAt time.Time `json:"created_at"`
}

// CharacterStatsRow aggregates results per archetype
type CharacterStatsRow struct {
	Char         string `json:"char"`
	Played       int    `json:"played"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Draws        int    `json:"draws"`
	GoalsFor     int    `json:"goals_for"`
	GoalsAgainst int    `json:"goals_against"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		lobby_id TEXT NOT NULL DEFAULT '',
		p1_name TEXT NOT NULL DEFAULT '',
		p2_name TEXT NOT NULL DEFAULT '',
		p1_char TEXT NOT NULL,
		p2_char TEXT NOT NULL,
		p1_score INTEGER NOT NULL DEFAULT 0,
		p2_score INTEGER NOT NULL DEFAULT 0,
		winner INTEGER NOT NULL DEFAULT 0,
		ticks INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS character_stats (
		kind TEXT PRIMARY KEY,
		played INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		draws INTEGER NOT NULL DEFAULT 0,
		goals_for INTEGER NOT NULL DEFAULT 0,
		goals_against INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS relay_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		lobby_id TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_matches_created ON matches(created_at);
	CREATE INDEX IF NOT EXISTS idx_relay_events_type ON relay_events(event_type, created_at);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// GetSetting returns a stored setting, or "" when unset
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting stores or replaces a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// RecordMatch stores a finished match and folds it into both archetypes'
// stats in one transaction
func (db *DB) RecordMatch(m MatchRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO matches (id, lobby_id, p1_name, p2_name, p1_char, p2_char, p1_score, p2_score, winner, ticks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.LobbyID, m.P1Name, m.P2Name, m.P1Char, m.P2Char, m.P1Score, m.P2Score, m.Winner, m.Ticks,
	)
	if err != nil {
		return err
	}

	sides := []struct {
		char   string
		side   int
		gf, ga int
	}{
		{m.P1Char, 1, m.P1Score, m.P2Score},
		{m.P2Char, 2, m.P2Score, m.P1Score},
	}
	for _, s := range sides {
		win, loss, draw := 0, 0, 0
		switch m.Winner {
		case 0:
			draw = 1
		case s.side:
			win = 1
		default:
			loss = 1
		}
		_, err = tx.Exec(`
			INSERT INTO character_stats (kind, played, wins, losses, draws, goals_for, goals_against)
			VALUES (?, 1, ?, ?, ?, ?, ?)
			ON CONFLICT(kind) DO UPDATE SET
				played = played + 1,
				wins = wins + excluded.wins,
				losses = losses + excluded.losses,
				draws = draws + excluded.draws,
				goals_for = goals_for + excluded.goals_for,
				goals_against = goals_against + excluded.goals_against`,
			s.char, win, loss, draw, s.gf, s.ga,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentMatches returns the newest matches first
func (db *DB) RecentMatches(limit int) ([]MatchRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, lobby_id, p1_name, p2_name, p1_char, p2_char, p1_score, p2_score, winner, ticks, created_at
		FROM matches ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MatchRecord
	for rows.Next() {
		var m MatchRecord
		if err := rows.Scan(&m.ID, &m.LobbyID, &m.P1Name, &m.P2Name, &m.P1Char, &m.P2Char,
			&m.P1Score, &m.P2Score, &m.Winner, &m.Ticks, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// CharacterStats returns per-archetype totals, most played first
func (db *DB) CharacterStats() ([]CharacterStatsRow, error) {
	rows, err := db.conn.Query(`
		SELECT kind, played, wins, losses, draws, goals_for, goals_against
		FROM character_stats ORDER BY played DESC, kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CharacterStatsRow
	for rows.Next() {
		var s CharacterStatsRow
		if err := rows.Scan(&s.Char, &s.Played, &s.Wins, &s.Losses, &s.Draws, &s.GoalsFor, &s.GoalsAgainst); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
