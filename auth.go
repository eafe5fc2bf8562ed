package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	inviteExpiry    = 24 * time.Hour
	passcodeCost    = bcrypt.DefaultCost
	minPasscodeLen  = 4
	maxPasscodeLen  = 32
	joinRateWindow  = 60 * time.Second
	maxJoinAttempts = 10
)

var (
	ErrBadPasscode = errors.New("wrong passcode")
	ErrBadInvite   = errors.New("invalid invite")
	ErrRateLimited = errors.New("too many attempts, try again later")
)

// Auth guards private lobbies with bcrypt passcodes and signed invites
type Auth struct {
	secret []byte
	ttl    time.Duration

	// Rate limiting for join attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates the lobby guard. An empty secret falls back to the one
// stored in db, generating and saving it on first run.
func NewAuth(db *DB, secret string, ttl time.Duration) *Auth {
	key := []byte(secret)
	if secret == "" {
		key = loadOrCreateSecret(db)
	}
	if ttl <= 0 {
		ttl = inviteExpiry
	}
	return &Auth{
		secret:  key,
		ttl:     ttl,
		rateMap: make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the signing secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Printf("auth: could not persist secret: %v", err)
		}
	}
	return secret
}

// HashPasscode returns the bcrypt hash stored on a private lobby
func (a *Auth) HashPasscode(code string) (string, error) {
	if len(code) < minPasscodeLen || len(code) > maxPasscodeLen {
		return "", fmt.Errorf("passcode must be %d-%d characters", minPasscodeLen, maxPasscodeLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), passcodeCost)
	if err != nil {
		return "", fmt.Errorf("internal error")
	}
	return string(hash), nil
}

// CheckPasscode compares code with a lobby's hash, rate limited per ip
func (a *Auth) CheckPasscode(hash, code, ip string) error {
	if !a.checkRate(ip) {
		return ErrRateLimited
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		return ErrBadPasscode
	}
	return nil
}

// IssueInvite signs a link token that admits its holder to lobby lid
func (a *Auth) IssueInvite(lid string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"lid": lid,
		"exp": now.Add(a.ttl).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateInvite checks the signature, expiry and target lobby of an invite
func (a *Auth) ValidateInvite(tokenStr, lid string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadInvite, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrBadInvite
	}
	if got, _ := claims["lid"].(string); got != lid {
		return fmt.Errorf("%w: issued for another lobby", ErrBadInvite)
	}
	return nil
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(joinRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxJoinAttempts
}

// GenerateGuestName creates a unique guest name like "Guest_a3f2"
func GenerateGuestName() string {
	b := make([]byte, 3)
	rand.Read(b)
	return "Guest_" + hex.EncodeToString(b)
}
