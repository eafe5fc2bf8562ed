package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	mrand "math/rand"
)

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// isFinite reports whether f is neither NaN nor ±Inf
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var (
	lobbyAdjectives = []string{
		"fast", "cool", "wild", "super", "mega", "hyper", "brave", "swift", "epic", "iron",
		"neon", "cyber", "turbo", "sonic", "power", "magic", "dark", "holy", "royal", "gold",
	}
	lobbyNouns = []string{
		"tiger", "lion", "eagle", "shark", "wolf", "bear", "hawk", "panda", "fox", "cobra",
		"dragon", "phoenix", "rhino", "falcon", "viper", "panther", "titan", "ninja", "knight", "wizard",
	}
)

// ReadableID returns a lobby code like "swift-falcon-42"
func ReadableID(rng *mrand.Rand) string {
	adj := lobbyAdjectives[rng.Intn(len(lobbyAdjectives))]
	noun := lobbyNouns[rng.Intn(len(lobbyNouns))]
	return fmt.Sprintf("%s-%s-%d", adj, noun, rng.Intn(100))
}
