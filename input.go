package main

import "sync/atomic"

// InputSymbol is an abstract control held by an actor
type InputSymbol uint8

const (
	KeyLeft InputSymbol = 1 << iota
	KeyRight
	KeyJump
	KeyKick
	KeySuper
)

var symbolNames = map[InputSymbol]string{
	KeyLeft:  "LEFT",
	KeyRight: "RIGHT",
	KeyJump:  "JUMP",
	KeyKick:  "KICK",
	KeySuper: "SUPER",
}

func (s InputSymbol) String() string {
	if n, ok := symbolNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseSymbol maps a wire name back to a symbol. ok is false for anything unmapped.
func ParseSymbol(name string) (InputSymbol, bool) {
	for sym, n := range symbolNames {
		if n == name {
			return sym, true
		}
	}
	return 0, false
}

// AllSymbols lists every symbol in a stable order
var AllSymbols = [...]InputSymbol{KeyLeft, KeyRight, KeyJump, KeyKick, KeySuper}

// InputSet is the set of symbols held during one tick. It is a value;
// the simulation gets its own copy.
type InputSet uint8

func NewInputSet(syms ...InputSymbol) InputSet {
	var s InputSet
	for _, sym := range syms {
		s = s.With(sym)
	}
	return s
}

func (s InputSet) Has(sym InputSymbol) bool { return s&InputSet(sym) != 0 }

func (s InputSet) With(sym InputSymbol) InputSet { return s | InputSet(sym) }

func (s InputSet) Without(sym InputSymbol) InputSet { return s &^ InputSet(sym) }

// HeldKeys is the shared key-hold state written by an input collaborator
// and read once per tick. Updates are atomic at whole-set granularity.
type HeldKeys struct {
	bits atomic.Uint32
}

// Press marks sym as held. Duplicate presses are no-ops.
func (h *HeldKeys) Press(sym InputSymbol) {
	for {
		old := h.bits.Load()
		if h.bits.CompareAndSwap(old, old|uint32(sym)) {
			return
		}
	}
}

// Release clears sym. Releasing an unheld key is a no-op.
func (h *HeldKeys) Release(sym InputSymbol) {
	for {
		old := h.bits.Load()
		if h.bits.CompareAndSwap(old, old&^uint32(sym)) {
			return
		}
	}
}

// Set replaces the whole held set
func (h *HeldKeys) Set(s InputSet) {
	h.bits.Store(uint32(s))
}

// Snapshot returns a tick-local copy of the held set
func (h *HeldKeys) Snapshot() InputSet {
	return InputSet(h.bits.Load())
}

// KeyMap maps raw key names from a keyboard collaborator to symbols
type KeyMap map[string]InputSymbol

var (
	KeyMapP1 = KeyMap{"a": KeyLeft, "d": KeyRight, "w": KeyJump, "v": KeyKick, "b": KeySuper}
	KeyMapP2 = KeyMap{"ArrowLeft": KeyLeft, "ArrowRight": KeyRight, "ArrowUp": KeyJump, "/": KeyKick, ".": KeySuper}
)

// Apply feeds a raw key event into held. Unmapped keys are ignored.
func (m KeyMap) Apply(held *HeldKeys, key string, down bool) bool {
	sym, ok := m[key]
	if !ok {
		return false
	}
	if down {
		held.Press(sym)
	} else {
		held.Release(sym)
	}
	return true
}

// KeyEvent is a single down/up transition of a symbol
type KeyEvent struct {
	Sym  InputSymbol
	Down bool
}

// DiffInputs returns the transitions that turn prev into next
func DiffInputs(prev, next InputSet) []KeyEvent {
	var evs []KeyEvent
	for _, sym := range AllSymbols {
		was, is := prev.Has(sym), next.Has(sym)
		if was != is {
			evs = append(evs, KeyEvent{Sym: sym, Down: is})
		}
	}
	return evs
}
