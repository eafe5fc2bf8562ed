package main

import (
	"reflect"
	"sync"
	"testing"
)

func TestHeldKeysPressRelease(t *testing.T) {
	var h HeldKeys
	h.Press(KeyLeft)
	h.Press(KeyLeft) // duplicate down is a no-op
	h.Press(KeyKick)

	s := h.Snapshot()
	if !s.Has(KeyLeft) || !s.Has(KeyKick) || s.Has(KeyRight) {
		t.Errorf("snapshot = %08b", s)
	}

	h.Release(KeyLeft)
	h.Release(KeyJump) // never pressed
	if s := h.Snapshot(); s != NewInputSet(KeyKick) {
		t.Errorf("after release = %08b, want kick only", s)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	var h HeldKeys
	h.Press(KeyJump)
	s := h.Snapshot()
	h.Release(KeyJump)
	if !s.Has(KeyJump) {
		t.Error("snapshot should not follow later releases")
	}
}

func TestHeldKeysConcurrent(t *testing.T) {
	var h HeldKeys
	var wg sync.WaitGroup
	for _, sym := range AllSymbols {
		wg.Add(1)
		go func(sym InputSymbol) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.Press(sym)
				h.Release(sym)
			}
			h.Press(sym)
		}(sym)
	}
	wg.Wait()

	for _, sym := range AllSymbols {
		if !h.Snapshot().Has(sym) {
			t.Errorf("%s lost under contention", sym)
		}
	}
}

func TestKeyMapApply(t *testing.T) {
	var p1, p2 HeldKeys
	if !KeyMapP1.Apply(&p1, "a", true) {
		t.Error("a should be mapped for player 1")
	}
	if !KeyMapP2.Apply(&p2, "ArrowUp", true) {
		t.Error("ArrowUp should be mapped for player 2")
	}
	if KeyMapP1.Apply(&p1, "q", true) {
		t.Error("unmapped key should be ignored")
	}

	if s := p1.Snapshot(); s != NewInputSet(KeyLeft) {
		t.Errorf("p1 = %08b", s)
	}
	if s := p2.Snapshot(); s != NewInputSet(KeyJump) {
		t.Errorf("p2 = %08b", s)
	}

	KeyMapP1.Apply(&p1, "a", false)
	if s := p1.Snapshot(); s != 0 {
		t.Errorf("p1 after key up = %08b", s)
	}
}

func TestDiffInputs(t *testing.T) {
	prev := NewInputSet(KeyLeft, KeyKick)
	next := NewInputSet(KeyRight, KeyKick)

	got := DiffInputs(prev, next)
	want := []KeyEvent{{Sym: KeyLeft, Down: false}, {Sym: KeyRight, Down: true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiffInputs = %+v, want %+v", got, want)
	}

	if evs := DiffInputs(next, next); len(evs) != 0 {
		t.Errorf("no change should yield no events, got %+v", evs)
	}
}

func TestParseSymbol(t *testing.T) {
	for _, sym := range AllSymbols {
		got, ok := ParseSymbol(sym.String())
		if !ok || got != sym {
			t.Errorf("ParseSymbol(%q) = %v, %v", sym.String(), got, ok)
		}
	}
	if _, ok := ParseSymbol("DANCE"); ok {
		t.Error("unknown name should not parse")
	}
	if InputSymbol(0x80).String() != "UNKNOWN" {
		t.Errorf("got %q", InputSymbol(0x80).String())
	}
}

func TestParseCharacter(t *testing.T) {
	tests := []struct {
		in   string
		want CharacterKind
		ok   bool
	}{
		{"BOLT", CharBolt, true},
		{"stone", CharStone, true},
		{" Shadow ", CharShadow, true},
		{"blaze", CharBlaze, true},
		{"goalie", CharBolt, false},
	}
	for _, tt := range tests {
		got, err := ParseCharacter(tt.in)
		if (err == nil) != tt.ok || (tt.ok && got != tt.want) {
			t.Errorf("ParseCharacter(%q) = %v, %v", tt.in, got, err)
		}
	}
	if CharacterKind(7).Valid() {
		t.Error("kind 7 should be invalid")
	}
	if CharacterKind(7).Def().Name != "BOLT" {
		t.Error("invalid kind should fall back to BOLT")
	}
}
