package main

import (
	"fmt"
	"strings"
)

// CharacterKind identifies one of the four fixed archetypes
type CharacterKind int

const (
	CharBolt   CharacterKind = 0 // speed: movement buff
	CharStone  CharacterKind = 1 // heavy: close-range shove
	CharShadow CharacterKind = 2 // blink: teleport behind the ball
	CharBlaze  CharacterKind = 3 // sniper: next kick homes on goal
)

// CharacterDef holds the fixed stats for an archetype
type CharacterDef struct {
	Name    string
	Ability string
	Desc    string
	Color   string
	Radius  float64
}

var Characters = [4]CharacterDef{
	{Name: "BOLT", Ability: "Boost", Desc: "goes pretty fast for 5 seconds", Color: "#fbbf24", Radius: 32},
	{Name: "STONE", Ability: "Shove", Desc: "pushes opponent", Color: "#808080", Radius: 40},
	{Name: "SHADOW", Ability: "Blink", Desc: "teleports to ball", Color: "#1f1f1f", Radius: 35},
	{Name: "BLAZE", Ability: "Snipe", Desc: "shoots better for next shot", Color: "#eb6734", Radius: 35},
}

// Valid reports whether k is one of the known archetypes
func (k CharacterKind) Valid() bool {
	return k >= CharBolt && int(k) < len(Characters)
}

// Def returns the definition for k, falling back to BOLT
func (k CharacterKind) Def() CharacterDef {
	if !k.Valid() {
		return Characters[CharBolt]
	}
	return Characters[k]
}

func (k CharacterKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("CharacterKind(%d)", int(k))
	}
	return Characters[k].Name
}

// ParseCharacter accepts an archetype name (BOLT, stone, ...)
func ParseCharacter(s string) (CharacterKind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, def := range Characters {
		if def.Name == name {
			return CharacterKind(i), nil
		}
	}
	return CharBolt, fmt.Errorf("unknown character %q", s)
}
