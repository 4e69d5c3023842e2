package skirmish

import (
	"fmt"
	"strings"
)

// Faction is one of the two sides of a battle.
type Faction uint8

const (
	Elf Faction = iota
	Goblin
)

// AllFactions returns both factions in canonical order.
func AllFactions() []Faction {
	return []Faction{Elf, Goblin}
}

// Opponent returns the other faction.
func (f Faction) Opponent() Faction {
	if f == Elf {
		return Goblin
	}
	return Elf
}

func (f Faction) String() string {
	if f == Elf {
		return "elf"
	}
	return "goblin"
}

func (f Faction) tile() Tile {
	if f == Elf {
		return TileElf
	}
	return TileGoblin
}

// ParseFaction accepts "elf"/"e" or "goblin"/"g", case-insensitively.
func ParseFaction(s string) (Faction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "elf", "elves", "e":
		return Elf, nil
	case "goblin", "goblins", "g":
		return Goblin, nil
	}
	return 0, fmt.Errorf("skirmish: unknown faction %q", s)
}

// UnitID addresses a unit for its whole lifetime. IDs are dense and assigned
// in reading order of the starting map.
type UnitID int

// Unit is a combatant. A unit with zero health is dead and gone from the board.
type Unit struct {
	ID      UnitID
	Faction Faction
	Health  int
	Attack  int
	Pos     Coord
}

// Alive reports whether the unit still has health left.
func (u Unit) Alive() bool { return u.Health > 0 }

// registry owns the unit arena. The board's Occupied cells are its
// position index, so every mutation goes through move or remove to keep
// both views in step.
type registry struct {
	board *Board
	units []Unit
	live  [2]int
}

func (r *registry) unit(id UnitID) *Unit {
	return &r.units[id]
}

// at returns the id of the unit standing on c.
func (r *registry) at(c Coord) (UnitID, bool) {
	cell := r.board.At(c)
	if cell.Kind != Occupied {
		return 0, false
	}
	return cell.Unit, true
}

// enemyAt returns the id of a unit hostile to f standing on c.
func (r *registry) enemyAt(c Coord, f Faction) (UnitID, bool) {
	id, ok := r.at(c)
	if !ok || r.units[id].Faction == f {
		return 0, false
	}
	return id, true
}

func (r *registry) move(id UnitID, to Coord) {
	u := &r.units[id]
	if r.board.At(to).Kind != Empty {
		panic(invariantf("unit %d moving from %s onto %s cell %s", id, u.Pos, r.board.At(to).Kind, to))
	}
	r.board.set(u.Pos, Cell{Kind: Empty})
	r.board.set(to, Cell{Kind: Occupied, Unit: id})
	u.Pos = to
}

func (r *registry) remove(id UnitID) {
	u := &r.units[id]
	if cell := r.board.At(u.Pos); cell.Kind != Occupied || cell.Unit != id {
		panic(invariantf("dead unit %d not found at %s", id, u.Pos))
	}
	r.board.set(u.Pos, Cell{Kind: Empty})
	r.live[u.Faction]--
}
