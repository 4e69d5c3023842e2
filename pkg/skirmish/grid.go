package skirmish

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Tile is one square of an unparsed battle map.
type Tile byte

const (
	TileWall   Tile = '#'
	TileOpen   Tile = '.'
	TileElf    Tile = 'E'
	TileGoblin Tile = 'G'
)

// Input errors. They are returned before any simulation starts.
var (
	ErrEmptyGrid      = errors.New("skirmish: empty grid")
	ErrRaggedGrid     = errors.New("skirmish: grid rows differ in length")
	ErrUnknownCell    = errors.New("skirmish: unknown cell")
	ErrMissingFaction = errors.New("skirmish: faction has no units")
)

// Grid is a validated rectangular battle map. It is immutable; every Battle
// built from it gets its own board.
type Grid struct {
	width  int
	height int
	tiles  []Tile
}

// NewGrid validates rows and copies them into a Grid.
func NewGrid(rows [][]Tile) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	g := &Grid{
		width:  len(rows[0]),
		height: len(rows),
		tiles:  make([]Tile, 0, len(rows)*len(rows[0])),
	}
	for r, row := range rows {
		if len(row) != g.width {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRaggedGrid, r, len(row), g.width)
		}
		for c, t := range row {
			switch t {
			case TileWall, TileOpen, TileElf, TileGoblin:
			default:
				return nil, fmt.Errorf("%w %q at %s", ErrUnknownCell, rune(t), Coord{Row: r, Col: c})
			}
			g.tiles = append(g.tiles, t)
		}
	}
	for _, f := range AllFactions() {
		if g.Count(f) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingFaction, f)
		}
	}
	return g, nil
}

// ParseGrid reads the textual map format: one row per line using '#' for
// walls, '.' for open floor, 'E' for elves and 'G' for goblins.
// Trailing blank lines and CRLF line endings are accepted.
func ParseGrid(s string) (*Grid, error) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil, ErrEmptyGrid
	}
	lines := strings.Split(s, "\n")
	rows := make([][]Tile, len(lines))
	for i, line := range lines {
		rows[i] = []Tile(line)
	}
	return NewGrid(rows)
}

// MustParseGrid is ParseGrid for maps known to be valid. It panics on error.
func MustParseGrid(s string) *Grid {
	g, err := ParseGrid(s)
	if err != nil {
		panic(err)
	}
	return g
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// At returns the tile at c. c must be in bounds.
func (g *Grid) At(c Coord) Tile {
	return g.tiles[c.Row*g.width+c.Col]
}

// Count returns how many units of faction f the map places.
func (g *Grid) Count(f Faction) int {
	want := f.tile()
	n := 0
	for _, t := range g.tiles {
		if t == want {
			n++
		}
	}
	return n
}

// String encodes the grid back into its textual form, without a trailing newline.
func (g *Grid) String() string {
	var b strings.Builder
	b.Grow((g.width + 1) * g.height)
	for r := 0; r < g.height; r++ {
		if r > 0 {
			b.WriteByte('\n')
		}
		for _, t := range g.tiles[r*g.width : (r+1)*g.width] {
			b.WriteByte(byte(t))
		}
	}
	return b.String()
}

// Hash returns a hex SHA-256 digest of the canonical text encoding.
// Equal maps hash equal regardless of how their input was formatted.
func (g *Grid) Hash() string {
	sum := sha256.Sum256([]byte(g.String()))
	return hex.EncodeToString(sum[:])
}
