package skirmish

import "strconv"

// Coord is a grid cell address. Coordinates order in reading order:
// row first, then column.
type Coord struct {
	Row int
	Col int
}

// Compare returns -1, 0 or 1 depending on whether c sorts before, equal to,
// or after o in reading order.
func (c Coord) Compare(o Coord) int {
	switch {
	case c.Row < o.Row:
		return -1
	case c.Row > o.Row:
		return 1
	case c.Col < o.Col:
		return -1
	case c.Col > o.Col:
		return 1
	}
	return 0
}

// Less reports whether c comes before o in reading order.
func (c Coord) Less(o Coord) bool {
	return c.Compare(o) < 0
}

func (c Coord) String() string {
	return "(" + strconv.Itoa(c.Row) + "," + strconv.Itoa(c.Col) + ")"
}

func (c Coord) add(d Coord) Coord {
	return Coord{Row: c.Row + d.Row, Col: c.Col + d.Col}
}

// offsets lists the orthogonal steps in reading order: up, left, right, down.
var offsets = [4]Coord{
	{Row: -1, Col: 0},
	{Row: 0, Col: -1},
	{Row: 0, Col: 1},
	{Row: 1, Col: 0},
}
