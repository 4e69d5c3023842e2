package skirmish

// CellKind classifies a board cell.
type CellKind uint8

const (
	Wall CellKind = iota
	Empty
	Occupied
)

func (k CellKind) String() string {
	switch k {
	case Wall:
		return "wall"
	case Empty:
		return "empty"
	case Occupied:
		return "occupied"
	}
	return "unknown"
}

// Cell is the content of one board square. Unit is meaningful only when
// Kind is Occupied.
type Cell struct {
	Kind CellKind
	Unit UnitID
}

// Board is a fixed-size grid of cells stored row-major.
type Board struct {
	width  int
	height int
	cells  []Cell
}

func newBoard(width, height int) *Board {
	return &Board{width: width, height: height, cells: make([]Cell, width*height)}
}

// Width returns the number of columns.
func (b *Board) Width() int { return b.width }

// Height returns the number of rows.
func (b *Board) Height() int { return b.height }

// InBounds reports whether c lies on the board.
func (b *Board) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Col >= 0 && c.Row < b.height && c.Col < b.width
}

func (b *Board) index(c Coord) int {
	return c.Row*b.width + c.Col
}

// At returns the cell at c. c must be in bounds.
func (b *Board) At(c Coord) Cell {
	return b.cells[b.index(c)]
}

func (b *Board) set(c Coord, cell Cell) {
	b.cells[b.index(c)] = cell
}

// neighbors returns the in-bounds orthogonal neighbours of c in reading
// order, packed into the front of the array.
func (b *Board) neighbors(c Coord) ([4]Coord, int) {
	var out [4]Coord
	n := 0
	for _, d := range offsets {
		nc := c.add(d)
		if b.InBounds(nc) {
			out[n] = nc
			n++
		}
	}
	return out, n
}

// Neighbors returns the up to four in-bounds cells above, left, right and
// below c, in that order.
func (b *Board) Neighbors(c Coord) []Coord {
	nb, n := b.neighbors(c)
	out := make([]Coord, n)
	copy(out, nb[:n])
	return out
}

// Clone returns an independent copy of the board.
func (b *Board) Clone() *Board {
	c := &Board{width: b.width, height: b.height, cells: make([]Cell, len(b.cells))}
	copy(c.cells, b.cells)
	return c
}
