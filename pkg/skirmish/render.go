package skirmish

import (
	"fmt"
	"strings"
)

// Render draws the current board, one row per line, followed by the health
// of each unit on that row:
//
//	#G.E#   G(200), E(131)
func (b *Battle) Render() string {
	var sb strings.Builder
	for r := 0; r < b.board.height; r++ {
		var hp []string
		for c := 0; c < b.board.width; c++ {
			cell := b.board.At(Coord{Row: r, Col: c})
			switch cell.Kind {
			case Wall:
				sb.WriteByte(byte(TileWall))
			case Empty:
				sb.WriteByte(byte(TileOpen))
			case Occupied:
				u := b.reg.units[cell.Unit]
				t := u.Faction.tile()
				sb.WriteByte(byte(t))
				hp = append(hp, fmt.Sprintf("%c(%d)", t, u.Health))
			}
		}
		if len(hp) > 0 {
			sb.WriteString("   ")
			sb.WriteString(strings.Join(hp, ", "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
