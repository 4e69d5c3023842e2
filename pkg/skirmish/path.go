package skirmish

// pathfinder holds BFS scratch space sized to the board so repeated
// searches within one battle do not allocate.
type pathfinder struct {
	dist  []int
	queue []Coord
}

func newPathfinder(area int) *pathfinder {
	return &pathfinder{
		dist:  make([]int, area),
		queue: make([]Coord, 0, area),
	}
}

// flood runs a breadth-first search over Empty cells from start, writing
// distances into p.dist (-1 = unreached). The start cell is always seeded
// regardless of its content. Expansion stops past maxDist when it is >= 0.
// visit is called for each reached cell other than start in non-decreasing
// distance order; returning false stops the search after the current level.
func (p *pathfinder) flood(b *Board, start Coord, maxDist int, visit func(c Coord, d int) bool) {
	for i := range p.dist {
		p.dist[i] = -1
	}
	p.queue = append(p.queue[:0], start)
	p.dist[b.index(start)] = 0
	stopAt := -1
	for head := 0; head < len(p.queue); head++ {
		cur := p.queue[head]
		d := p.dist[b.index(cur)]
		if stopAt >= 0 && d > stopAt {
			return
		}
		if d > 0 && visit != nil && !visit(cur, d) {
			stopAt = d
		}
		if maxDist >= 0 && d >= maxDist {
			continue
		}
		nb, n := b.neighbors(cur)
		for _, next := range nb[:n] {
			i := b.index(next)
			if p.dist[i] >= 0 || b.cells[i].Kind != Empty {
				continue
			}
			p.dist[i] = d + 1
			p.queue = append(p.queue, next)
		}
	}
}

// NextStep returns the square the unit of faction f standing on from should
// step into this turn. It reports false when the unit is already next to an
// enemy or no enemy can be reached through open floor.
//
// The destination is the nearest empty square adjacent to an enemy, ties
// broken by reading order. The step is the open neighbour that starts a
// shortest path to that destination, ties broken by reading order.
func (b *Battle) NextStep(from Coord, f Faction) (Coord, bool) {
	nb, n := b.board.neighbors(from)
	for _, c := range nb[:n] {
		if _, ok := b.reg.enemyAt(c, f); ok {
			return Coord{}, false
		}
	}

	var (
		dest     Coord
		destDist = -1
	)
	b.paths.flood(b.board, from, -1, func(c Coord, d int) bool {
		if destDist >= 0 && d > destDist {
			return false
		}
		if !b.touchesEnemy(c, f) {
			return true
		}
		if destDist < 0 || c.Less(dest) {
			dest, destDist = c, d
		}
		return false
	})
	if destDist < 0 {
		return Coord{}, false
	}
	if destDist == 1 {
		return dest, true
	}

	b.paths.flood(b.board, dest, destDist-1, nil)
	var (
		step     Coord
		stepDist = -1
	)
	for _, c := range nb[:n] {
		if b.board.At(c).Kind != Empty {
			continue
		}
		d := b.paths.dist[b.board.index(c)]
		if d < 0 {
			continue
		}
		if stepDist < 0 || d < stepDist {
			step, stepDist = c, d
		}
	}
	if stepDist < 0 {
		panic(invariantf("no first step from %s toward %s at distance %d", from, dest, destDist))
	}
	return step, true
}

func (b *Battle) touchesEnemy(c Coord, f Faction) bool {
	nb, n := b.board.neighbors(c)
	for _, x := range nb[:n] {
		if _, ok := b.reg.enemyAt(x, f); ok {
			return true
		}
	}
	return false
}
