package skirmish

// SelectTarget picks the enemy of faction f adjacent to at with the lowest
// health. Equal health falls back to reading order of the enemy's square.
func (b *Battle) SelectTarget(at Coord, f Faction) (UnitID, bool) {
	return b.selectTarget(at, f, nil)
}

// selectTarget is SelectTarget with an optional health override, used by
// the stalemate dry run to ask what a unit would pick against scratch health.
func (b *Battle) selectTarget(at Coord, f Faction, health []int) (UnitID, bool) {
	var (
		best   UnitID
		bestHP int
		found  bool
	)
	nb, n := b.board.neighbors(at)
	for _, c := range nb[:n] {
		id, ok := b.reg.enemyAt(c, f)
		if !ok {
			continue
		}
		hp := b.reg.units[id].Health
		if health != nil {
			hp = health[id]
		}
		if !found || hp < bestHP {
			best, bestHP, found = id, hp, true
		}
	}
	return best, found
}
