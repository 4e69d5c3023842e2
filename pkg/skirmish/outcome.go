package skirmish

// Outcome is the result of a battle.
type Outcome struct {
	Winner          Faction
	Decided         bool
	Rounds          int
	RemainingHealth int
	// Score is RemainingHealth * Rounds.
	Score     int
	Initial   [2]int
	Survivors [2]int
}

// Losses returns how many units of f died.
func (o Outcome) Losses(f Faction) int {
	return o.Initial[f] - o.Survivors[f]
}

// Flawless reports whether f won without losing a single unit.
func (o Outcome) Flawless(f Faction) bool {
	return o.Decided && o.Losses(f) == 0 && o.Survivors[f.Opponent()] == 0
}
