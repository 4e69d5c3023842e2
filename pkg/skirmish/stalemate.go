package skirmish

// StepReport describes what one Stepper.Step did.
type StepReport struct {
	// RoundStats of the ordinary round that opened the step.
	RoundStats
	// FastForwarded counts rounds replayed from fixed attack pairs after
	// the ordinary round.
	FastForwarded int
	// Rounds is the completed-round counter after the step.
	Rounds int
}

// Stepper advances a battle by at least one round.
type Stepper interface {
	Step(b *Battle) StepReport
}

// NaiveStepper plays exactly one ordinary round per step.
type NaiveStepper struct{}

func (NaiveStepper) Step(b *Battle) StepReport {
	st := b.Round()
	return StepReport{RoundStats: st, Rounds: b.rounds}
}

// FastForwardStepper plays one ordinary round and, if nobody moved and
// nobody died, replays the same attacks round after round without
// pathfinding until the next round would kill someone. That lethal round is
// left for the next step to play ordinarily.
type FastForwardStepper struct{}

func (FastForwardStepper) Step(b *Battle) StepReport {
	st := b.Round()
	rep := StepReport{RoundStats: st}
	if st.Completed && st.Moves == 0 && st.Deaths == 0 && b.state == Running {
		rep.FastForwarded = b.fastForward()
	}
	rep.Rounds = b.rounds
	return rep
}

type attackPair struct {
	attacker UnitID
	defender UnitID
}

// attackPairs lists, in turn order, who each living unit would hit right now.
func (b *Battle) attackPairs() []attackPair {
	var pairs []attackPair
	for _, id := range b.turnOrder() {
		u := b.reg.unit(id)
		if target, ok := b.SelectTarget(u.Pos, u.Faction); ok {
			pairs = append(pairs, attackPair{attacker: id, defender: target})
		}
	}
	return pairs
}

// fastForward replays the current attack pairs while a dry run on scratch
// health shows the round would neither kill a unit nor change anyone's
// choice of target. It returns the number of rounds applied. The board does
// not change while it runs, so nobody could have moved either.
func (b *Battle) fastForward() int {
	pairs := b.attackPairs()
	if len(pairs) == 0 {
		return 0
	}
	scratch := make([]int, len(b.reg.units))
	skipped := 0
	for b.rounds < b.maxRounds {
		for i := range b.reg.units {
			scratch[i] = b.reg.units[i].Health
		}
		for _, p := range pairs {
			a := b.reg.unit(p.attacker)
			if t, _ := b.selectTarget(a.Pos, a.Faction, scratch); t != p.defender {
				return skipped
			}
			scratch[p.defender] -= a.Attack
			if scratch[p.defender] <= 0 {
				return skipped
			}
		}
		for _, p := range pairs {
			b.attack(p.attacker, p.defender)
		}
		b.rounds++
		skipped++
	}
	return skipped
}
