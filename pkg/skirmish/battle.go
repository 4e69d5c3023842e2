// Package skirmish simulates a deterministic two-faction melee on a grid of
// walls and open floor. Units step toward the nearest reachable enemy and
// attack adjacent ones until one faction is gone; every tie is broken by
// reading order so a map and a pair of attack powers have exactly one
// outcome.
package skirmish

import (
	"fmt"
)

const (
	// DefaultHealth is every unit's starting health.
	DefaultHealth = 200
	// DefaultAttack is the base attack power of both factions.
	DefaultAttack = 3
)

// State is the lifecycle of a battle.
type State uint8

const (
	Running State = iota
	Decided
)

func (s State) String() string {
	if s == Decided {
		return "decided"
	}
	return "running"
}

// Options tune a battle. Zero values select the defaults.
type Options struct {
	ElfAttack    int
	GoblinAttack int
	Health       int

	// MaxRounds bounds Run. The default is far beyond what any board that
	// can terminate needs: width * height * health.
	MaxRounds int

	// Stepper chooses how Run advances. Nil means FastForwardStepper.
	Stepper Stepper

	// Paranoid verifies board/registry consistency after every round and
	// panics on the first violation.
	Paranoid bool

	// Observer, if set, receives a report after every step of Run.
	Observer func(StepReport)
}

// DefaultOptions returns the classic rules: 200 health, attack 3 each side.
func DefaultOptions() Options {
	return Options{ElfAttack: DefaultAttack, GoblinAttack: DefaultAttack, Health: DefaultHealth}
}

// WithAttack returns a copy of o with faction f's attack power set to a.
func (o Options) WithAttack(f Faction, a int) Options {
	if f == Elf {
		o.ElfAttack = a
	} else {
		o.GoblinAttack = a
	}
	return o
}

// Attack returns the attack power o gives faction f.
func (o Options) Attack(f Faction) int {
	if f == Elf {
		return o.ElfAttack
	}
	return o.GoblinAttack
}

func (o Options) withDefaults() Options {
	if o.ElfAttack == 0 {
		o.ElfAttack = DefaultAttack
	}
	if o.GoblinAttack == 0 {
		o.GoblinAttack = DefaultAttack
	}
	if o.Health == 0 {
		o.Health = DefaultHealth
	}
	if o.Stepper == nil {
		o.Stepper = FastForwardStepper{}
	}
	return o
}

// RoundStats summarises one ordinary round.
type RoundStats struct {
	Moves   int
	Attacks int
	Deaths  int
	// Completed is false when the round stopped early because a faction
	// had already been wiped out. Such a round does not count.
	Completed bool
}

// Battle is one simulation: the board, the unit arena, and the round
// counter. It is single-threaded; run independent battles for concurrency.
type Battle struct {
	board     *Board
	reg       registry
	paths     *pathfinder
	opts      Options
	maxRounds int

	initial [2]int
	rounds  int
	state   State
	winner  Faction

	order []UnitID
}

// NewBattle places one unit per unit tile of g and returns a battle ready
// to run. Unit ids follow reading order of the starting map.
func NewBattle(g *Grid, opts Options) (*Battle, error) {
	opts = opts.withDefaults()
	if opts.ElfAttack < 0 || opts.GoblinAttack < 0 {
		return nil, fmt.Errorf("%w: elf=%d goblin=%d", ErrInvalidAttack, opts.ElfAttack, opts.GoblinAttack)
	}
	if opts.Health < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHealth, opts.Health)
	}

	board := newBoard(g.width, g.height)
	b := &Battle{
		board: board,
		reg:   registry{board: board},
		paths: newPathfinder(g.width * g.height),
		opts:  opts,
	}
	for i, t := range g.tiles {
		c := Coord{Row: i / g.width, Col: i % g.width}
		switch t {
		case TileWall:
			board.set(c, Cell{Kind: Wall})
		case TileOpen:
			board.set(c, Cell{Kind: Empty})
		case TileElf, TileGoblin:
			f := Elf
			if t == TileGoblin {
				f = Goblin
			}
			id := UnitID(len(b.reg.units))
			b.reg.units = append(b.reg.units, Unit{
				ID:      id,
				Faction: f,
				Health:  opts.Health,
				Attack:  opts.Attack(f),
				Pos:     c,
			})
			b.reg.live[f]++
			board.set(c, Cell{Kind: Occupied, Unit: id})
		}
	}
	b.initial = b.reg.live
	b.order = make([]UnitID, 0, len(b.reg.units))

	b.maxRounds = opts.MaxRounds
	if b.maxRounds <= 0 {
		b.maxRounds = g.width * g.height * opts.Health
	}
	if b.eliminated() {
		b.decide()
	}
	return b, nil
}

// Board exposes the live board for read-only inspection.
func (b *Battle) Board() *Board { return b.board }

// Rounds returns the number of completed rounds.
func (b *Battle) Rounds() int { return b.rounds }

// State returns whether the battle is still running.
func (b *Battle) State() State { return b.state }

// Live returns how many units of f are still alive.
func (b *Battle) Live(f Faction) int { return b.reg.live[f] }

// Unit returns a copy of the unit with the given id.
func (b *Battle) Unit(id UnitID) Unit { return b.reg.units[id] }

// Units returns a copy of every unit, dead or alive, indexed by id.
func (b *Battle) Units() []Unit {
	out := make([]Unit, len(b.reg.units))
	copy(out, b.reg.units)
	return out
}

func (b *Battle) eliminated() bool {
	return b.reg.live[Elf] == 0 || b.reg.live[Goblin] == 0
}

func (b *Battle) decide() {
	b.state = Decided
	b.winner = Elf
	if b.reg.live[Elf] == 0 {
		b.winner = Goblin
	}
}

// turnOrder snapshots the living units in reading order of their current squares.
func (b *Battle) turnOrder() []UnitID {
	b.order = b.order[:0]
	for _, cell := range b.board.cells {
		if cell.Kind == Occupied {
			b.order = append(b.order, cell.Unit)
		}
	}
	return b.order
}

// Round plays one ordinary round: every unit alive at the start acts once in
// reading order of its starting square, moving then attacking. The round
// stops without counting as soon as a unit about to act finds one faction
// wiped out.
func (b *Battle) Round() RoundStats {
	var st RoundStats
	if b.state == Decided {
		return st
	}
	for _, id := range b.turnOrder() {
		u := b.reg.unit(id)
		if !u.Alive() {
			continue
		}
		if b.eliminated() {
			b.decide()
			return st
		}
		if step, ok := b.NextStep(u.Pos, u.Faction); ok {
			b.reg.move(id, step)
			st.Moves++
		}
		if target, ok := b.SelectTarget(u.Pos, u.Faction); ok {
			st.Attacks++
			if b.attack(id, target) {
				st.Deaths++
			}
		}
	}
	b.rounds++
	st.Completed = true
	if b.eliminated() {
		b.decide()
	}
	if b.opts.Paranoid {
		if err := b.Check(); err != nil {
			panic(err)
		}
	}
	return st
}

// Run steps the battle until one faction is eliminated.
func (b *Battle) Run() (Outcome, error) {
	for b.state == Running {
		if b.rounds >= b.maxRounds {
			return Outcome{}, fmt.Errorf("%w: %d rounds", ErrRoundLimit, b.rounds)
		}
		rep := b.opts.Stepper.Step(b)
		if b.opts.Observer != nil {
			b.opts.Observer(rep)
		}
		if rep.Completed && rep.Moves == 0 && rep.Attacks == 0 && b.state == Running {
			return Outcome{}, fmt.Errorf("%w after %d rounds", ErrDeadlock, b.rounds)
		}
	}
	return b.Outcome(), nil
}

// Outcome reports the current accounting. Winner is meaningful only once
// the battle is Decided.
func (b *Battle) Outcome() Outcome {
	o := Outcome{
		Winner:  b.winner,
		Decided: b.state == Decided,
		Rounds:  b.rounds,
		Initial: b.initial,
	}
	for _, u := range b.reg.units {
		if u.Alive() {
			o.RemainingHealth += u.Health
			o.Survivors[u.Faction]++
		}
	}
	o.Score = o.RemainingHealth * o.Rounds
	return o
}

// Check verifies that the board and the unit arena agree: every living unit
// occupies exactly its own square, no dead unit remains on the board, and
// live counts match.
func (b *Battle) Check() error {
	var live [2]int
	for _, u := range b.reg.units {
		cell := b.board.At(u.Pos)
		onBoard := cell.Kind == Occupied && cell.Unit == u.ID
		switch {
		case u.Health < 0:
			return invariantf("unit %d has negative health %d", u.ID, u.Health)
		case u.Alive() && !onBoard:
			return invariantf("unit %d alive but board has %s at %s", u.ID, cell.Kind, u.Pos)
		case !u.Alive() && onBoard:
			return invariantf("dead unit %d still occupies %s", u.ID, u.Pos)
		}
		if u.Alive() {
			live[u.Faction]++
		}
	}
	for i, cell := range b.board.cells {
		if cell.Kind != Occupied {
			continue
		}
		c := Coord{Row: i / b.board.width, Col: i % b.board.width}
		if int(cell.Unit) >= len(b.reg.units) {
			return invariantf("board references unknown unit %d at %s", cell.Unit, c)
		}
		if u := b.reg.units[cell.Unit]; u.Pos != c {
			return invariantf("board has unit %d at %s but unit is at %s", u.ID, c, u.Pos)
		}
	}
	if live != b.reg.live {
		return invariantf("live counts %v, registry says %v", live, b.reg.live)
	}
	return nil
}
