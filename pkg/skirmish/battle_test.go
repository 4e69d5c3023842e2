package skirmish

import (
	"errors"
	"strings"
	"testing"
)

type classicExample struct {
	name      string
	grid      string
	rounds    int
	remaining int
	score     int
	winner    Faction
	// calibration from strength 4 for the elves; zero when not checked.
	elfStrength int
	calibrated  int
}

var classicExamples = []classicExample{
	{
		name:      "two elves",
		grid:      "#######\n#.G...#\n#...EG#\n#.#.#G#\n#..G#E#\n#.....#\n#######",
		rounds:    47,
		remaining: 590,
		score:     27730,
		winner:    Goblin,

		elfStrength: 15,
		calibrated:  4988,
	},
	{
		name:      "elf stronghold",
		grid:      "#######\n#G..#E#\n#E#E.E#\n#G.##.#\n#...#E#\n#...E.#\n#######",
		rounds:    37,
		remaining: 982,
		score:     36334,
		winner:    Elf,
	},
	{
		name:      "mixed corners",
		grid:      "#######\n#E..EG#\n#.#G.E#\n#E.##E#\n#G..#.#\n#..E#.#\n#######",
		rounds:    46,
		remaining: 859,
		score:     39514,
		winner:    Elf,

		elfStrength: 4,
		calibrated:  31284,
	},
	{
		name:      "goblin column",
		grid:      "#######\n#E.G#.#\n#.#G..#\n#G.#.G#\n#G..#.#\n#...E.#\n#######",
		rounds:    35,
		remaining: 793,
		score:     27755,
		winner:    Goblin,

		elfStrength: 15,
		calibrated:  3478,
	},
	{
		name:      "corridor",
		grid:      "#######\n#.E...#\n#.#..G#\n#.###.#\n#E#G#G#\n#...#G#\n#######",
		rounds:    54,
		remaining: 536,
		score:     28944,
		winner:    Goblin,

		elfStrength: 12,
		calibrated:  6474,
	},
	{
		name:      "large cave",
		grid:      "#########\n#G......#\n#.E.#...#\n#..##..G#\n#...##..#\n#...#...#\n#.G...G.#\n#.....G.#\n#########",
		rounds:    20,
		remaining: 937,
		score:     18740,
		winner:    Goblin,

		elfStrength: 34,
		calibrated:  1140,
	},
}

// layout renders only the tiles of the board, one row per line.
func layout(b *Battle) string {
	var rows []string
	for _, line := range strings.Split(strings.TrimRight(b.Render(), "\n"), "\n") {
		rows = append(rows, strings.SplitN(line, " ", 2)[0])
	}
	return strings.Join(rows, "\n")
}

func stepperName(s Stepper) string {
	if _, ok := s.(NaiveStepper); ok {
		return "naive"
	}
	return "fast-forward"
}

func newTestBattle(t *testing.T, grid string, opts Options) *Battle {
	t.Helper()
	g, err := ParseGrid(grid)
	if err != nil {
		t.Fatalf("ParseGrid: %v", err)
	}
	opts.Paranoid = true
	b, err := NewBattle(g, opts)
	if err != nil {
		t.Fatalf("NewBattle: %v", err)
	}
	return b
}

func TestClassicOutcomes(t *testing.T) {
	for _, ex := range classicExamples {
		for _, stepper := range []Stepper{NaiveStepper{}, FastForwardStepper{}} {
			t.Run(ex.name+"/"+stepperName(stepper), func(t *testing.T) {
				b := newTestBattle(t, ex.grid, Options{Stepper: stepper})
				out, err := b.Run()
				if err != nil {
					t.Fatalf("Run: %v", err)
				}
				if out.Rounds != ex.rounds || out.RemainingHealth != ex.remaining {
					t.Errorf("expected %d rounds x %d health, got %d x %d", ex.rounds, ex.remaining, out.Rounds, out.RemainingHealth)
				}
				if out.Score != ex.score {
					t.Errorf("expected score %d, got %d", ex.score, out.Score)
				}
				if out.Winner != ex.winner {
					t.Errorf("expected %s to win, got %s", ex.winner, out.Winner)
				}
				if out.Survivors[ex.winner.Opponent()] != 0 {
					t.Errorf("loser should have no survivors, got %d", out.Survivors[ex.winner.Opponent()])
				}
			})
		}
	}
}

func TestFastForwardMatchesNaive(t *testing.T) {
	for _, ex := range classicExamples {
		for _, elf := range []int{3, 4, 10, 15, 34} {
			naive := newTestBattle(t, ex.grid, Options{ElfAttack: elf, Stepper: NaiveStepper{}})
			fast := newTestBattle(t, ex.grid, Options{ElfAttack: elf})
			no, err := naive.Run()
			if err != nil {
				t.Fatalf("%s naive: %v", ex.name, err)
			}
			fo, err := fast.Run()
			if err != nil {
				t.Fatalf("%s fast: %v", ex.name, err)
			}
			if no != fo {
				t.Errorf("%s elf=%d: naive %+v, fast-forward %+v", ex.name, elf, no, fo)
			}
			nu, fu := naive.Units(), fast.Units()
			for i := range nu {
				if nu[i] != fu[i] {
					t.Errorf("%s elf=%d: unit %d naive %+v, fast-forward %+v", ex.name, elf, i, nu[i], fu[i])
				}
			}
		}
	}
}

func TestFastForwardSkipsRounds(t *testing.T) {
	b := newTestBattle(t, "#######\n#.E.G.#\n#######", Options{})
	var reports []StepReport
	b.opts.Observer = func(r StepReport) { reports = append(reports, r) }
	out, err := b.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Round 1 closes the gap and round 2 is the first pure exchange. The
	// rest is replayed until the round where the elf lands the killing blow.
	skipped := 0
	for _, r := range reports {
		skipped += r.FastForwarded
	}
	if skipped == 0 {
		t.Fatal("expected fast-forward to replay at least one round")
	}
	if len(reports) > 5 {
		t.Errorf("expected a handful of steps, got %d", len(reports))
	}
	naive := newTestBattle(t, "#######\n#.E.G.#\n#######", Options{Stepper: NaiveStepper{}})
	want, _ := naive.Run()
	if out != want {
		t.Errorf("fast-forward %+v, naive %+v", out, want)
	}
}

func TestEliminationRoundDoesNotCount(t *testing.T) {
	// The elf steps next to the goblin and kills it with one hit. Nobody
	// else is left to act, so the round completes and counts.
	b := newTestBattle(t, "#####\n#E.G#\n#####", Options{ElfAttack: 200})
	out, err := b.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Rounds != 1 || out.Winner != Elf || out.Score != 200 {
		t.Fatalf("expected 1 round, elf win, score 200; got %+v", out)
	}

	// Mirror image: the goblin acts first and kills, the dead elf is
	// skipped, and the round still counts.
	b = newTestBattle(t, "#####\n#G.E#\n#####", Options{GoblinAttack: 200})
	out, err = b.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Rounds != 1 || out.Winner != Goblin || out.Score != 200 {
		t.Fatalf("expected 1 round, goblin win, score 200; got %+v", out)
	}

	// Two goblins: in round 2 the first kills the elf while the second
	// still waits to act, so that round stops early and is not counted.
	b = newTestBattle(t, "######\n#G..E#\n#...G#\n######", Options{GoblinAttack: 100})
	st := b.Round()
	if !st.Completed || b.Rounds() != 1 {
		t.Fatalf("expected first round to complete, got %+v rounds=%d", st, b.Rounds())
	}
	if b.State() != Running {
		t.Fatal("elf should survive round 1")
	}
	st = b.Round()
	if st.Completed {
		t.Fatalf("expected round 2 to stop early, got %+v", st)
	}
	if b.Rounds() != 1 || b.State() != Decided {
		t.Fatalf("expected decided after 1 round, got rounds=%d state=%s", b.Rounds(), b.State())
	}
}

func TestRoundMovementSequence(t *testing.T) {
	b := newTestBattle(t, strings.Join([]string{
		"#########",
		"#G..G..G#",
		"#.......#",
		"#.......#",
		"#G..E..G#",
		"#.......#",
		"#.......#",
		"#G..G..G#",
		"#########",
	}, "\n"), Options{Stepper: NaiveStepper{}})

	want := [][]string{
		{
			"#########",
			"#.G...G.#",
			"#...G...#",
			"#...E..G#",
			"#.G.....#",
			"#.......#",
			"#G..G..G#",
			"#.......#",
			"#########",
		},
		{
			"#########",
			"#..G.G..#",
			"#...G...#",
			"#.G.E.G.#",
			"#.......#",
			"#G..G..G#",
			"#.......#",
			"#.......#",
			"#########",
		},
		{
			"#########",
			"#.......#",
			"#..GGG..#",
			"#..GEG..#",
			"#G..G...#",
			"#......G#",
			"#.......#",
			"#.......#",
			"#########",
		},
	}
	for i, rows := range want {
		b.Round()
		if got := layout(b); got != strings.Join(rows, "\n") {
			t.Fatalf("after round %d:\n%s\nwant:\n%s", i+1, got, strings.Join(rows, "\n"))
		}
	}
}

func TestRunIdempotent(t *testing.T) {
	g := MustParseGrid(classicExamples[5].grid)
	var first Outcome
	for i := 0; i < 5; i++ {
		b, err := NewBattle(g, DefaultOptions())
		if err != nil {
			t.Fatalf("NewBattle: %v", err)
		}
		out, err := b.Run()
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if i == 0 {
			first = out
			continue
		}
		if out != first {
			t.Fatalf("run %d: %+v differs from first %+v", i, out, first)
		}
	}
}

func TestBattlesDoNotShareState(t *testing.T) {
	g := MustParseGrid(classicExamples[0].grid)
	a, _ := NewBattle(g, DefaultOptions())
	b, _ := NewBattle(g, DefaultOptions())
	a.Round()
	if layout(b) != g.String() {
		t.Error("stepping one battle changed another built from the same grid")
	}
}

func TestNewBattleRejectsBadOptions(t *testing.T) {
	g := MustParseGrid("#####\n#E.G#\n#####")
	if _, err := NewBattle(g, Options{ElfAttack: -1}); !errors.Is(err, ErrInvalidAttack) {
		t.Errorf("expected ErrInvalidAttack, got %v", err)
	}
	if _, err := NewBattle(g, Options{Health: -5}); !errors.Is(err, ErrInvalidHealth) {
		t.Errorf("expected ErrInvalidHealth, got %v", err)
	}
}

func TestNewBattleAssignsUnits(t *testing.T) {
	b := newTestBattle(t, "#####\n#G.E#\n#E..#\n#####", Options{ElfAttack: 7, Health: 50})
	units := b.Units()
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}
	want := []Unit{
		{ID: 0, Faction: Goblin, Health: 50, Attack: DefaultAttack, Pos: Coord{1, 1}},
		{ID: 1, Faction: Elf, Health: 50, Attack: 7, Pos: Coord{1, 3}},
		{ID: 2, Faction: Elf, Health: 50, Attack: 7, Pos: Coord{2, 1}},
	}
	for i := range want {
		if units[i] != want[i] {
			t.Errorf("unit %d = %+v, want %+v", i, units[i], want[i])
		}
	}
	if b.Live(Elf) != 2 || b.Live(Goblin) != 1 {
		t.Errorf("live counts elf=%d goblin=%d", b.Live(Elf), b.Live(Goblin))
	}
}

func TestRunDeadlock(t *testing.T) {
	b := newTestBattle(t, "#######\n#E.#.G#\n#######", Options{})
	_, err := b.Run()
	if !errors.Is(err, ErrDeadlock) {
		t.Fatalf("expected ErrDeadlock, got %v", err)
	}
}

func TestRunRoundLimit(t *testing.T) {
	b := newTestBattle(t, classicExamples[0].grid, Options{MaxRounds: 10})
	_, err := b.Run()
	if !errors.Is(err, ErrRoundLimit) {
		t.Fatalf("expected ErrRoundLimit, got %v", err)
	}
}

func TestCheckDetectsDivergence(t *testing.T) {
	b := newTestBattle(t, "#####\n#E.G#\n#####", Options{})
	if err := b.Check(); err != nil {
		t.Fatalf("fresh battle: %v", err)
	}
	b.reg.units[0].Health = 0
	var inv *InvariantError
	if err := b.Check(); !errors.As(err, &inv) {
		t.Fatalf("expected InvariantError for dead unit on board, got %v", err)
	}
}

func TestAttackOnDeadUnitPanics(t *testing.T) {
	b := newTestBattle(t, "####\n#EG#\n####", Options{ElfAttack: 200})
	if !b.attack(0, 1) {
		t.Fatal("expected goblin to die")
	}
	defer func() {
		if _, ok := recover().(*InvariantError); !ok {
			t.Fatal("expected InvariantError panic")
		}
	}()
	b.attack(0, 1)
}

func TestRender(t *testing.T) {
	b := newTestBattle(t, "#####\n#G.E#\n#####", Options{})
	want := "#####\n#G.E#   G(200), E(200)\n#####\n"
	if got := b.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
