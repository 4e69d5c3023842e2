package skirmish

import (
	"context"
	"fmt"
	"sync"
)

// DefaultCalibrationStart is the first strength tried when none is given.
const DefaultCalibrationStart = 4

// CalibrationRequest describes a search for the weakest attack power that
// lets the protected faction win without a single loss.
type CalibrationRequest struct {
	Protected Faction
	// Start is the first candidate strength. Zero means DefaultCalibrationStart.
	Start int
	// Max is the last candidate tried. Zero means the units' health, at
	// which point every hit kills.
	Max int
	// OpponentAttack is the fixed attack power of the other faction.
	// Zero means DefaultAttack.
	OpponentAttack int
	// Options are the base battle options. Attack powers are overridden per
	// attempt and Observer is ignored, since attempts may run concurrently.
	Options Options
}

// Attempt is the result of one candidate strength.
type Attempt struct {
	Strength int
	Outcome  Outcome
	Flawless bool
}

// CalibrationResult is the first flawless attempt.
type CalibrationResult struct {
	Strength int
	Outcome  Outcome
	// Attempts counts candidates from Start through Strength inclusive.
	Attempts int
}

func (req CalibrationRequest) withDefaults() CalibrationRequest {
	req.Options = req.Options.withDefaults()
	req.Options.Observer = nil
	if req.Start == 0 {
		req.Start = DefaultCalibrationStart
	}
	if req.OpponentAttack == 0 {
		req.OpponentAttack = DefaultAttack
	}
	if req.Max == 0 {
		req.Max = max(req.Options.Health, req.Start)
	}
	return req
}

// Calibrate tries strengths Start, Start+1, ... one after another and
// returns the first that keeps the protected faction flawless.
func Calibrate(g *Grid, req CalibrationRequest) (CalibrationResult, error) {
	return CalibrateParallel(context.Background(), g, req, 1, nil)
}

// CalibrateParallel evaluates candidate strengths in batches of workers
// independent battles and returns the lowest flawless one, the same answer
// Calibrate gives. onAttempt, if set, sees every evaluated attempt in
// strength order up to and including the winner. ctx is checked between
// batches.
func CalibrateParallel(ctx context.Context, g *Grid, req CalibrationRequest, workers int, onAttempt func(Attempt)) (CalibrationResult, error) {
	req = req.withDefaults()
	if req.Start <= 0 || req.OpponentAttack <= 0 {
		return CalibrationResult{}, fmt.Errorf("%w: start=%d opponent=%d", ErrInvalidAttack, req.Start, req.OpponentAttack)
	}
	if workers < 1 {
		workers = 1
	}

	attempts := make([]Attempt, workers)
	errs := make([]error, workers)
	panics := make([]any, workers)
	for base := req.Start; base <= req.Max; base += workers {
		if err := ctx.Err(); err != nil {
			return CalibrationResult{}, err
		}
		n := min(workers, req.Max-base+1)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() { panics[i] = recover() }()
				attempts[i], errs[i] = attempt(g, req, base+i)
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			// Re-raise worker panics on the caller's goroutine.
			if panics[i] != nil {
				panic(panics[i])
			}
			if errs[i] != nil {
				return CalibrationResult{}, fmt.Errorf("strength %d: %w", base+i, errs[i])
			}
			if onAttempt != nil {
				onAttempt(attempts[i])
			}
			if attempts[i].Flawless {
				return CalibrationResult{
					Strength: attempts[i].Strength,
					Outcome:  attempts[i].Outcome,
					Attempts: attempts[i].Strength - req.Start + 1,
				}, nil
			}
		}
	}
	return CalibrationResult{}, fmt.Errorf("%w: tried %d..%d", ErrNoViableStrength, req.Start, req.Max)
}

// attempt runs one fresh battle with the protected faction at strength.
func attempt(g *Grid, req CalibrationRequest, strength int) (Attempt, error) {
	opts := req.Options.
		WithAttack(req.Protected, strength).
		WithAttack(req.Protected.Opponent(), req.OpponentAttack)
	b, err := NewBattle(g, opts)
	if err != nil {
		return Attempt{}, err
	}
	out, err := b.Run()
	if err != nil {
		return Attempt{}, err
	}
	return Attempt{Strength: strength, Outcome: out, Flawless: out.Flawless(req.Protected)}, nil
}
