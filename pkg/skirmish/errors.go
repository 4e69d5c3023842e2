package skirmish

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAttack    = errors.New("skirmish: attack power must be positive")
	ErrInvalidHealth    = errors.New("skirmish: health must be positive")
	ErrRoundLimit       = errors.New("skirmish: round limit exceeded")
	ErrDeadlock         = errors.New("skirmish: factions cannot reach each other")
	ErrNoViableStrength = errors.New("skirmish: no strength keeps the protected faction intact")
)

// InvariantError reports a broken board/registry invariant. The simulator
// panics with it: a run that hits one has no trustworthy score.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "skirmish: invariant violated: " + e.Msg
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}
