package prediction

import (
	"fmt"

	"github.com/example/smartfit/internal/imageprocessor"
	"github.com/example/smartfit/internal/models"
)

// State is a step of the scale attempt machine:
//
//	Pending -> Trying(size_0) -> Succeeded
//	                          -> Trying(size_1) -> ... -> Exhausted
type State int

const (
	StatePending State = iota
	StateTrying
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateTrying:
		return "trying"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Selection decides which successful scale provides the result.
type Selection string

const (
	// SelectFirst stops at the first scale that classifies successfully.
	SelectFirst Selection = "first"
	// SelectBest tries every scale and keeps the highest mean confidence.
	// Ties keep the earlier scale.
	SelectBest Selection = "best"
)

// ParseSelection accepts "first" or "best".
func ParseSelection(s string) (Selection, error) {
	switch Selection(s) {
	case SelectFirst, SelectBest:
		return Selection(s), nil
	}
	return "", fmt.Errorf("unknown selection policy %q", s)
}

// Attempt records one scale attempt.
type Attempt struct {
	Size   int
	Err    error
	Result *models.PredictionResult
}

// attempts walks the ordered tensors. It is used by a single request and is
// not safe for concurrent use.
type attempts struct {
	selection Selection
	tensors   []imageprocessor.Tensor
	state     State
	next      int
	chosen    *models.PredictionResult
	history   []Attempt
}

func newAttempts(selection Selection, tensors []imageprocessor.Tensor) *attempts {
	return &attempts{selection: selection, tensors: tensors, state: StatePending}
}

// advance moves to the next scale. It returns false once the machine has
// reached a terminal state.
func (a *attempts) advance() (imageprocessor.Tensor, bool) {
	if a.state == StateSucceeded || a.state == StateExhausted {
		return imageprocessor.Tensor{}, false
	}
	if a.next >= len(a.tensors) {
		if a.chosen != nil {
			a.state = StateSucceeded
		} else {
			a.state = StateExhausted
		}
		return imageprocessor.Tensor{}, false
	}
	tensor := a.tensors[a.next]
	a.next++
	a.state = StateTrying
	return tensor, true
}

func (a *attempts) fail(size int, err error) {
	a.history = append(a.history, Attempt{Size: size, Err: err})
}

func (a *attempts) succeed(size int, result *models.PredictionResult) {
	a.history = append(a.history, Attempt{Size: size, Result: result})
	switch a.selection {
	case SelectBest:
		if a.chosen == nil || meanConfidence(result) > meanConfidence(a.chosen) {
			a.chosen = result
		}
	default:
		a.chosen = result
		a.state = StateSucceeded
	}
}

func meanConfidence(r *models.PredictionResult) float64 {
	return (r.SeasonalConfidence + r.SkinToneConfidence) / 2
}
