package reinforcement

import (
	"fmt"

	"qpath/models"
)

// ValueReader is the read-only view of a value table, as used by path extraction and views.
type ValueReader interface {
	Estimate(state int, action models.Action) float64
	BestAction(state int) models.Action
	MaxEstimate(state int) float64
}

// ValueTable is the tabular action-value function: one estimate per (state, action),
// all initialized to zero. It is owned and mutated by a single Trainer; it is not
// safe for concurrent use.
type ValueTable struct {
	values [][models.NUM_ACTIONS]float64
}

var _ ValueReader = (*ValueTable)(nil)

// NewValueTable returns a zeroed table for numStates states.
func NewValueTable(numStates int) *ValueTable {
	return &ValueTable{
		values: make([][models.NUM_ACTIONS]float64, numStates),
	}
}

// NumStates is the number of states addressed by the table.
func (vt *ValueTable) NumStates() int {
	return len(vt.values)
}

// Estimate returns the current estimate for (state, action).
func (vt *ValueTable) Estimate(state int, action models.Action) float64 {
	vt.mustIndex(state, action)
	return vt.values[state][action]
}

// Update replaces the estimate for (state, action).
func (vt *ValueTable) Update(state int, action models.Action, value float64) {
	vt.mustIndex(state, action)
	vt.values[state][action] = value
}

// BestAction returns the action with the highest estimate. Ties go to the lowest
// action index, so extraction is reproducible for a given table.
func (vt *ValueTable) BestAction(state int) models.Action {
	vt.mustIndex(state, models.UP)
	best := models.UP
	for _, action := range models.Actions[1:] {
		if vt.values[state][action] > vt.values[state][best] {
			best = action
		}
	}
	return best
}

// MaxEstimate returns the highest estimate over the actions of a state,
// i.e. the greedy value of the state.
func (vt *ValueTable) MaxEstimate(state int) float64 {
	return vt.Estimate(state, vt.BestAction(state))
}

func (vt *ValueTable) mustIndex(state int, action models.Action) {
	if state < 0 || state >= len(vt.values) {
		panic(fmt.Sprintf("state %d out of range [0,%d)", state, len(vt.values)))
	}
	if action < 0 || action >= models.NUM_ACTIONS {
		panic(fmt.Sprintf("action %d out of range [0,%d)", int(action), models.NUM_ACTIONS))
	}
}
