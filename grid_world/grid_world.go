package grid_world

import (
	"errors"
	"fmt"
	"math"

	"qpath/models"
)

// Rewards is the reward scheme, evaluated on the kind of the cell an action lands in.
type Rewards struct {
	Hazard float64 `yaml:"hazard"`
	Goal   float64 `yaml:"goal"`
	Step   float64 `yaml:"step"`
}

// Default rewards
const (
	HAZARD_REWARD = -100
	GOAL_REWARD   = 100
	STEP_REWARD   = -1
)

// DefaultRewards returns the default reward scheme: -100 hazard, +100 goal, -1 otherwise.
func DefaultRewards() Rewards {
	return Rewards{
		Hazard: HAZARD_REWARD,
		Goal:   GOAL_REWARD,
		Step:   STEP_REWARD,
	}
}

// Validate fails for non-finite rewards, which would poison the value table with NaN.
func (r Rewards) Validate() error {
	for name, val := range map[string]float64{"hazard": r.Hazard, "goal": r.Goal, "step": r.Step} {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s reward must be finite, got %v", name, val)
		}
	}
	return nil
}

// A small grid for development and tests.
var DebugGrid []string = []string{
	"S-O-",
	"--O-",
	"-O--",
	"---G",
}

// Errors returned when a cell matrix does not describe a valid grid world.
var (
	ErrNotSquare   = errors.New("grid is not square")
	ErrStartCount  = errors.New("grid must contain exactly one start cell")
	ErrGoalCount   = errors.New("grid must contain exactly one goal cell")
	ErrUnknownCell = errors.New("unknown cell kind")
)

// GridWorld is the deterministic environment: an immutable square grid of cell kinds,
// the mapping between states and coordinates, and the transition/reward function.
// States are integers in [0, N*N), state = row*N + col.
type GridWorld struct {
	size    int
	cells   [][]models.CellKind
	start   int
	goal    int
	rewards Rewards
}

// NewGridWorld validates and copies the passed cell matrix.
func NewGridWorld(
	cells [][]models.CellKind,
	rewards Rewards,
) (*GridWorld, error) {
	size := len(cells)
	if size == 0 {
		return nil, ErrNotSquare
	}
	if err := rewards.Validate(); err != nil {
		return nil, err
	}

	world := &GridWorld{
		size:    size,
		cells:   make([][]models.CellKind, size),
		rewards: rewards,
	}

	starts, goals := 0, 0
	for row := range cells {
		if len(cells[row]) != size {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrNotSquare, row, len(cells[row]), size)
		}
		world.cells[row] = make([]models.CellKind, size)
		for col, kind := range cells[row] {
			if !kind.IsValid() {
				return nil, fmt.Errorf("%w %q at (%d,%d)", ErrUnknownCell, rune(kind), row, col)
			}
			switch kind {
			case models.START:
				starts++
				world.start = row*size + col
			case models.GOAL:
				goals++
				world.goal = row*size + col
			}
			world.cells[row][col] = kind
		}
	}

	if starts != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrStartCount, starts)
	}
	if goals != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrGoalCount, goals)
	}

	return world, nil
}

// Convert parses string rows (one rune per cell) into a cell matrix,
// e.g. DebugGrid. Row 0 is the first string.
func Convert(rows []string) (cells [][]models.CellKind) {
	cells = make([][]models.CellKind, len(rows))
	for i, row := range rows {
		for _, r := range row {
			cells[i] = append(cells[i], models.CellKind(r))
		}
	}
	return
}

// Size is the side length N.
func (world *GridWorld) Size() int {
	return world.size
}

// NumStates is N*N.
func (world *GridWorld) NumStates() int {
	return world.size * world.size
}

// Rewards returns the reward scheme.
func (world *GridWorld) Rewards() Rewards {
	return world.rewards
}

// StartState is the fixed initial state of every episode and of path extraction.
func (world *GridWorld) StartState() int {
	return world.start
}

// GoalState is the single terminal state.
func (world *GridWorld) GoalState() int {
	return world.goal
}

// StateOf maps a coordinate to its state. Out-of-range input is a programming error and panics.
func (world *GridWorld) StateOf(row, col int) int {
	if row < 0 || row >= world.size || col < 0 || col >= world.size {
		panic(fmt.Sprintf("coordinate (%d,%d) out of range for %dx%d grid", row, col, world.size, world.size))
	}
	return row*world.size + col
}

// CoordOf maps a state to its coordinate. Out-of-range input is a programming error and panics.
func (world *GridWorld) CoordOf(state int) models.Coord {
	world.mustState(state)
	return models.Coord{
		Row: state / world.size,
		Col: state % world.size,
	}
}

// KindOf returns the cell kind of a state.
func (world *GridWorld) KindOf(state int) models.CellKind {
	c := world.CoordOf(state)
	return world.cells[c.Row][c.Col]
}

// KindAt returns the cell kind at a coordinate.
func (world *GridWorld) KindAt(c models.Coord) models.CellKind {
	return world.KindOf(world.StateOf(c.Row, c.Col))
}

// IsGoal reports whether the state is the goal, which terminates episodes.
func (world *GridWorld) IsGoal(state int) bool {
	return state == world.goal
}

// Step is the transition and reward function. Movement saturates at the grid
// edges: moving off an edge leaves that coordinate unchanged. The reward is
// determined by the kind of the destination cell. Step has no side effects.
func (world *GridWorld) Step(state int, action models.Action) (next int, reward float64) {
	c := world.CoordOf(state)
	switch action {
	case models.UP:
		c.Row = max(c.Row-1, 0)
	case models.DOWN:
		c.Row = min(c.Row+1, world.size-1)
	case models.LEFT:
		c.Col = max(c.Col-1, 0)
	case models.RIGHT:
		c.Col = min(c.Col+1, world.size-1)
	default:
		panic(fmt.Sprintf("invalid action %d", int(action)))
	}

	next = world.StateOf(c.Row, c.Col)
	reward = world.getReward(world.cells[c.Row][c.Col])
	return
}

func (world *GridWorld) getReward(target models.CellKind) (reward float64) {
	switch target {
	case models.HAZARD:
		reward = world.rewards.Hazard
	case models.GOAL:
		reward = world.rewards.Goal
	default:
		reward = world.rewards.Step
	}
	return
}

// Cells returns a copy of the cell matrix, indexed [row][col].
func (world *GridWorld) Cells() [][]models.CellKind {
	cells := make([][]models.CellKind, world.size)
	for row := range world.cells {
		cells[row] = append([]models.CellKind(nil), world.cells[row]...)
	}
	return cells
}

// Visit calls fn for every state in ascending order.
func (world *GridWorld) Visit(fn func(state int, c models.Coord, kind models.CellKind)) {
	for row := range world.cells {
		for col, kind := range world.cells[row] {
			fn(row*world.size+col, models.Coord{Row: row, Col: col}, kind)
		}
	}
}

func (world *GridWorld) mustState(state int) {
	if state < 0 || state >= world.NumStates() {
		panic(fmt.Sprintf("state %d out of range [0,%d)", state, world.NumStates()))
	}
}
