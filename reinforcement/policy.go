package reinforcement

import (
	"errors"
	"fmt"

	"qpath/grid_world"
	"qpath/models"
)

// ErrNoPath is returned when the greedy policy does not reach the goal.
var ErrNoPath = errors.New("policy extraction failed: no path found within step budget")

// ExtractPath walks the greedy policy from the start state, recording each
// pre-step coordinate, and appends the goal once it is reached. The policy is
// deterministic, so revisiting a state means it cycles forever; that, or
// exceeding maxSteps moves, fails with ErrNoPath. maxSteps <= 0 means N*N.
func ExtractPath(
	world *grid_world.GridWorld,
	table ValueReader,
	maxSteps int,
) (path models.Path, err error) {
	if maxSteps <= 0 {
		maxSteps = world.NumStates()
	}

	visited := make(map[int]bool)
	state := world.StartState()
	for !world.IsGoal(state) {
		if len(path) >= maxSteps {
			return path, fmt.Errorf("%w: exceeded %d steps", ErrNoPath, maxSteps)
		}
		if visited[state] {
			return path, fmt.Errorf("%w: policy cycles at %v", ErrNoPath, world.CoordOf(state))
		}
		visited[state] = true

		path = append(path, world.CoordOf(state))
		state, _ = world.Step(state, table.BestAction(state))
	}

	path = append(path, world.CoordOf(state))
	return path, nil
}

// TakeSnapshot copies the greedy values, greedy actions and, if one exists, the greedy path.
func TakeSnapshot(
	world *grid_world.GridWorld,
	table ValueReader,
	episode int,
	maxPathSteps int,
) models.Snapshot {
	size := world.Size()
	snapshot := models.Snapshot{
		Episode: episode,
		Kinds:   world.Cells(),
		Max:     make([][]float64, size),
		Best:    make([][]models.Action, size),
	}
	for row := 0; row < size; row++ {
		snapshot.Max[row] = make([]float64, size)
		snapshot.Best[row] = make([]models.Action, size)
	}

	world.Visit(func(state int, c models.Coord, _ models.CellKind) {
		snapshot.Max[c.Row][c.Col] = table.MaxEstimate(state)
		snapshot.Best[c.Row][c.Col] = table.BestAction(state)
	})

	if path, err := ExtractPath(world, table, maxPathSteps); err == nil {
		snapshot.Path = path
	}
	return snapshot
}
