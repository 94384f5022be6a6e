// cell_views contains views derived from the CellGrid view-model.
package cell_views

import (
	"qpath/models"
)

// Cell is a grid cell reduced to what the views display. X is the column and Y
// the row, which is also the svg orientation: [0][0] is the top left cell.
// Cell fields should be immediately usable as view parameters.
type Cell struct {
	X, Y                int
	Max                 float64
	PolicyArrowRotation int
	Fill                string
	OnPath              bool
}

// CellGrid is the view-model shared by all views: the cells, indexed [row][col],
// plus the training progress they were taken at.
type CellGrid struct {
	Episode int
	// PathSteps is the length of the current greedy path, -1 if the policy does not reach the goal.
	PathSteps int
	Cells     [][]Cell
}

// Cell fills
const (
	FREE_FILL   = "lightgray"
	HAZARD_FILL = "salmon"
	START_FILL  = "lightblue"
	GOAL_FILL   = "lightyellow"
	PATH_FILL   = "lightgreen"
)

// Convert transforms a training snapshot into the cell view-model.
func Convert(snapshot models.Snapshot) CellGrid {
	grid := CellGrid{
		Episode:   snapshot.Episode,
		PathSteps: -1,
		Cells:     make([][]Cell, len(snapshot.Kinds)),
	}
	if len(snapshot.Path) > 0 {
		grid.PathSteps = snapshot.Path.Steps()
	}

	onPath := map[models.Coord]bool{}
	for _, c := range snapshot.Path {
		onPath[c] = true
	}

	for row := range snapshot.Kinds {
		grid.Cells[row] = make([]Cell, len(snapshot.Kinds[row]))
		for col, kind := range snapshot.Kinds[row] {
			c := models.Coord{Row: row, Col: col}
			grid.Cells[row][col] = Cell{
				X:                   col,
				Y:                   row,
				Max:                 snapshot.Max[row][col],
				PolicyArrowRotation: getDegrees(snapshot.Best[row][col]),
				Fill:                getFill(kind, onPath[c]),
				OnPath:              onPath[c],
			}
		}
	}
	return grid
}

// getDegrees converts an action into the clockwise rotation passed to svg's
// rotate() transform for an upward arrow.
func getDegrees(action models.Action) int {
	switch action {
	case models.RIGHT:
		return 90
	case models.DOWN:
		return 180
	case models.LEFT:
		return 270
	}
	return 0
}

func getFill(kind models.CellKind, onPath bool) (fill string) {
	switch kind {
	case models.HAZARD:
		fill = HAZARD_FILL
	case models.START:
		fill = START_FILL
	case models.GOAL:
		fill = GOAL_FILL
	default:
		fill = FREE_FILL
	}
	if onPath && kind == models.FREE {
		fill = PATH_FILL
	}
	return
}
