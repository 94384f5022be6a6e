package grid_world

import (
	"bufio"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"qpath/models"
)

// PATH is the marker printed for cells on the extracted path.
const PATH = 'x'

var kindStyles = map[rune]lipgloss.Style{
	rune(models.FREE):   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	rune(models.HAZARD): lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	rune(models.START):  lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
	rune(models.GOAL):   lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
	PATH:                lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
}

// Render prints the grid one row per line, each cell followed by a space.
// Cells on the path are printed as 'x', all others by their kind.
// When styled, cells are coloured with lipgloss.
func Render(
	w io.Writer,
	world *GridWorld,
	path models.Path,
	styled bool,
) error {
	onPath := make(map[models.Coord]bool, len(path))
	for _, c := range path {
		onPath[c] = true
	}

	bw := bufio.NewWriter(w)
	for row := 0; row < world.size; row++ {
		var line strings.Builder
		for col := 0; col < world.size; col++ {
			r := rune(world.cells[row][col])
			if onPath[models.Coord{Row: row, Col: col}] {
				r = PATH
			}
			if styled {
				line.WriteString(kindStyles[r].Render(string(r)))
			} else {
				line.WriteRune(r)
			}
			line.WriteByte(' ')
		}
		line.WriteByte('\n')
		if _, err := bw.WriteString(line.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ShowPolicy prints the greedy action of every cell as an arrow, with the goal and
// hazards printed by kind. bestAction maps a state to its greedy action.
func ShowPolicy(
	w io.Writer,
	world *GridWorld,
	bestAction func(state int) models.Action,
) error {
	bw := bufio.NewWriter(w)
	world.Visit(func(state int, c models.Coord, kind models.CellKind) {
		switch kind {
		case models.GOAL, models.HAZARD:
			_, _ = bw.WriteRune(rune(kind))
		default:
			_, _ = bw.WriteRune(bestAction(state).Arrow())
		}
		_ = bw.WriteByte(' ')
		if c.Col == world.size-1 {
			_ = bw.WriteByte('\n')
		}
	})
	return bw.Flush()
}
