package models

import "fmt"

// CellKind is the content of a single grid cell. Kinds are runes so that grids
// can be written and printed as plain text.
type CellKind rune

// Grid cell kinds
const (
	FREE   CellKind = '-'
	HAZARD CellKind = 'O'
	START  CellKind = 'S'
	GOAL   CellKind = 'G'
)

// IsValid reports whether the kind is one of the enumerated cell kinds.
func (kind CellKind) IsValid() bool {
	switch kind {
	case FREE, HAZARD, START, GOAL:
		return true
	}
	return false
}

// MarshalText encodes the kind as its single-character form.
func (kind CellKind) MarshalText() ([]byte, error) {
	return []byte(string(kind)), nil
}

// UnmarshalText decodes a single-character kind.
func (kind *CellKind) UnmarshalText(text []byte) error {
	runes := []rune(string(text))
	if len(runes) != 1 || !CellKind(runes[0]).IsValid() {
		return fmt.Errorf("invalid cell kind %q", text)
	}
	*kind = CellKind(runes[0])
	return nil
}

// Action is one of the four moves available in every state. The integer value
// is the stable index used to address the value table.
type Action int

// Movement actions.
const (
	UP Action = iota
	DOWN
	LEFT
	RIGHT
	NUM_ACTIONS = 4
)

// Actions lists every action in index order.
var Actions = [NUM_ACTIONS]Action{UP, DOWN, LEFT, RIGHT}

func (action Action) String() string {
	switch action {
	case UP:
		return "up"
	case DOWN:
		return "down"
	case LEFT:
		return "left"
	case RIGHT:
		return "right"
	}
	return fmt.Sprintf("action(%d)", int(action))
}

// Arrow returns a single rune pointing in the direction of the action, for console views.
func (action Action) Arrow() rune {
	switch action {
	case UP:
		return '^'
	case DOWN:
		return 'v'
	case LEFT:
		return '<'
	case RIGHT:
		return '>'
	}
	return '?'
}

// Coord is a grid position. Row 0 is the top row when printed.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Path is the ordered sequence of coordinates visited by the greedy policy,
// from Start up to and including Goal.
type Path []Coord

// Contains reports whether the coordinate lies on the path.
func (path Path) Contains(c Coord) bool {
	for _, p := range path {
		if p == c {
			return true
		}
	}
	return false
}

// Steps is the number of moves taken along the path.
func (path Path) Steps() int {
	if len(path) == 0 {
		return 0
	}
	return len(path) - 1
}

// Snapshot is a copy of the training progress handed to views. It holds no
// references into the trainer's value table, so it is safe to read from other goroutines.
// Rows and cols are indexed [row][col].
type Snapshot struct {
	Episode int          `json:"episode"`
	Kinds   [][]CellKind `json:"kinds"`
	Max     [][]float64  `json:"max"`
	Best    [][]Action   `json:"best"`
	Path    Path         `json:"path"`
}
