package grid_world

import (
	"fmt"
	"math/rand"
	"time"

	"qpath/models"
)

// Generator defaults
const (
	DEFAULT_SIZE               = 32
	DEFAULT_HAZARD_PROBABILITY = 0.1
)

// GridConfig describes a randomly generated grid. Start and Goal default to the
// top-left and bottom-right corners when nil.
type GridConfig struct {
	Size              int           `yaml:"size"`
	HazardProbability float64       `yaml:"hazardprobability"`
	Seed              int64         `yaml:"seed"`
	Start             *models.Coord `yaml:"start,omitempty"`
	Goal              *models.Coord `yaml:"goal,omitempty"`
}

// DefaultGridConfig returns a 32x32 grid with 10% hazards.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		Size:              DEFAULT_SIZE,
		HazardProbability: DEFAULT_HAZARD_PROBABILITY,
	}
}

// StartCoord resolves the configured start, defaulting to (0,0).
func (cfg GridConfig) StartCoord() models.Coord {
	if cfg.Start != nil {
		return *cfg.Start
	}
	return models.Coord{}
}

// GoalCoord resolves the configured goal, defaulting to (N-1,N-1).
func (cfg GridConfig) GoalCoord() models.Coord {
	if cfg.Goal != nil {
		return *cfg.Goal
	}
	return models.Coord{Row: cfg.Size - 1, Col: cfg.Size - 1}
}

// Validate checks the generator parameters.
func (cfg GridConfig) Validate() error {
	if cfg.Size < 2 {
		return fmt.Errorf("grid size must be at least 2, got %d", cfg.Size)
	}
	if cfg.HazardProbability < 0 || cfg.HazardProbability > 1 {
		return fmt.Errorf("hazard probability must be in [0,1], got %v", cfg.HazardProbability)
	}
	start, goal := cfg.StartCoord(), cfg.GoalCoord()
	for name, c := range map[string]models.Coord{"start": start, "goal": goal} {
		if c.Row < 0 || c.Row >= cfg.Size || c.Col < 0 || c.Col >= cfg.Size {
			return fmt.Errorf("%s %v is outside the %dx%d grid", name, c, cfg.Size, cfg.Size)
		}
	}
	if start == goal {
		return fmt.Errorf("start and goal must differ, both are %v", start)
	}
	return nil
}

// NewRand returns the generator for a seed; a zero seed is replaced by the current time.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Generate draws each cell as a hazard with the configured probability, then
// overwrites the start and goal cells. The configuration must be valid.
func Generate(cfg GridConfig, rng *rand.Rand) (cells [][]models.CellKind) {
	cells = make([][]models.CellKind, cfg.Size)
	for row := range cells {
		cells[row] = make([]models.CellKind, cfg.Size)
		for col := range cells[row] {
			if rng.Float64() < cfg.HazardProbability {
				cells[row][col] = models.HAZARD
			} else {
				cells[row][col] = models.FREE
			}
		}
	}

	start, goal := cfg.StartCoord(), cfg.GoalCoord()
	cells[start.Row][start.Col] = models.START
	cells[goal.Row][goal.Col] = models.GOAL
	return
}
