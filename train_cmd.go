package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"qpath/grid_world"
	"qpath/models"
	"qpath/reinforcement"
	"qpath/server"
	"qpath/storage"
)

const (
	progressInterval      = 2 * time.Second
	defaultSnapshotPeriod = 100
)

var trainFlags struct {
	size           int
	hazard         float64
	seed           int64
	episodes       int
	alpha          float64
	gamma          float64
	epsilon        float64
	serve          string
	styled         bool
	record         bool
	snapshotPeriod int
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Generate a grid, train on it, and print the greedy path",
	Long: `Generate a random hazard grid, run Q-learning episodes on it, then follow the
greedy policy from start to goal and print the grid with the path marked 'x'.

Flags override values from --config. With --serve, training progress is shown
at the given address until interrupted.

Examples:
  qpath train --size 8 --seed 7
  qpath train --serve :8080`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	flags := trainCmd.Flags()
	flags.IntVar(&trainFlags.size, "size", grid_world.DEFAULT_SIZE, "Grid side length")
	flags.Float64Var(&trainFlags.hazard, "hazard", grid_world.DEFAULT_HAZARD_PROBABILITY, "Probability that a cell is a hazard")
	flags.Int64Var(&trainFlags.seed, "seed", 0, "RNG seed (0 = random based on time)")
	flags.IntVar(&trainFlags.episodes, "episodes", reinforcement.DEFAULT_EPISODES, "Number of training episodes")
	flags.Float64Var(&trainFlags.alpha, "alpha", reinforcement.DEFAULT_ALPHA, "Learning rate")
	flags.Float64Var(&trainFlags.gamma, "gamma", reinforcement.DEFAULT_GAMMA, "Discount factor")
	flags.Float64Var(&trainFlags.epsilon, "epsilon", reinforcement.DEFAULT_EPSILON, "Exploration rate")
	flags.StringVar(&trainFlags.serve, "serve", "", "Serve live training views at this address, e.g. :8080")
	flags.BoolVar(&trainFlags.styled, "styled", false, "Color the printed grid")
	flags.BoolVar(&trainFlags.record, "record", true, "Record the run in the history database")
	flags.IntVar(&trainFlags.snapshotPeriod, "snapshot-period", defaultSnapshotPeriod, "Episodes between live view snapshots")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	logger := newLogger(flagDebug)

	cfg, err := loadConfig(flagConfig, cmd.Flags().Changed)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := runOptions{
		styled:         trainFlags.styled,
		showPolicy:     flagDebug,
		snapshotPeriod: trainFlags.snapshotPeriod,
	}

	var result *runResult
	if trainFlags.serve == "" {
		result, err = runTraining(ctx, cfg, opts, cmd.OutOrStdout(), logger)
	} else {
		result, err = serveTraining(ctx, cfg, opts, cmd.OutOrStdout(), logger)
	}

	if trainFlags.record && result != nil {
		if recErr := recordRun(flagDBPath, cfg, result); recErr != nil {
			logger.WithError(recErr).Warn("run not recorded")
		}
	}
	return err
}

// loadConfig reads the config file, if any, and applies the flags the user set.
func loadConfig(
	path string,
	changed func(string) bool,
) (cfg *reinforcement.TrainingConfig, err error) {
	if path == "" {
		cfg = reinforcement.DefaultTrainingConfig()
	} else if cfg, err = reinforcement.FromYaml(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	if changed("size") {
		cfg.Grid.Size = trainFlags.size
	}
	if changed("hazard") {
		cfg.Grid.HazardProbability = trainFlags.hazard
	}
	if changed("seed") {
		cfg.Grid.Seed = trainFlags.seed
	}
	hyperFlags := map[string]float64{
		"episodes": float64(trainFlags.episodes),
		"alpha":    trainFlags.alpha,
		"gamma":    trainFlags.gamma,
		"epsilon":  trainFlags.epsilon,
	}
	for name, val := range hyperFlags {
		if changed(name) {
			cfg.SetHyperParam(name, val)
		}
	}
	return cfg, nil
}

type runOptions struct {
	styled     bool
	showPolicy bool
	// Snapshots, when non-nil, receives a snapshot every snapshotPeriod episodes.
	// Sends never block training: a snapshot is dropped if the receiver is busy.
	snapshots      chan<- models.Snapshot
	snapshotPeriod int
}

// runResult is the outcome of a run, kept even when it failed so that it can be recorded.
type runResult struct {
	seed     int64
	params   reinforcement.HyperParams
	episodes int
	path     models.Path
	duration time.Duration
	err      error
	world    *grid_world.GridWorld
	table    *reinforcement.ValueTable
}

func (result *runResult) converged() bool {
	return result.err == nil && len(result.path) > 0
}

// runTraining generates the grid, trains, extracts the greedy path and renders it to out.
// The result is non-nil once the grid exists, even when an error is returned.
func runTraining(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	opts runOptions,
	out io.Writer,
	logger logrus.FieldLogger,
) (*runResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Grid.Seed == 0 {
		cfg.Grid.Seed = time.Now().UnixNano()
	}

	world, trainer, err := newTrainer(cfg, logger)
	if err != nil {
		return nil, err
	}
	result := &runResult{
		seed:   cfg.Grid.Seed,
		params: cfg.Params(),
		world:  world,
		table:  trainer.Table(),
	}
	params := result.params

	trainCtx, cancel, err := cfg.WithTrainingDeadline(ctx)
	if err != nil {
		return result, err
	}
	defer cancel()

	progressDone := make(chan struct{})
	go reinforcement.ReportProgress(progressDone, trainer.Stats(), params.Episodes, logger, progressInterval)

	start := time.Now()
	trainErr := trainer.Train(trainCtx, exportSnapshots(world, trainer.Table(), params, opts))
	close(progressDone)
	result.duration = time.Since(start)
	result.episodes = trainer.Stats().Episodes()

	switch {
	case trainErr == nil:
	case errors.Is(trainErr, context.DeadlineExceeded) && ctx.Err() == nil:
		logger.WithField("episodes", result.episodes).Warn("training deadline reached, using the table learned so far")
	default:
		result.err = trainErr
		return result, trainErr
	}

	path, err := reinforcement.ExtractPath(world, trainer.Table(), params.MaxPathSteps)
	if err != nil {
		result.err = err
		return result, err
	}
	result.path = path

	if err := grid_world.Render(out, world, path, opts.styled); err != nil {
		return result, err
	}
	if opts.showPolicy {
		fmt.Fprintln(out)
		if err := grid_world.ShowPolicy(out, world, trainer.Table().BestAction); err != nil {
			return result, err
		}
	}

	logger.WithFields(logrus.Fields{
		"steps":    path.Steps(),
		"duration": result.duration.Round(time.Millisecond),
		"seed":     result.seed,
	}).Info("path found")
	return result, nil
}

func newTrainer(
	cfg *reinforcement.TrainingConfig,
	logger logrus.FieldLogger,
) (*grid_world.GridWorld, *reinforcement.Trainer, error) {
	rng := grid_world.NewRand(cfg.Grid.Seed)
	world, err := grid_world.NewGridWorld(grid_world.Generate(cfg.Grid, rng), cfg.Rewards)
	if err != nil {
		return nil, nil, fmt.Errorf("generating grid: %w", err)
	}
	trainer := reinforcement.NewTrainer(world, cfg.Params(), rng, logger)
	return world, trainer, nil
}

// exportSnapshots returns a progress callback that sends periodic snapshots
// without blocking, or nil when there is no receiver.
func exportSnapshots(
	world *grid_world.GridWorld,
	table reinforcement.ValueReader,
	params reinforcement.HyperParams,
	opts runOptions,
) reinforcement.ProgressFunc {
	if opts.snapshots == nil {
		return nil
	}
	period := opts.snapshotPeriod
	if period < 1 {
		period = defaultSnapshotPeriod
	}

	return func(ctx context.Context, episode int) {
		if episode%period != 0 && episode != params.Episodes {
			return
		}
		select {
		case opts.snapshots <- reinforcement.TakeSnapshot(world, table, episode, params.MaxPathSteps):
		default:
		}
	}
}

// serveTraining runs training while serving its live views, then keeps serving
// the final state until ctx is cancelled.
func serveTraining(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	opts runOptions,
	out io.Writer,
	logger logrus.FieldLogger,
) (result *runResult, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	snapshots := make(chan models.Snapshot, 1)
	opts.snapshots = snapshots

	group, groupCtx := errgroup.WithContext(ctx)
	srv := server.NewServer(groupCtx, trainFlags.serve, emptySnapshot(cfg.Grid.Size), snapshots, logger)
	group.Go(srv.Serve)
	group.Go(func() error {
		defer close(snapshots)
		result, err = runTraining(groupCtx, cfg, opts, out, logger)
		if result != nil {
			final := reinforcement.TakeSnapshot(result.world, result.table, result.episodes, result.params.MaxPathSteps)
			select {
			case snapshots <- final:
			case <-groupCtx.Done():
			}
		}
		if err != nil {
			return err
		}
		logger.WithField("addr", trainFlags.serve).Info("training done, serving until interrupted")
		return nil
	})

	if waitErr := group.Wait(); waitErr != nil && err == nil {
		err = waitErr
	}
	return result, err
}

// emptySnapshot is shown until training sends its first snapshot.
func emptySnapshot(size int) models.Snapshot {
	snapshot := models.Snapshot{
		Kinds: make([][]models.CellKind, size),
		Max:   make([][]float64, size),
		Best:  make([][]models.Action, size),
	}
	for row := 0; row < size; row++ {
		snapshot.Kinds[row] = make([]models.CellKind, size)
		snapshot.Max[row] = make([]float64, size)
		snapshot.Best[row] = make([]models.Action, size)
		for col := range snapshot.Kinds[row] {
			snapshot.Kinds[row][col] = models.FREE
		}
	}
	return snapshot
}

func recordRun(
	dbPath string,
	cfg *reinforcement.TrainingConfig,
	result *runResult,
) error {
	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	pathSteps := -1
	if len(result.path) > 0 {
		pathSteps = result.path.Steps()
	}
	_, err = store.SaveRun(storage.RunRecord{
		Size:              cfg.Grid.Size,
		HazardProbability: cfg.Grid.HazardProbability,
		Seed:              result.seed,
		Episodes:          result.episodes,
		Alpha:             result.params.Alpha,
		Gamma:             result.params.Gamma,
		Epsilon:           result.params.Epsilon,
		PathSteps:         pathSteps,
		Converged:         result.converged(),
		Duration:          result.duration,
	})
	return err
}
