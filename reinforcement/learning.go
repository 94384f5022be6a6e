package reinforcement

/*
Tabular Q-learning over a deterministic grid world. Each episode starts at the
start cell and ends when the agent enters the goal. Actions are chosen
epsilon-greedily from the value table; every transition applies the single-step
off-policy update

	Q(s,a) <- Q(s,a) + alpha * (r + gamma * max_a' Q(s',a') - Q(s,a))

which bootstraps off the greedy successor value regardless of the action taken next.
Training runs a fixed number of episodes; there is no convergence test. Hazards
are not terminal, so with a good exploration rate episodes always end eventually,
but an episode step cap turns a pathological grid into an error instead of a hang.
*/

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"qpath/grid_world"
	"qpath/models"
)

// ErrNotConverged is returned when an episode exceeds its step cap.
var ErrNotConverged = errors.New("training did not converge for this grid")

// ProgressFunc is a callback by which training lends progress details.
// It is called synchronously on the training goroutine after every episode with
// the number of completed episodes, so it may read the value table safely,
// but it should complete quickly.
type ProgressFunc func(context.Context, int)

// Trainer runs Q-learning episodes on a grid world and owns the value table it learns.
type Trainer struct {
	world  *grid_world.GridWorld
	params HyperParams
	table  *ValueTable
	rng    *rand.Rand
	stats  *TrainingStats
	logger logrus.FieldLogger
}

// NewTrainer returns a trainer with a zeroed value table. The params must be valid.
func NewTrainer(
	world *grid_world.GridWorld,
	params HyperParams,
	rng *rand.Rand,
	logger logrus.FieldLogger,
) *Trainer {
	return &Trainer{
		world:  world,
		params: params,
		table:  NewValueTable(world.NumStates()),
		rng:    rng,
		stats:  NewTrainingStats(),
		logger: logger,
	}
}

// Table returns the value table. Callers must not mutate it, nor read it while Train runs
// except from within a ProgressFunc.
func (trainer *Trainer) Table() *ValueTable {
	return trainer.table
}

// Stats returns the training statistics, which may be read at any time.
func (trainer *Trainer) Stats() *TrainingStats {
	return trainer.stats
}

// Train runs the configured number of episodes. It returns ErrNotConverged if an
// episode exceeds the step cap, or the context's error if it is cancelled between
// episodes. In both cases the table and stats reflect the training done so far.
func (trainer *Trainer) Train(
	ctx context.Context,
	progressFn ProgressFunc,
) error {
	trainer.logger.WithFields(logrus.Fields{
		"episodes": trainer.params.Episodes,
		"alpha":    trainer.params.Alpha,
		"gamma":    trainer.params.Gamma,
		"epsilon":  trainer.params.Epsilon,
		"states":   trainer.world.NumStates(),
	}).Info("training started")

	for episode := 1; episode <= trainer.params.Episodes; episode++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("training stopped after %d episodes: %w", episode-1, ctx.Err())
		default:
		}

		steps, episodeReturn, err := trainer.runEpisode()
		if err != nil {
			trainer.logger.WithError(err).WithField("episode", episode).Warn("episode aborted")
			return fmt.Errorf("episode %d: %w", episode, err)
		}

		trainer.stats.record(steps, episodeReturn)
		trainer.logger.WithFields(logrus.Fields{
			"episode": episode,
			"steps":   steps,
			"return":  episodeReturn,
		}).Trace("episode complete")

		if progressFn != nil {
			progressFn(ctx, episode)
		}
	}

	trainer.logger.WithFields(logrus.Fields{
		"steps":       trainer.stats.Steps(),
		"mean_return": trainer.stats.MeanReturn(),
	}).Info("training complete")
	return nil
}

// runEpisode runs a single episode from the start state until the goal is entered.
func (trainer *Trainer) runEpisode() (steps int, episodeReturn float64, err error) {
	state := trainer.world.StartState()
	for !trainer.world.IsGoal(state) {
		if steps >= trainer.params.MaxEpisodeSteps {
			trainer.stats.steps.Add(int64(steps))
			err = fmt.Errorf("%w: goal not reached within %d steps", ErrNotConverged, trainer.params.MaxEpisodeSteps)
			return
		}

		action := trainer.chooseAction(state)
		next, reward := trainer.world.Step(state, action)
		trainer.update(state, action, reward, next)

		episodeReturn += reward
		state = next
		steps++
	}
	return
}

// chooseAction is the epsilon-greedy behavior policy.
func (trainer *Trainer) chooseAction(state int) models.Action {
	if trainer.rng.Float64() < trainer.params.Epsilon {
		return models.Actions[trainer.rng.Intn(models.NUM_ACTIONS)]
	}
	return trainer.table.BestAction(state)
}

// update applies the temporal-difference update for one transition and returns the new estimate.
func (trainer *Trainer) update(
	state int,
	action models.Action,
	reward float64,
	next int,
) float64 {
	target := reward + trainer.params.Gamma*trainer.table.MaxEstimate(next)
	old := trainer.table.Estimate(state, action)
	updated := old + trainer.params.Alpha*(target-old)
	trainer.table.Update(state, action, updated)
	return updated
}
