package reinforcement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	. "github.com/smartystreets/goconvey/convey"

	"qpath/models"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTrainingConfig(t *testing.T) {
	Convey("Given the default config", t, func() {
		cfg := DefaultTrainingConfig()

		Convey("Defaults match the reference problem", func() {
			So(cfg.Validate(), ShouldBeNil)
			params := cfg.Params()
			So(params.Alpha, ShouldEqual, 0.1)
			So(params.Gamma, ShouldEqual, 0.99)
			So(params.Epsilon, ShouldEqual, 0.1)
			So(params.Episodes, ShouldEqual, 10000)
			So(params.MaxEpisodeSteps, ShouldEqual, 100*32*32)
			So(params.MaxPathSteps, ShouldEqual, 32*32)
			So(cfg.Rewards.Hazard, ShouldEqual, -100)
			So(cfg.Rewards.Goal, ShouldEqual, 100)
			So(cfg.Rewards.Step, ShouldEqual, -1)
		})

		Convey("Hyperparameters can be overridden", func() {
			cfg.SetHyperParam(ALPHA, 0.5)
			cfg.SetHyperParam("ALPHA", 0.25)
			cfg.SetHyperParam(EPISODES, 12)
			So(cfg.HyperParams, ShouldHaveLength, 2)
			So(cfg.Params().Alpha, ShouldEqual, 0.25)
			So(cfg.Params().Episodes, ShouldEqual, 12)
		})

		Convey("Every invalid setting is reported", func() {
			cfg.SetHyperParam(ALPHA, 0)
			cfg.SetHyperParam(GAMMA, 1.5)
			cfg.SetHyperParam(EPSILON, -0.1)
			cfg.Grid.Size = 1
			cfg.TrainingDeadline["duration"] = "soon"

			err := cfg.Validate()
			So(err, ShouldNotBeNil)
			var merr *multierror.Error
			So(errors.As(err, &merr), ShouldBeTrue)
			// grid size, alpha, gamma, epsilon, deadline
			So(merr.Errors, ShouldHaveLength, 5)
			So(err.Error(), ShouldContainSubstring, "alpha")
			So(err.Error(), ShouldContainSubstring, "gamma")
			So(err.Error(), ShouldContainSubstring, "epsilon")
		})

		Convey("Without a deadline the training context is only cancellable", func() {
			ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
			So(err, ShouldBeNil)
			defer cancel()
			_, hasDeadline := ctx.Deadline()
			So(hasDeadline, ShouldBeFalse)
		})

		Convey("A duration bounds the training context", func() {
			cfg.TrainingDeadline["duration"] = "1m"
			ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
			So(err, ShouldBeNil)
			defer cancel()
			deadline, hasDeadline := ctx.Deadline()
			So(hasDeadline, ShouldBeTrue)
			So(time.Until(deadline), ShouldBeLessThanOrEqualTo, time.Minute)
		})
	})

	Convey("Given a config file", t, func() {
		Convey("Values it sets override the defaults and the rest are kept", func() {
			path := writeConfig(t, `
kind: qlearning
def:
  hyperParams:
    - key: alpha
      val: 0.2
    - key: episodes
      val: 500
  trainingDeadline:
    duration: 30s
  grid:
    size: 8
    hazardProbability: 0.25
    seed: 99
    goal:
      row: 0
      col: 7
  rewards:
    hazard: -50
`)
			cfg, err := FromYaml(path)
			So(err, ShouldBeNil)
			So(cfg.Validate(), ShouldBeNil)

			params := cfg.Params()
			So(params.Alpha, ShouldEqual, 0.2)
			So(params.Episodes, ShouldEqual, 500)
			So(params.Gamma, ShouldEqual, DEFAULT_GAMMA)
			So(params.MaxPathSteps, ShouldEqual, 64)

			So(cfg.Grid.Size, ShouldEqual, 8)
			So(cfg.Grid.HazardProbability, ShouldEqual, 0.25)
			So(cfg.Grid.Seed, ShouldEqual, 99)
			So(cfg.Grid.GoalCoord(), ShouldResemble, models.Coord{Row: 0, Col: 7})
			So(cfg.Grid.StartCoord(), ShouldResemble, models.Coord{Row: 0, Col: 0})
			So(cfg.Rewards.Hazard, ShouldEqual, -50)
			So(cfg.Rewards.Goal, ShouldEqual, 100)
			So(cfg.TrainingDeadline["duration"], ShouldEqual, "30s")
		})

		Convey("Other kinds are rejected", func() {
			path := writeConfig(t, "kind: montecarlo\ndef: {}\n")
			_, err := FromYaml(path)
			So(errors.Is(err, ErrUnknownKind), ShouldBeTrue)
		})

		Convey("A missing file is an error", func() {
			_, err := FromYaml(filepath.Join(t.TempDir(), "nope.yaml"))
			So(err, ShouldNotBeNil)
		})
	})
}
