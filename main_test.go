package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	. "github.com/smartystreets/goconvey/convey"

	"qpath/models"
	"qpath/reinforcement"
	"qpath/storage"
)

func smallConfig() *reinforcement.TrainingConfig {
	cfg := reinforcement.DefaultTrainingConfig()
	cfg.Grid.Size = 3
	cfg.Grid.HazardProbability = 0
	cfg.Grid.Seed = 7
	cfg.SetHyperParam(reinforcement.EPISODES, 1000)
	return cfg
}

func TestRunTraining(t *testing.T) {
	logger, _ := test.NewNullLogger()

	Convey("When training on an open 3x3 grid", t, func() {
		var out bytes.Buffer
		result, err := runTraining(context.Background(), smallConfig(), runOptions{}, &out, logger)
		So(err, ShouldBeNil)

		Convey("The shortest path is found and rendered", func() {
			So(result.converged(), ShouldBeTrue)
			So(result.path.Steps(), ShouldEqual, 4)
			So(result.episodes, ShouldEqual, 1000)
			So(result.seed, ShouldEqual, 7)

			rendered := out.String()
			So(strings.Count(rendered, "\n"), ShouldEqual, 3)
			So(strings.Count(rendered, "x"), ShouldEqual, 5)
			So(strings.Count(rendered, "-"), ShouldEqual, 4)
		})
	})

	Convey("When the policy is printed", t, func() {
		var out bytes.Buffer
		_, err := runTraining(context.Background(), smallConfig(), runOptions{showPolicy: true}, &out, logger)
		So(err, ShouldBeNil)
		So(strings.Count(out.String(), "\n"), ShouldEqual, 7)
		So(out.String(), ShouldContainSubstring, "G")
	})

	Convey("When the config is invalid, nothing runs", t, func() {
		cfg := smallConfig()
		cfg.Grid.Size = 1
		result, err := runTraining(context.Background(), cfg, runOptions{}, &bytes.Buffer{}, logger)
		So(err, ShouldNotBeNil)
		So(result, ShouldBeNil)
	})

	Convey("When the context is already cancelled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var out bytes.Buffer
		result, err := runTraining(ctx, smallConfig(), runOptions{}, &out, logger)

		Convey("The failed run is still described", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(result, ShouldNotBeNil)
			So(result.episodes, ShouldEqual, 0)
			So(result.converged(), ShouldBeFalse)
			So(out.Len(), ShouldEqual, 0)
		})
	})

	Convey("When a zero seed is configured, the seed used is recorded", t, func() {
		cfg := smallConfig()
		cfg.Grid.Seed = 0
		result, err := runTraining(context.Background(), cfg, runOptions{}, &bytes.Buffer{}, logger)
		So(err, ShouldBeNil)
		So(result.seed, ShouldNotEqual, 0)
		So(cfg.Grid.Seed, ShouldEqual, result.seed)
	})
}

func TestExportSnapshots(t *testing.T) {
	logger, _ := test.NewNullLogger()

	Convey("Given a trained run", t, func() {
		cfg := smallConfig()
		result, err := runTraining(context.Background(), cfg, runOptions{}, &bytes.Buffer{}, logger)
		So(err, ShouldBeNil)
		params := result.params

		Convey("Without a receiver there is no callback", func() {
			So(exportSnapshots(result.world, result.table, params, runOptions{}), ShouldBeNil)
		})

		Convey("Snapshots are sent only on the period and the final episode", func() {
			snapshots := make(chan models.Snapshot, 1)
			progressFn := exportSnapshots(result.world, result.table, params, runOptions{
				snapshots:      snapshots,
				snapshotPeriod: 10,
			})

			progressFn(context.Background(), 3)
			So(snapshots, ShouldBeEmpty)

			progressFn(context.Background(), 10)
			So(snapshots, ShouldHaveLength, 1)
			snapshot := <-snapshots
			So(snapshot.Episode, ShouldEqual, 10)
			So(snapshot.Path.Steps(), ShouldEqual, 4)

			progressFn(context.Background(), params.Episodes-1)
			So(snapshots, ShouldBeEmpty)
			progressFn(context.Background(), params.Episodes)
			So(snapshots, ShouldHaveLength, 1)
		})

		Convey("A busy receiver never blocks training", func() {
			snapshots := make(chan models.Snapshot)
			progressFn := exportSnapshots(result.world, result.table, params, runOptions{
				snapshots:      snapshots,
				snapshotPeriod: 1,
			})
			progressFn(context.Background(), 1)
			progressFn(context.Background(), 2)
			So(snapshots, ShouldBeEmpty)
		})
	})
}

func TestLoadConfig(t *testing.T) {
	Convey("Given flags set by the user", t, func() {
		trainFlags.size = 12
		trainFlags.alpha = 0.5
		trainFlags.episodes = 300
		set := map[string]bool{"size": true, "alpha": true, "episodes": true}
		changed := func(name string) bool { return set[name] }

		Convey("They override the defaults and nothing else does", func() {
			cfg, err := loadConfig("", changed)
			So(err, ShouldBeNil)
			So(cfg.Grid.Size, ShouldEqual, 12)
			So(cfg.Grid.HazardProbability, ShouldEqual, 0.1)

			params := cfg.Params()
			So(params.Alpha, ShouldEqual, 0.5)
			So(params.Episodes, ShouldEqual, 300)
			So(params.Gamma, ShouldEqual, reinforcement.DEFAULT_GAMMA)
			So(params.Epsilon, ShouldEqual, reinforcement.DEFAULT_EPSILON)
		})

		Convey("A missing config file is an error", func() {
			_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), changed)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRecordRun(t *testing.T) {
	logger, _ := test.NewNullLogger()

	Convey("When a run is recorded", t, func() {
		dbPath := filepath.Join(t.TempDir(), "runs.db")
		cfg := smallConfig()
		result, err := runTraining(context.Background(), cfg, runOptions{}, &bytes.Buffer{}, logger)
		So(err, ShouldBeNil)
		So(recordRun(dbPath, cfg, result), ShouldBeNil)

		Convey("It is listed in the history", func() {
			store, err := storage.Open(dbPath)
			So(err, ShouldBeNil)
			defer store.Close()

			runs, err := store.RecentRuns(10)
			So(err, ShouldBeNil)
			So(runs, ShouldHaveLength, 1)
			So(runs[0].Size, ShouldEqual, 3)
			So(runs[0].Seed, ShouldEqual, 7)
			So(runs[0].PathSteps, ShouldEqual, 4)
			So(runs[0].Converged, ShouldBeTrue)

			var out bytes.Buffer
			printRuns(&out, runs)
			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			So(lines, ShouldHaveLength, 2)
			So(lines[0], ShouldContainSubstring, "Episodes")
		})
	})

	Convey("An empty history says so", t, func() {
		var out bytes.Buffer
		printRuns(&out, nil)
		So(out.String(), ShouldEqual, "No runs recorded yet.\n")
	})
}
