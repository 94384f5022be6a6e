package reinforcement

import (
	"sync/atomic"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/sirupsen/logrus"

	"qpath/atomic_float"
)

// TrainingStats accumulates per-episode results. The trainer is the only writer;
// reporters may read concurrently while training runs.
type TrainingStats struct {
	episodes   atomic.Int64
	steps      atomic.Int64
	lastReturn *atomic_float.AtomicFloat64
	returnSum  *atomic_float.AtomicFloat64
}

func NewTrainingStats() *TrainingStats {
	return &TrainingStats{
		lastReturn: atomic_float.NewAtomicFloat64(0),
		returnSum:  atomic_float.NewAtomicFloat64(0),
	}
}

func (stats *TrainingStats) record(steps int, episodeReturn float64) {
	stats.steps.Add(int64(steps))
	stats.lastReturn.AtomicSet(episodeReturn)
	stats.returnSum.Add(episodeReturn)
	stats.episodes.Add(1)
}

// Episodes is the number of episodes that reached the goal.
func (stats *TrainingStats) Episodes() int {
	return int(stats.episodes.Load())
}

// Steps is the total number of environment steps taken, including those of an aborted episode.
func (stats *TrainingStats) Steps() int {
	return int(stats.steps.Load())
}

// LastReturn is the undiscounted return of the latest completed episode.
func (stats *TrainingStats) LastReturn() float64 {
	return stats.lastReturn.AtomicRead()
}

// MeanReturn is the average undiscounted return over completed episodes.
func (stats *TrainingStats) MeanReturn() float64 {
	n := stats.episodes.Load()
	if n == 0 {
		return 0
	}
	return stats.returnSum.AtomicRead() / float64(n)
}

// ReportProgress logs training progress every interval until done is closed.
// It blocks; run it in its own goroutine.
func ReportProgress(
	done <-chan struct{},
	stats *TrainingStats,
	totalEpisodes int,
	logger logrus.FieldLogger,
	interval time.Duration,
) {
	for range channerics.NewTicker(done, interval) {
		logger.WithFields(logrus.Fields{
			"episode":     stats.Episodes(),
			"of":          totalEpisodes,
			"steps":       stats.Steps(),
			"last_return": stats.LastReturn(),
			"mean_return": stats.MeanReturn(),
		}).Info("training progress")
	}
}
