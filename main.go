/*
qpath trains a tabular Q-learning agent to cross a randomly generated grid of
hazards, then follows the learned greedy policy from start to goal and prints
the grid with the path marked. Training can be watched live in a browser, and
every run is summarized in a local sqlite history.

Usage:

	qpath train [flags]      - generate a grid, train, and print the greedy path
	qpath history [flags]    - list recorded runs
*/
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"qpath/storage"
)

var (
	// Global flags
	flagConfig string
	flagDebug  bool
	flagDBPath string
)

var rootCmd = &cobra.Command{
	Use:   "qpath",
	Short: "Q-learning path finding on a hazard grid",
	Long: `qpath learns a path across an NxN grid of hazards with tabular Q-learning.

Examples:
  qpath train
  qpath train --size 8 --episodes 2000 --seed 7
  qpath train --config config.yaml --serve :8080
  qpath history`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a yaml training config (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Debug logging and policy output")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", storage.DEFAULT_DB_PATH, "Path to the run history database")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(historyCmd)
}

// newLogger returns the process logger, writing text to stderr so that
// rendered grids on stdout stay clean.
func newLogger(debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
