package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"qpath/grid_world"
)

// The only algorithm kind understood by FromYaml.
const KIND_QLEARNING = "qlearning"

// Hyperparameter keys and their defaults.
const (
	ALPHA             = "alpha"
	GAMMA             = "gamma"
	EPSILON           = "epsilon"
	EPISODES          = "episodes"
	MAX_EPISODE_STEPS = "maxEpisodeSteps"
	MAX_PATH_STEPS    = "maxPathSteps"

	DEFAULT_ALPHA    = 0.1
	DEFAULT_GAMMA    = 0.99
	DEFAULT_EPSILON  = 0.1
	DEFAULT_EPISODES = 10000
	// Episode step cap as a multiple of the number of states.
	EPISODE_STEPS_PER_STATE = 100
)

// ErrUnknownKind is returned when a config file describes an algorithm other than q-learning.
var ErrUnknownKind = errors.New("unknown config kind")

// OuterConfig is the envelope of a config file: a kind selector and its definition.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig holds the grid generator, reward scheme and training parameters.
// Keys are lowercase because viper folds the case of everything it reads.
type TrainingConfig struct {
	// HyperParams is a key-val list of param names and their values.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// TrainingDeadline optionally bounds training by wall time, e.g. {duration: 5m}.
	TrainingDeadline map[string]string     `yaml:"trainingdeadline"`
	Grid             grid_world.GridConfig `yaml:"grid"`
	Rewards          grid_world.Rewards    `yaml:"rewards"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// HyperParams are the resolved training parameters.
type HyperParams struct {
	// Alpha is the learning rate.
	Alpha float64
	// Gamma discounts successor values.
	Gamma float64
	// Epsilon is the probability of taking a uniformly random action.
	Epsilon  float64
	Episodes int
	// MaxEpisodeSteps caps a single training episode.
	MaxEpisodeSteps int
	// MaxPathSteps caps greedy path extraction.
	MaxPathSteps int
}

// DefaultTrainingConfig returns the default 32x32 problem with default rewards and no hyperparameter overrides.
func DefaultTrainingConfig() *TrainingConfig {
	return &TrainingConfig{
		TrainingDeadline: map[string]string{},
		Grid:             grid_world.DefaultGridConfig(),
		Rewards:          grid_world.DefaultRewards(),
	}
}

// GetHyperParamOrDefault looks a parameter up by case-insensitive key.
func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if strings.EqualFold(kvp.Key, param) {
			return kvp.Val
		}
	}
	return defaultVal
}

// SetHyperParam overrides or adds a parameter.
func (cfg *TrainingConfig) SetHyperParam(param string, val float64) {
	for i := range cfg.HyperParams {
		if strings.EqualFold(cfg.HyperParams[i].Key, param) {
			cfg.HyperParams[i].Val = val
			return
		}
	}
	cfg.HyperParams = append(cfg.HyperParams, HyperParameter{Key: param, Val: val})
}

// Params resolves the hyperparameters, filling defaults. Step caps default to
// 100*N*N per episode and N*N for path extraction.
func (cfg *TrainingConfig) Params() HyperParams {
	numStates := cfg.Grid.Size * cfg.Grid.Size
	return HyperParams{
		Alpha:           cfg.GetHyperParamOrDefault(ALPHA, DEFAULT_ALPHA),
		Gamma:           cfg.GetHyperParamOrDefault(GAMMA, DEFAULT_GAMMA),
		Epsilon:         cfg.GetHyperParamOrDefault(EPSILON, DEFAULT_EPSILON),
		Episodes:        int(cfg.GetHyperParamOrDefault(EPISODES, DEFAULT_EPISODES)),
		MaxEpisodeSteps: int(cfg.GetHyperParamOrDefault(MAX_EPISODE_STEPS, float64(EPISODE_STEPS_PER_STATE*numStates))),
		MaxPathSteps:    int(cfg.GetHyperParamOrDefault(MAX_PATH_STEPS, float64(numStates))),
	}
}

// Validate reports every invalid setting at once.
func (cfg *TrainingConfig) Validate() error {
	var result *multierror.Error
	if err := cfg.Grid.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := cfg.Rewards.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := cfg.Params().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := cfg.trainingDuration(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Validate checks the parameter ranges. Rates outside these ranges can diverge
// or produce NaN, which would break the argmax order of the value table.
func (params HyperParams) Validate() error {
	var result *multierror.Error
	if !(params.Alpha > 0 && params.Alpha <= 1) {
		result = multierror.Append(result, fmt.Errorf("alpha must be in (0,1], got %v", params.Alpha))
	}
	if !(params.Gamma > 0 && params.Gamma <= 1) {
		result = multierror.Append(result, fmt.Errorf("gamma must be in (0,1], got %v", params.Gamma))
	}
	if !(params.Epsilon >= 0 && params.Epsilon <= 1) {
		result = multierror.Append(result, fmt.Errorf("epsilon must be in [0,1], got %v", params.Epsilon))
	}
	if params.Episodes < 1 {
		result = multierror.Append(result, fmt.Errorf("episodes must be at least 1, got %d", params.Episodes))
	}
	if params.MaxEpisodeSteps < 1 {
		result = multierror.Append(result, fmt.Errorf("maxEpisodeSteps must be at least 1, got %d", params.MaxEpisodeSteps))
	}
	if params.MaxPathSteps < 1 {
		result = multierror.Append(result, fmt.Errorf("maxPathSteps must be at least 1, got %d", params.MaxPathSteps))
	}
	return result.ErrorOrNil()
}

func (cfg *TrainingConfig) trainingDuration() (time.Duration, error) {
	val, ok := cfg.TrainingDeadline["duration"]
	if !ok || val == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("training deadline: %w", err)
	}
	return duration, nil
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	duration, err := cfg.trainingDuration()
	if err != nil {
		return nil, nil, err
	}
	if duration > 0 {
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a config file of the form:
//
//	kind: qlearning
//	def:
//	  hyperParams:
//	    - key: alpha
//	      val: 0.1
//	  trainingDeadline:
//	    duration: 5m
//	  grid:
//	    size: 32
//	    hazardProbability: 0.1
//	  rewards:
//	    hazard: -100
//
// Anything the file omits keeps its default.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if !strings.EqualFold(outerConfig.Kind, KIND_QLEARNING) {
		return nil, fmt.Errorf("%w %q, expected %q", ErrUnknownKind, outerConfig.Kind, KIND_QLEARNING)
	}

	var def []byte
	if def, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := DefaultTrainingConfig()
	if err = yaml.Unmarshal(def, innerConfig); err != nil {
		return nil, err
	}

	return innerConfig, nil
}
