// Package indexing holds the data model shared by the pipeline, optimizer,
// checkpoint manager, progress reporter and health probe: plain records with
// no behavior beyond small derived accessors.
package indexing

import "errors"

// Default threshold values.
const (
	DefaultMinBatchSize                = 2
	DefaultErrorRateThreshold          = 0.10
	DefaultRampUpFactor                = 1.5
	DefaultRampDownFactor              = 0.5
	DefaultConsecutiveSuccessesForRamp = 3
)

// Sentinel errors for config validation.
var (
	ErrInitialBatchSize   = errors.New("initial_batch_size must be >= 1")
	ErrMaxBatchSize       = errors.New("max_batch_size must be >= initial_batch_size")
	ErrMemoryThreshold    = errors.New("memory_threshold_mb must be > 0")
	ErrCheckpointInterval = errors.New("checkpoint_interval must be >= 1")
)

// PipelineConfig holds the immutable parameters for one indexing run. It is
// owned by the caller and is read-only once a run starts.
type PipelineConfig struct {
	InitialBatchSize   int  `mapstructure:"initial_batch_size"`
	MaxBatchSize       int  `mapstructure:"max_batch_size"`
	MemoryThresholdMB  int  `mapstructure:"memory_threshold_mb"`
	CheckpointInterval int  `mapstructure:"checkpoint_interval"`
	EnableResume       bool `mapstructure:"enable_resume"`
	ParallelThreshold  int  `mapstructure:"parallel_threshold"`
	MaxParallelWorkers int  `mapstructure:"max_parallel_workers"`
	// RetryFailed moves failed_files back to pending_files at resume time.
	// Off by default; the source left automatic retry as an open question.
	RetryFailed bool `mapstructure:"retry_failed"`
}

// Validate checks PipelineConfig invariants and returns the first violation.
func (c PipelineConfig) Validate() error {
	if c.InitialBatchSize < 1 {
		return ErrInitialBatchSize
	}

	if c.MaxBatchSize < c.InitialBatchSize {
		return ErrMaxBatchSize
	}

	if c.MemoryThresholdMB <= 0 {
		return ErrMemoryThreshold
	}

	if c.CheckpointInterval < 1 {
		return ErrCheckpointInterval
	}

	return nil
}

// ThresholdConfig holds the Batch Optimizer's tunables.
type ThresholdConfig struct {
	MinBatchSize                int     `mapstructure:"min_batch_size"`
	MaxBatchSize                int     `mapstructure:"max_batch_size"`
	MemoryThresholdMB           int     `mapstructure:"memory_threshold_mb"`
	ErrorRateThreshold          float64 `mapstructure:"error_rate_threshold"`
	RampUpFactor                float64 `mapstructure:"ramp_up_factor"`
	RampDownFactor              float64 `mapstructure:"ramp_down_factor"`
	ConsecutiveSuccessesForRamp int     `mapstructure:"consecutive_successes_for_ramp"`
}

// DefaultThresholds returns a ThresholdConfig seeded with the package's
// default constants and the given batch-size and memory bounds.
func DefaultThresholds(maxBatchSize, memoryThresholdMB int) ThresholdConfig {
	return ThresholdConfig{
		MinBatchSize:                DefaultMinBatchSize,
		MaxBatchSize:                maxBatchSize,
		MemoryThresholdMB:           memoryThresholdMB,
		ErrorRateThreshold:          DefaultErrorRateThreshold,
		RampUpFactor:                DefaultRampUpFactor,
		RampDownFactor:              DefaultRampDownFactor,
		ConsecutiveSuccessesForRamp: DefaultConsecutiveSuccessesForRamp,
	}
}
