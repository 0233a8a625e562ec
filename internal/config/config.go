// Package config loads codeindex's runtime configuration: pipeline tunables,
// the vector-database connection, the embedding provider, and logging.
package config

import (
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/kestrel-labs/codeindex/pkg/indexing"
)

// Config is the top-level configuration struct for codeindex. Field tags
// use mapstructure for viper unmarshalling.
type Config struct {
	Pipeline      indexing.PipelineConfig `mapstructure:"pipeline"`
	Threshold     ThresholdConfig         `mapstructure:"threshold"`
	VectorDB      VectorDBConfig          `mapstructure:"vector_db"`
	Embedder      EmbedderConfig          `mapstructure:"embedder"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
}

// ThresholdConfig exposes the Batch Optimizer's tunables for overriding the
// package defaults (indexing.DefaultThresholds).
type ThresholdConfig struct {
	ErrorRateThreshold          float64 `mapstructure:"error_rate_threshold"`
	RampUpFactor                float64 `mapstructure:"ramp_up_factor"`
	RampDownFactor              float64 `mapstructure:"ramp_down_factor"`
	ConsecutiveSuccessesForRamp int     `mapstructure:"consecutive_successes_for_ramp"`
}

// VectorDBConfig holds the connection parameters for the Qdrant collaborator.
type VectorDBConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	APIKey         string `mapstructure:"api_key"`
	UseTLS         bool   `mapstructure:"use_tls"`
	Collection     string `mapstructure:"collection"`
	ConnectTimeout string `mapstructure:"connect_timeout"`
}

// EmbedderConfig holds the embedding-provider collaborator's parameters.
type EmbedderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// ResolvedModel returns Model as an openai.EmbeddingModel, defaulting when
// unset.
func (c EmbedderConfig) ResolvedModel() openai.EmbeddingModel {
	if c.Model == "" {
		return openai.SmallEmbedding3
	}

	return openai.EmbeddingModel(c.Model)
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ObservabilityConfig controls OTel tracing/metrics export and the
// diagnostics HTTP server. An empty OTLPEndpoint keeps tracing/metrics
// providers no-op, matching internal/observability.Init's zero-overhead
// default.
type ObservabilityConfig struct {
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"`
	DebugTrace      bool    `mapstructure:"debug_trace"`
	SampleRatio     float64 `mapstructure:"sample_ratio"`
	DiagnosticsAddr string  `mapstructure:"diagnostics_addr"` // empty disables the /healthz /readyz /metrics server.
}

// Sentinel errors for configuration validation.
var (
	ErrMissingCollection = errors.New("vector_db.collection is required")
	ErrInvalidPort       = errors.New("vector_db.port must be positive")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if pipelineErr := c.Pipeline.Validate(); pipelineErr != nil {
		return pipelineErr
	}

	if c.VectorDB.Collection == "" {
		return ErrMissingCollection
	}

	if c.VectorDB.Port <= 0 {
		return ErrInvalidPort
	}

	return nil
}
