package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".codeindex"

// configType is the config file format; viper also accepts YAML content
// under a .yml/.yaml extension when configPath is explicit.
const configType = "yaml"

// envPrefix is the environment variable prefix for codeindex settings.
const envPrefix = "CODEINDEX"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME. A missing config
// file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, homeErr := os.UserHomeDir()
		if homeErr == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("pipeline.initial_batch_size", DefaultInitialBatchSize)
	viperCfg.SetDefault("pipeline.max_batch_size", DefaultMaxBatchSize)
	viperCfg.SetDefault("pipeline.memory_threshold_mb", DefaultMemoryThresholdMB)
	viperCfg.SetDefault("pipeline.checkpoint_interval", DefaultCheckpointInterval)
	viperCfg.SetDefault("pipeline.enable_resume", DefaultEnableResume)
	viperCfg.SetDefault("pipeline.parallel_threshold", DefaultParallelThreshold)
	viperCfg.SetDefault("pipeline.max_parallel_workers", DefaultMaxParallelWorkers)
	viperCfg.SetDefault("pipeline.retry_failed", DefaultRetryFailed)

	viperCfg.SetDefault("vector_db.host", DefaultVectorDBHost)
	viperCfg.SetDefault("vector_db.port", DefaultVectorDBPort)
	viperCfg.SetDefault("vector_db.use_tls", DefaultVectorDBUseTLS)
	viperCfg.SetDefault("vector_db.connect_timeout", DefaultVectorDBConnectTimeout)

	viperCfg.SetDefault("embedder.model", DefaultEmbedderModel)

	viperCfg.SetDefault("logging.level", DefaultLoggingLevel)
	viperCfg.SetDefault("logging.json", DefaultLoggingJSON)

	viperCfg.SetDefault("observability.otlp_endpoint", DefaultObservabilityOTLPEndpoint)
	viperCfg.SetDefault("observability.otlp_insecure", DefaultObservabilityOTLPInsecure)
	viperCfg.SetDefault("observability.debug_trace", DefaultObservabilityDebugTrace)
	viperCfg.SetDefault("observability.sample_ratio", DefaultObservabilitySampleRatio)
	viperCfg.SetDefault("observability.diagnostics_addr", DefaultObservabilityDiagnosticsAddr)
}
