package config

// Default pipeline and threshold values, applied by LoadConfig before any
// file or environment override.
const (
	DefaultInitialBatchSize   = 10
	DefaultMaxBatchSize       = 100
	DefaultMemoryThresholdMB  = 500
	DefaultCheckpointInterval = 1
	DefaultEnableResume       = true
	DefaultParallelThreshold  = 50
	DefaultMaxParallelWorkers = 0 // 0 selects min(NumCPU, 8) automatically.
	DefaultRetryFailed        = false
)

// Default vector-database connection values.
const (
	DefaultVectorDBHost           = "localhost"
	DefaultVectorDBPort           = 6334
	DefaultVectorDBUseTLS         = false
	DefaultVectorDBConnectTimeout = "5s"
)

// Default embedder values.
const (
	DefaultEmbedderModel = "text-embedding-3-small"
)

// Default logging values.
const (
	DefaultLoggingLevel = "info"
	DefaultLoggingJSON  = false
)

// Default observability values. An empty OTLPEndpoint and DiagnosticsAddr
// keep telemetry export and the diagnostics server disabled until a
// deployment opts in.
const (
	DefaultObservabilityOTLPEndpoint    = ""
	DefaultObservabilityOTLPInsecure    = false
	DefaultObservabilityDebugTrace      = false
	DefaultObservabilitySampleRatio     = 1.0
	DefaultObservabilityDiagnosticsAddr = ""
)
