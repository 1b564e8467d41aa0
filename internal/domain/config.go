package domain

import "time"

// Config holds the complete Merlin configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`

	Screening   ScreeningConfig   `mapstructure:"screening"`
	Hints       HintConfig        `mapstructure:"hints"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Explain     ExplainConfig     `mapstructure:"explain"`
	RiskScore   RiskScoreConfig   `mapstructure:"riskscore"`
	Velocity    VelocityConfig    `mapstructure:"velocity"`
	Persistence PersistenceConfig `mapstructure:"persistence"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventbus"`

	// Observability
	Logging LoggingConfig `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ScreeningConfig controls the rule engine.
type ScreeningConfig struct {
	RulesPath string `mapstructure:"rules_path"`

	// ContinueOnFlag scores flagged profiles instead of stopping at the flags.
	ContinueOnFlag bool `mapstructure:"continue_on_flag"`

	// CostLimit bounds the evaluation cost of a single condition. Zero disables the limit.
	CostLimit uint64 `mapstructure:"cost_limit"`
}

// HintConfig holds the thresholds for presentation hints.
type HintConfig struct {
	UtilizationAbove     float64 `mapstructure:"utilization_above"`
	DelayedPaymentsAbove int     `mapstructure:"delayed_payments_above"`
	DebtAbove            float64 `mapstructure:"debt_above"`
}

// CatalogConfig controls the product recommender.
type CatalogConfig struct {
	Path     string        `mapstructure:"path"`
	TopK     int           `mapstructure:"top_k"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ExplainConfig selects and configures the explanation provider.
type ExplainConfig struct {
	// Provider is "bedrock", "gemini" or "none".
	Provider string `mapstructure:"provider"`

	// Bedrock
	APIKey              string `mapstructure:"api_key"`
	ModelID             string `mapstructure:"model_id"`
	InferenceProfileID  string `mapstructure:"inference_profile_id"`
	InferenceProfileARN string `mapstructure:"inference_profile_arn"`
	Region              string `mapstructure:"region"`
	TargetRegion        string `mapstructure:"target_region"`

	// Gemini
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature *float64      `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RiskScoreConfig configures the external scoring endpoint.
type RiskScoreConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Region   string        `mapstructure:"region"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// VelocityConfig controls the per-applicant application counter.
type VelocityConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Window  time.Duration `mapstructure:"window"`
}

// PersistenceConfig selects how completed applications are stored.
type PersistenceConfig struct {
	// Mode is "direct" (write in the request) or "async" (publish and let the worker write).
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`

	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// DefaultConfig returns a single-node configuration: SQLite, in-memory cache and channels.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		Screening: ScreeningConfig{
			RulesPath: "./config/screening_rules.json",
			CostLimit: 10000,
		},
		Hints: HintConfig{
			UtilizationAbove:     35,
			DelayedPaymentsAbove: 3,
			DebtAbove:            5000,
		},
		Catalog: CatalogConfig{
			Path:     "./config/products.json",
			TopK:     3,
			CacheTTL: 5 * time.Minute,
		},
		Explain: ExplainConfig{
			Provider:    "bedrock",
			Region:      "us-west-2",
			GeminiModel: "gemini-2.5-flash",
			MaxTokens:   200,
			Timeout:     60 * time.Second,
		},
		RiskScore: RiskScoreConfig{
			Region:  "us-west-2",
			Timeout: 10 * time.Second,
		},
		Velocity: VelocityConfig{
			Window: 24 * time.Hour,
		},
		Persistence: PersistenceConfig{
			Mode:    "direct",
			Timeout: 5 * time.Second,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./merlin.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
			NATSMaxReconnects: 10,
			NATSReconnectWait: 5 * time.Second,
			NATSQueue:         "merlin",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "merlin",
			Endpoint:    "localhost:4318",
			Insecure:    true,
		},
	}
}
