package config

import (
	"fmt"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/blockrank/blockrank/internal/common"
	"github.com/blockrank/blockrank/internal/logger"
)

// Config represents the complete configuration for the BlockRank indexer.
type Config struct {
	// Chain contains chain access and indexing pipeline configuration
	Chain ChainConfig `yaml:"chain" json:"chain" toml:"chain"`

	// Store contains database configuration for the entity store
	Store DatabaseConfig `yaml:"store" json:"store" toml:"store"`

	// API contains the query API server configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`

	// Client contains the poller/throttle client configuration
	Client *ClientConfig `yaml:"client,omitempty" json:"client,omitempty" toml:"client,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ChainConfig configures chain access and the event pipeline.
type ChainConfig struct {
	// RPCURL is the Ethereum RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// RegistryAddress is the factory/registry contract that emits
	// user registration and block creation events
	RegistryAddress string `yaml:"registry_address" json:"registry_address" toml:"registry_address"`

	// StartBlock is the block number to start indexing from
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// ChunkSize is the block range per eth_getLogs call
	ChunkSize uint64 `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size"`

	// PollInterval is how long to wait between head checks once caught up
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional chain configuration fields.
func (c *ChainConfig) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 5000
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval = common.NewDuration(12 * time.Second) //nolint:mnd
	}
	if c.Retry != nil {
		c.Retry.ApplyDefaults()
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents SQLite database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	// EnableForeignKeys defaults to false (zero value)
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path is required")
	}

	switch d.JournalMode {
	case "", "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY":
	default:
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	switch d.Synchronous {
	case "", "FULL", "NORMAL", "OFF":
	default:
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}

	return nil
}

// APIConfig configures the HTTP query API server.
type APIConfig struct {
	// Enabled controls whether the query API server runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout is the HTTP server read timeout
	ReadTimeout common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`

	// WriteTimeout is the HTTP server write timeout
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`

	// IdleTimeout is the HTTP server idle timeout
	IdleTimeout common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// CORS configures cross-origin resource sharing
	CORS CORSConfig `yaml:"cors" json:"cors" toml:"cors"`

	// RateLimit configures the request throttling gateway
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit" toml:"rate_limit"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	a.RateLimit.ApplyDefaults()
}

// CORSConfig configures cross-origin resource sharing for the API.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// AllowedOrigins lists the origins allowed to call the API
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
}

// RateLimitConfig configures the API request throttling gateway.
// Rejected requests receive HTTP 429 with a Retry-After header so clients
// can apply their cooldown policy.
type RateLimitConfig struct {
	// Enabled controls whether the throttling gateway is active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// RequestsPerMinute is the sustained request rate allowed per server
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute" toml:"requests_per_minute"`

	// Burst is the number of requests allowed to exceed the sustained rate
	Burst int `yaml:"burst" json:"burst" toml:"burst"`
}

// ApplyDefaults sets default values for rate limit configuration.
func (r *RateLimitConfig) ApplyDefaults() {
	if r.RequestsPerMinute == 0 {
		r.RequestsPerMinute = 120
	}
	if r.Burst == 0 {
		r.Burst = 30
	}
}

// ClientConfig configures the client-side poller and throttle guard.
type ClientConfig struct {
	// QueryURL is the base URL of the query API consumed by the poller
	QueryURL string `yaml:"query_url" json:"query_url" toml:"query_url"`

	// PollInterval is the tick interval for chain height checks
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// RefreshDelay is how long to wait after detecting new registry logs
	// before refreshing, giving the indexer time to catch up
	RefreshDelay common.Duration `yaml:"refresh_delay" json:"refresh_delay" toml:"refresh_delay"`

	// CooldownBase is the initial cooldown applied after a 429 response
	CooldownBase common.Duration `yaml:"cooldown_base" json:"cooldown_base" toml:"cooldown_base"`

	// CooldownMax caps the doubled cooldown window
	CooldownMax common.Duration `yaml:"cooldown_max" json:"cooldown_max" toml:"cooldown_max"`

	// BackoffMax caps the auto-refresh exponential backoff
	BackoffMax common.Duration `yaml:"backoff_max" json:"backoff_max" toml:"backoff_max"`

	// CacheTTL is the freshness window for client-side caches
	CacheTTL common.Duration `yaml:"cache_ttl" json:"cache_ttl" toml:"cache_ttl"`

	// RequestTimeout is the per-request timeout for query API calls
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`

	// PositionCachePath is the file backing the local position cache
	PositionCachePath string `yaml:"position_cache_path" json:"position_cache_path" toml:"position_cache_path"`

	// WatchLevels lists the ranking levels the watcher keeps refreshed
	WatchLevels []int `yaml:"watch_levels" json:"watch_levels" toml:"watch_levels"`
}

// ApplyDefaults sets default values for optional client configuration fields.
func (c *ClientConfig) ApplyDefaults() {
	if c.PollInterval.Duration == 0 {
		c.PollInterval = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if c.RefreshDelay.Duration == 0 {
		c.RefreshDelay = common.NewDuration(8 * time.Second) //nolint:mnd
	}
	if c.CooldownBase.Duration == 0 {
		c.CooldownBase = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if c.CooldownMax.Duration == 0 {
		c.CooldownMax = common.NewDuration(5 * time.Minute) //nolint:mnd
	}
	if c.BackoffMax.Duration == 0 {
		c.BackoffMax = common.NewDuration(5 * time.Minute) //nolint:mnd
	}
	if c.CacheTTL.Duration == 0 {
		c.CacheTTL = common.NewDuration(5 * time.Minute) //nolint:mnd
	}
	if c.RequestTimeout.Duration == 0 {
		c.RequestTimeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if c.PositionCachePath == "" {
		c.PositionCachePath = "positions.json"
	}
	if len(c.WatchLevels) == 0 {
		c.WatchLevels = []int{1}
	}
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components: pipeline, store, ranking, registrar, api, poller, rpc
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Chain.ApplyDefaults()
	c.Store.ApplyDefaults()

	if c.API != nil {
		c.API.ApplyDefaults()
	}
	if c.Client != nil {
		c.Client.ApplyDefaults()
	}
	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}

	if c.Chain.RegistryAddress == "" {
		return fmt.Errorf("chain.registry_address is required")
	}

	if !ethcommon.IsHexAddress(c.Chain.RegistryAddress) {
		return fmt.Errorf("chain.registry_address is not a valid address: %s", c.Chain.RegistryAddress)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if c.Client != nil && c.Client.CooldownBase.Duration > c.Client.CooldownMax.Duration {
		return fmt.Errorf("client.cooldown_base must not exceed client.cooldown_max")
	}

	return nil
}
