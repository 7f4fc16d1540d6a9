// Package config loads the governor's environment-sourced configuration:
// the agent host location, the store connection, and the tunable
// thresholds for loop detection, fitter dispatch, and reconnect backoff.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// HostConfig describes how to reach the external agent host.
type HostConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StoreConfig describes the Postgres-backed punch store.
type StoreConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoopThresholds holds the loop detector's configurable thresholds.
type LoopThresholds struct {
	MaxSteps          int
	MaxCostUSD        float64
	MinCycleLength    int
	MaxCycleLength    int
	CycleRepetitions  int
	CacheWindowSize   int
	CachePlateauRatio float64
}

// FitterConfig resolves timeout/budget defaults for dispatched fitters.
type FitterConfig struct {
	MSPerDollar        int64
	MinTimeoutMS       int64
	MaxTimeoutMS       int64
	DefaultTokenBudget int
}

// ReconnectConfig bounds the daemon's stream reconnect backoff.
type ReconnectConfig struct {
	Initial time.Duration
	Max     time.Duration
}

// Config is the fully resolved, validated configuration for the governor.
type Config struct {
	Host          HostConfig
	Store         StoreConfig
	Loop          LoopThresholds
	Fitter        FitterConfig
	Reconnect     ReconnectConfig
	CatchupWindow time.Duration

	// ReplicaID identifies this process to sibling replicas over the
	// cross-replica kill fan-out channel.
	ReplicaID string

	// HealthPort is the bind port for the /healthz and /debug HTTP
	// surface.
	HealthPort int

	// AdvertiseHost is this replica's own reachable address, passed as
	// SessionRequest.Host/Port so a dispatched fitter session knows
	// which governor instance to report back to.
	AdvertiseHost string
}

// Load reads configuration from the environment, applying defaults for
// anything unset, and validates the result. It is the sole entry point
// production code should use; tests construct Config literals directly.
func Load() (*Config, error) {
	storePort, err := strconv.Atoi(getEnv("GOVERNOR_DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_DB_PORT: %w", err)
	}
	maxOpen, err := strconv.Atoi(getEnv("GOVERNOR_DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := strconv.Atoi(getEnv("GOVERNOR_DB_MAX_IDLE_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_DB_MAX_IDLE_CONNS: %w", err)
	}
	connMaxLifetime, err := time.ParseDuration(getEnv("GOVERNOR_DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_DB_CONN_MAX_LIFETIME: %w", err)
	}
	connMaxIdleTime, err := time.ParseDuration(getEnv("GOVERNOR_DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_DB_CONN_MAX_IDLE_TIME: %w", err)
	}
	hostTimeout, err := time.ParseDuration(getEnv("GOVERNOR_HOST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_HOST_TIMEOUT: %w", err)
	}
	reconnectInitial, err := time.ParseDuration(getEnv("GOVERNOR_RECONNECT_INITIAL", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_RECONNECT_INITIAL: %w", err)
	}
	reconnectMax, err := time.ParseDuration(getEnv("GOVERNOR_RECONNECT_MAX", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_RECONNECT_MAX: %w", err)
	}
	catchupWindow, err := time.ParseDuration(getEnv("GOVERNOR_CATCHUP_WINDOW", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_CATCHUP_WINDOW: %w", err)
	}

	maxSteps, err := strconv.Atoi(getEnv("GOVERNOR_MAX_STEPS", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_MAX_STEPS: %w", err)
	}
	maxCost, err := strconv.ParseFloat(getEnv("GOVERNOR_MAX_COST_USD", "10.0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_MAX_COST_USD: %w", err)
	}
	minCycleLen, err := strconv.Atoi(getEnv("GOVERNOR_MIN_CYCLE_LEN", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_MIN_CYCLE_LEN: %w", err)
	}
	maxCycleLen, err := strconv.Atoi(getEnv("GOVERNOR_MAX_CYCLE_LEN", "6"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_MAX_CYCLE_LEN: %w", err)
	}
	cycleReps, err := strconv.Atoi(getEnv("GOVERNOR_CYCLE_REPETITIONS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_CYCLE_REPETITIONS: %w", err)
	}
	cacheWindow, err := strconv.Atoi(getEnv("GOVERNOR_CACHE_WINDOW_SIZE", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_CACHE_WINDOW_SIZE: %w", err)
	}
	cacheRatio, err := strconv.ParseFloat(getEnv("GOVERNOR_CACHE_PLATEAU_RATIO", "0.3"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_CACHE_PLATEAU_RATIO: %w", err)
	}

	msPerDollar, err := strconv.ParseInt(getEnv("GOVERNOR_FITTER_MS_PER_DOLLAR", "60000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_FITTER_MS_PER_DOLLAR: %w", err)
	}
	minTimeout, err := strconv.ParseInt(getEnv("GOVERNOR_FITTER_MIN_TIMEOUT_MS", "30000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_FITTER_MIN_TIMEOUT_MS: %w", err)
	}
	maxTimeout, err := strconv.ParseInt(getEnv("GOVERNOR_FITTER_MAX_TIMEOUT_MS", "300000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_FITTER_MAX_TIMEOUT_MS: %w", err)
	}
	tokenBudget, err := strconv.Atoi(getEnv("GOVERNOR_FITTER_DEFAULT_TOKEN_BUDGET", "100000"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_FITTER_DEFAULT_TOKEN_BUDGET: %w", err)
	}
	healthPort, err := strconv.Atoi(getEnv("GOVERNOR_HEALTH_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVERNOR_HEALTH_PORT: %w", err)
	}

	cfg := &Config{
		Host: HostConfig{
			BaseURL: getEnv("GOVERNOR_HOST_BASE_URL", "http://localhost:4096"),
			Timeout: hostTimeout,
		},
		Store: StoreConfig{
			Host:            getEnv("GOVERNOR_DB_HOST", "localhost"),
			Port:            storePort,
			User:            getEnv("GOVERNOR_DB_USER", "governor"),
			Password:        os.Getenv("GOVERNOR_DB_PASSWORD"),
			Database:        getEnv("GOVERNOR_DB_NAME", "governor"),
			SSLMode:         getEnv("GOVERNOR_DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
		},
		Loop: LoopThresholds{
			MaxSteps:          maxSteps,
			MaxCostUSD:        maxCost,
			MinCycleLength:    minCycleLen,
			MaxCycleLength:    maxCycleLen,
			CycleRepetitions:  cycleReps,
			CacheWindowSize:   cacheWindow,
			CachePlateauRatio: cacheRatio,
		},
		Fitter: FitterConfig{
			MSPerDollar:        msPerDollar,
			MinTimeoutMS:       minTimeout,
			MaxTimeoutMS:       maxTimeout,
			DefaultTokenBudget: tokenBudget,
		},
		Reconnect: ReconnectConfig{
			Initial: reconnectInitial,
			Max:     reconnectMax,
		},
		CatchupWindow: catchupWindow,
		ReplicaID:     getEnv("GOVERNOR_REPLICA_ID", uuid.NewString()),
		HealthPort:    healthPort,
		AdvertiseHost: getEnv("GOVERNOR_ADVERTISE_HOST", "localhost"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved configuration for internal consistency.
// Fatal configuration errors must be caught here, at startup, so the
// daemon exits non-zero before opening any connection.
func (c *Config) Validate() error {
	if c.Store.Password == "" {
		return fmt.Errorf("%w: GOVERNOR_DB_PASSWORD is required", ErrInvalidValue)
	}
	if c.Store.MaxIdleConns > c.Store.MaxOpenConns {
		return fmt.Errorf("%w: GOVERNOR_DB_MAX_IDLE_CONNS (%d) cannot exceed GOVERNOR_DB_MAX_OPEN_CONNS (%d)",
			ErrInvalidValue, c.Store.MaxIdleConns, c.Store.MaxOpenConns)
	}
	if c.Store.MaxOpenConns < 1 {
		return fmt.Errorf("%w: GOVERNOR_DB_MAX_OPEN_CONNS must be at least 1", ErrInvalidValue)
	}
	if c.Host.BaseURL == "" {
		return fmt.Errorf("%w: GOVERNOR_HOST_BASE_URL is required", ErrInvalidValue)
	}
	if c.Loop.MinCycleLength < 1 || c.Loop.MaxCycleLength < c.Loop.MinCycleLength {
		return fmt.Errorf("%w: invalid loop cycle length bounds [%d,%d]",
			ErrInvalidValue, c.Loop.MinCycleLength, c.Loop.MaxCycleLength)
	}
	if c.Loop.CycleRepetitions < 2 {
		return fmt.Errorf("%w: GOVERNOR_CYCLE_REPETITIONS must be at least 2", ErrInvalidValue)
	}
	if c.Loop.CacheWindowSize < 1 {
		return fmt.Errorf("%w: GOVERNOR_CACHE_WINDOW_SIZE must be at least 1", ErrInvalidValue)
	}
	if c.Fitter.MinTimeoutMS <= 0 || c.Fitter.MaxTimeoutMS < c.Fitter.MinTimeoutMS {
		return fmt.Errorf("%w: invalid fitter timeout bounds [%d,%d]ms",
			ErrInvalidValue, c.Fitter.MinTimeoutMS, c.Fitter.MaxTimeoutMS)
	}
	if c.Reconnect.Initial <= 0 || c.Reconnect.Max < c.Reconnect.Initial {
		return fmt.Errorf("%w: invalid reconnect backoff bounds [%s,%s]",
			ErrInvalidValue, c.Reconnect.Initial, c.Reconnect.Max)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
