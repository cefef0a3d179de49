package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// Config represents the application configuration with comprehensive options
// for every WCS component, as a flat struct with envDefault tags per field.
type Config struct {
	// Environment and basic settings
	Environment string `env:"ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`

	// Server configuration
	Port            int           `env:"PORT" envDefault:"6660"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	ShutdownGrace   time.Duration `env:"SERVER_SHUTDOWN_GRACE" envDefault:"2s"`

	// Graph / pathfinder tuning (C1)
	MaxFloors    int `env:"MAX_FLOORS" envDefault:"8"`
	MaxVehicles  int `env:"MAX_VEHICLES" envDefault:"200"`
	PathfindTimeout time.Duration `env:"PATHFIND_TIMEOUT" envDefault:"2s"`

	// Node occupation lease / reservation TTLs (C2, C3)
	OccupationLease time.Duration `env:"OCCUPATION_LEASE" envDefault:"300s"`
	ReservationTTL  time.Duration `env:"RESERVATION_TTL" envDefault:"120s"`

	// Path cache / traffic map (C4)
	PathTTL              time.Duration `env:"PATH_TTL" envDefault:"600s"`
	TrafficCleanupPeriod time.Duration `env:"TRAFFIC_CLEANUP_PERIOD" envDefault:"30s"`

	// Row direction locks / row coordination (C6)
	RowLockIdleExpiry time.Duration `env:"ROW_LOCK_IDLE_EXPIRY" envDefault:"5m"`
	RowLockSweepAge   time.Duration `env:"ROW_LOCK_SWEEP_AGE" envDefault:"10m"`
	RowLockSweepEvery time.Duration `env:"ROW_LOCK_SWEEP_EVERY" envDefault:"1m"`
	RowBatchTTL       time.Duration `env:"ROW_BATCH_TTL" envDefault:"1h"`

	// Lifter coordination (C7)
	LifterBusyTTL      time.Duration `env:"LIFTER_BUSY_TTL" envDefault:"60s"`
	LifterMoveTimeout  time.Duration `env:"LIFTER_MOVE_TIMEOUT" envDefault:"45s"`
	LifterTowerCount   int           `env:"LIFTER_TOWER_COUNT" envDefault:"1"`
	LifterPollInterval time.Duration `env:"LIFTER_POLL_INTERVAL" envDefault:"250ms"`
	LifterTickInterval time.Duration `env:"LIFTER_TICK_INTERVAL" envDefault:"500ms"`

	// Reservation store backend (C3): "memory" or "buntdb".
	ReservationBackend string `env:"RESERVATION_BACKEND" envDefault:"memory"`
	ReservationDBPath  string `env:"RESERVATION_DB_PATH" envDefault:"data/reservations.db"`

	// Demo fleet seeding on startup.
	DefaultShuttleCount int `env:"DEFAULT_SHUTTLE_COUNT" envDefault:"2"`
	DefaultAMRCount     int `env:"DEFAULT_AMR_COUNT" envDefault:"1"`

	// Conflict resolution (C9)
	ConflictInitialWait     time.Duration `env:"CONFLICT_INITIAL_WAIT" envDefault:"5s"`
	ConflictRetryInterval   time.Duration `env:"CONFLICT_RETRY_INTERVAL" envDefault:"15s"`
	ConflictEmergencyWaitAt time.Duration `env:"CONFLICT_EMERGENCY_WAIT_AT" envDefault:"45s"`
	DeadlockSweepEvery      time.Duration `env:"DEADLOCK_SWEEP_EVERY" envDefault:"30s"`
	ParkingMaxDistance      int           `env:"PARKING_MAX_DISTANCE" envDefault:"3"`
	MaxBacktrackSteps       int           `env:"MAX_BACKTRACK_STEPS" envDefault:"5"`

	// Staging scheduler (C10)
	StagingTickInterval   time.Duration `env:"STAGING_TICK_INTERVAL" envDefault:"5s"`
	MultiVehicleThreshold int           `env:"MULTI_VEHICLE_THRESHOLD" envDefault:"2"`

	// Publish-with-retry (C12)
	PublishAckTimeout  time.Duration `env:"PUBLISH_ACK_TIMEOUT" envDefault:"30s"`
	PublishRetryPeriod time.Duration `env:"PUBLISH_RETRY_PERIOD" envDefault:"500ms"`

	// AMR pollers and executor (C13)
	AMRLocationPollInterval time.Duration `env:"AMR_LOCATION_POLL_INTERVAL" envDefault:"1s"`
	AMRBatteryPollInterval  time.Duration `env:"AMR_BATTERY_POLL_INTERVAL" envDefault:"5s"`
	AMRCargoPollInterval    time.Duration `env:"AMR_CARGO_POLL_INTERVAL" envDefault:"3s"`
	AMRStatusPollInterval   time.Duration `env:"AMR_STATUS_POLL_INTERVAL" envDefault:"2s"`
	AMRSensorsPollInterval  time.Duration `env:"AMR_SENSORS_POLL_INTERVAL" envDefault:"2s"`
	AMRStepDelay            time.Duration `env:"AMR_STEP_DELAY" envDefault:"3s"`

	// External call deadlines (§5)
	ExternalCallTimeout time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"5s"`

	// HTTP Configuration
	RateLimitRPM       int           `env:"RATE_LIMIT_RPM" envDefault:"100"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitCleanup   time.Duration `env:"RATE_LIMIT_CLEANUP" envDefault:"5m"`
	MaxRequestSize     int64         `env:"MAX_REQUEST_SIZE" envDefault:"1048576"`
	RequestTimeoutHTTP time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	CORSEnabled        bool          `env:"CORS_ENABLED" envDefault:"true"`
	CORSMaxAge         time.Duration `env:"CORS_MAX_AGE" envDefault:"12h"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Monitoring
	MetricsEnabled       bool          `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsPath          string        `env:"METRICS_PATH" envDefault:"/metrics"`
	StatusUpdateInterval time.Duration `env:"STATUS_UPDATE_INTERVAL" envDefault:"1s"`
	HealthEnabled        bool          `env:"HEALTH_ENABLED" envDefault:"true"`
	HealthPath           string        `env:"HEALTH_PATH" envDefault:"/health"`
	StructuredLogging    bool          `env:"STRUCTURED_LOGGING" envDefault:"true"`
	LogRequestDetails    bool          `env:"LOG_REQUEST_DETAILS" envDefault:"false"`
	CorrelationIDHeader  string        `env:"CORRELATION_ID_HEADER" envDefault:"X-Request-ID"`

	// Circuit breaker (wraps the PLC contract, §6/§7)
	CircuitBreakerEnabled          bool          `env:"CIRCUIT_BREAKER_ENABLED" envDefault:"true"`
	CircuitBreakerMaxFailures      int           `env:"CIRCUIT_BREAKER_MAX_FAILURES" envDefault:"5"`
	CircuitBreakerResetTimeout     time.Duration `env:"CIRCUIT_BREAKER_RESET_TIMEOUT" envDefault:"30s"`
	CircuitBreakerHalfOpenLimit    int           `env:"CIRCUIT_BREAKER_HALF_OPEN_LIMIT" envDefault:"3"`
	CircuitBreakerFailureThreshold float64       `env:"CIRCUIT_BREAKER_FAILURE_THRESHOLD" envDefault:"0.6"`

	// WebSocket
	WebSocketEnabled           bool          `env:"WEBSOCKET_ENABLED" envDefault:"true"`
	WebSocketPath              string        `env:"WEBSOCKET_PATH" envDefault:"/ws/fleet"`
	WebSocketConnectionTimeout time.Duration `env:"WEBSOCKET_CONNECTION_TIMEOUT" envDefault:"10m"`
	WebSocketWriteTimeout      time.Duration `env:"WEBSOCKET_WRITE_TIMEOUT" envDefault:"5s"`
	WebSocketReadTimeout       time.Duration `env:"WEBSOCKET_READ_TIMEOUT" envDefault:"60s"`
	WebSocketPingInterval      time.Duration `env:"WEBSOCKET_PING_INTERVAL" envDefault:"30s"`
	WebSocketMaxConnections    int           `env:"WEBSOCKET_MAX_CONNECTIONS" envDefault:"1000"`
	WebSocketBufferSize        int           `env:"WEBSOCKET_BUFFER_SIZE" envDefault:"1024"`
}

// InitConfig initializes the configuration from environment variables with
// comprehensive validation.
func InitConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := applyEnvironmentDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment defaults: %w", err)
	}

	if err := validateConfiguration(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentDefaults applies environment-specific default values.
func applyEnvironmentDefaults(cfg *Config) error {
	switch cfg.Environment {
	case "development", "dev":
		applyDevelopmentDefaults(cfg)
	case "testing", "test":
		applyTestingDefaults(cfg)
	case "production", "prod":
		applyProductionDefaults(cfg)
	default:
		// Keep current defaults for unknown environments
	}

	return nil
}

// applyDevelopmentDefaults applies minimal changes for development.
func applyDevelopmentDefaults(cfg *Config) {
	if cfg.LogLevel == "INFO" {
		cfg.LogLevel = "DEBUG"
	}
	cfg.LogRequestDetails = true
}

// applyTestingDefaults applies strict, fast settings for testing.
func applyTestingDefaults(cfg *Config) {
	cfg.LogLevel = "WARN"

	cfg.PathfindTimeout = 200 * time.Millisecond
	cfg.OccupationLease = 5 * time.Second
	cfg.ReservationTTL = 2 * time.Second
	cfg.PathTTL = 5 * time.Second
	cfg.TrafficCleanupPeriod = 1 * time.Second
	cfg.RowLockIdleExpiry = 2 * time.Second
	cfg.RowLockSweepAge = 4 * time.Second
	cfg.RowLockSweepEvery = 1 * time.Second
	cfg.LifterBusyTTL = 2 * time.Second
	cfg.ConflictInitialWait = 200 * time.Millisecond
	cfg.ConflictRetryInterval = 500 * time.Millisecond
	cfg.ConflictEmergencyWaitAt = 1 * time.Second
	cfg.DeadlockSweepEvery = 1 * time.Second
	cfg.StagingTickInterval = 200 * time.Millisecond
	cfg.PublishAckTimeout = 1 * time.Second
	cfg.PublishRetryPeriod = 50 * time.Millisecond
	cfg.AMRStepDelay = 50 * time.Millisecond
	cfg.ExternalCallTimeout = 500 * time.Millisecond

	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.IdleTimeout = 10 * time.Second
	cfg.RequestTimeoutHTTP = 1 * time.Second

	cfg.MetricsEnabled = false
	cfg.WebSocketEnabled = false
	cfg.LogRequestDetails = false

	cfg.RateLimitRPM = 1000
	cfg.MaxVehicles = 20
	cfg.WebSocketMaxConnections = 5
	cfg.MaxRequestSize = 256 * 1024

	cfg.CircuitBreakerMaxFailures = 1
	cfg.CircuitBreakerFailureThreshold = 0.1
	cfg.CircuitBreakerResetTimeout = 5 * time.Second
}

// applyProductionDefaults applies high-performance and strict settings.
func applyProductionDefaults(cfg *Config) {
	cfg.LogLevel = "WARN"
	cfg.LogRequestDetails = false

	cfg.RateLimitRPM = 30

	cfg.ReadTimeout = 15 * time.Second
	cfg.WriteTimeout = 15 * time.Second
	cfg.IdleTimeout = 60 * time.Second
	cfg.RequestTimeoutHTTP = 10 * time.Second

	cfg.PathfindTimeout = 1 * time.Second
	cfg.ExternalCallTimeout = 3 * time.Second

	cfg.WebSocketConnectionTimeout = 10 * time.Minute
	cfg.WebSocketMaxConnections = 5000
	cfg.WebSocketWriteTimeout = 2 * time.Second
	cfg.WebSocketReadTimeout = 30 * time.Second
	cfg.WebSocketPingInterval = 15 * time.Second

	cfg.CircuitBreakerMaxFailures = 2
	cfg.CircuitBreakerFailureThreshold = 0.3
	cfg.CircuitBreakerResetTimeout = 10 * time.Second

	if cfg.CORSAllowedOrigins == "*" {
		cfg.CORSAllowedOrigins = "https://fleet.example.com"
	}
	cfg.MaxRequestSize = 512 * 1024

	if cfg.MaxVehicles == 200 {
		cfg.MaxVehicles = 500
	}
}

// validateConfiguration performs comprehensive configuration validation.
func validateConfiguration(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return domain.NewValidationError("port must be between 1 and 65535", nil).
			WithContext("port", cfg.Port)
	}

	if cfg.MaxFloors <= 0 || cfg.MaxFloors > 200 {
		return domain.NewValidationError("max floors must be between 1 and 200", nil).
			WithContext("max_floors", cfg.MaxFloors)
	}

	if cfg.MaxVehicles <= 0 || cfg.MaxVehicles > 10000 {
		return domain.NewValidationError("max vehicles must be between 1 and 10000", nil).
			WithContext("max_vehicles", cfg.MaxVehicles)
	}

	if cfg.OccupationLease <= 0 {
		return domain.NewValidationError("occupation lease must be positive", nil).
			WithContext("occupation_lease", cfg.OccupationLease)
	}

	if cfg.ConflictEmergencyWaitAt < cfg.ConflictInitialWait {
		return domain.NewValidationError("conflict emergency wait must be at least the initial wait", nil).
			WithContext("initial_wait", cfg.ConflictInitialWait).
			WithContext("emergency_wait_at", cfg.ConflictEmergencyWaitAt)
	}

	if cfg.LifterTowerCount <= 0 {
		return domain.NewValidationError("lifter tower count must be positive", nil).
			WithContext("lifter_tower_count", cfg.LifterTowerCount)
	}

	if err := validateEnvironmentSpecificConfig(cfg); err != nil {
		return err
	}

	return nil
}

// validateEnvironmentSpecificConfig validates environment-specific concerns.
func validateEnvironmentSpecificConfig(cfg *Config) error {
	if cfg.IsProduction() {
		if cfg.CORSAllowedOrigins == "*" {
			return domain.NewValidationError("CORS wildcard not allowed in production", nil).
				WithContext("environment", cfg.Environment)
		}
		if cfg.LogRequestDetails {
			return domain.NewValidationError("request logging should be disabled in production for performance", nil).
				WithContext("environment", cfg.Environment)
		}
		if cfg.RateLimitRPM > 100 {
			return domain.NewValidationError("rate limit too high for production", nil).
				WithContext("environment", cfg.Environment).
				WithContext("rate_limit", cfg.RateLimitRPM)
		}
	}

	if cfg.IsTesting() {
		if cfg.WebSocketEnabled {
			return domain.NewValidationError("WebSocket should be disabled in testing environment", nil).
				WithContext("environment", cfg.Environment)
		}
		if cfg.MetricsEnabled {
			return domain.NewValidationError("metrics should be disabled in testing environment", nil).
				WithContext("environment", cfg.Environment)
		}
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// IsTesting returns true if running in testing environment.
func (c *Config) IsTesting() bool {
	return c.Environment == "testing" || c.Environment == "test"
}

// GetEnvironmentInfo returns environment information for logging/debugging.
func (c *Config) GetEnvironmentInfo() map[string]interface{} {
	return map[string]interface{}{
		"environment":             c.Environment,
		"log_level":               c.LogLevel,
		"port":                    c.Port,
		"metrics_enabled":         c.MetricsEnabled,
		"websocket_enabled":       c.WebSocketEnabled,
		"circuit_breaker_enabled": c.CircuitBreakerEnabled,
	}
}
