package persist

import (
	"log/slog"
	"time"
)

// Config holds the tunables of the persistence engine.
type Config struct {
	// MatchTolerance is the position tolerance, in blocks (meters), for
	// ordinary fuzzy identity matches.
	// Default: 1.0.
	MatchTolerance float64

	// DuplicateTolerance is the tighter position tolerance used when
	// checking whether a new entity was already recreated by an earlier run.
	// Default: 0.5.
	DuplicateTolerance float64

	// RemovalTolerance is the position tolerance for finding entities that
	// must be destroyed.
	// Default: 0.5.
	RemovalTolerance float64

	// RotationTolerance is the per-axis rotation tolerance in degrees.
	// Default: 10.
	RotationTolerance float64

	// PhysicsPositionThreshold is how far a simulating entity must drift
	// from its original pose before its velocity is saved.
	// Default: 0.01.
	PhysicsPositionThreshold float64

	// PhysicsRotationThreshold is the rotation counterpart, in degrees.
	// Default: 1.
	PhysicsRotationThreshold float64

	// PhysicsScaleThreshold is the scale counterpart.
	// Default: 0.01.
	PhysicsScaleThreshold float64

	// SettleDelay is the wait between a space finishing its load and the
	// first "are positions settled" check, and between retries.
	// Default: 100ms.
	SettleDelay time.Duration

	// SettleRetries is how many extra checks are made before reconciling
	// anyway.
	// Default: 2.
	SettleRetries int

	// OpenTimeout bounds AwaitOpen when the caller passes zero.
	// Default: 10s.
	OpenTimeout time.Duration

	// Logger receives engine logs.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MatchTolerance:           1.0,
		DuplicateTolerance:       0.5,
		RemovalTolerance:         0.5,
		RotationTolerance:        10,
		PhysicsPositionThreshold: 0.01,
		PhysicsRotationThreshold: 1,
		PhysicsScaleThreshold:    0.01,
		SettleDelay:              100 * time.Millisecond,
		SettleRetries:            2,
		OpenTimeout:              10 * time.Second,
	}
}

// logger returns the configured logger or the default one.
func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Option configures the engine.
type Option func(*Config)

// WithMatchTolerance sets the ordinary fuzzy match tolerance.
func WithMatchTolerance(meters float64) Option {
	return func(c *Config) {
		c.MatchTolerance = meters
	}
}

// WithDuplicateTolerance sets the duplicate-suppression tolerance.
func WithDuplicateTolerance(meters float64) Option {
	return func(c *Config) {
		c.DuplicateTolerance = meters
	}
}

// WithRemovalTolerance sets the tolerance for locating entities to destroy.
func WithRemovalTolerance(meters float64) Option {
	return func(c *Config) {
		c.RemovalTolerance = meters
	}
}

// WithRotationTolerance sets the per-axis rotation tolerance in degrees.
func WithRotationTolerance(degrees float64) Option {
	return func(c *Config) {
		c.RotationTolerance = degrees
	}
}

// WithPhysicsThresholds sets the drift thresholds that decide whether a
// simulating entity's velocity is saved.
func WithPhysicsThresholds(position, rotation, scale float64) Option {
	return func(c *Config) {
		c.PhysicsPositionThreshold = position
		c.PhysicsRotationThreshold = rotation
		c.PhysicsScaleThreshold = scale
	}
}

// WithSettle sets the settle delay and retry budget used while opening.
func WithSettle(delay time.Duration, retries int) Option {
	return func(c *Config) {
		c.SettleDelay = delay
		c.SettleRetries = retries
	}
}

// WithOpenTimeout sets the default AwaitOpen timeout.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.OpenTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// newConfig applies opts over DefaultConfig.
func newConfig(opts ...Option) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
