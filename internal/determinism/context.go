package determinism

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Derivation purposes. Each purpose yields an independent sub-seed from
// the same root seed.
const (
	PurposeRNG  = "rng"
	PurposeUUID = "uuid"
	PurposeFake = "fake"
)

// Config holds the deterministic-execution knobs parsed from a scenario
// document. Both fields are optional: an empty Seed means each run is
// independently random and no reproducibility claim is made.
type Config struct {
	// Seed is the human-supplied root seed string.
	Seed string `yaml:"seed,omitempty" json:"seed,omitempty"`

	// FreezeClock is an RFC3339 timestamp. When set, Now() returns it
	// verbatim for the lifetime of the context.
	FreezeClock string `yaml:"freeze_clock,omitempty" json:"freeze_clock,omitempty"`
}

// Deterministic reports whether any determinism feature is enabled.
func (c Config) Deterministic() bool {
	return c.Seed != "" || c.FreezeClock != ""
}

// ConfigError indicates malformed determinism configuration (for example
// an unparseable freeze_clock). It is fatal at context construction:
// construction never falls back to wall-clock silently.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("CONFIGURATION: %s: %s (got %q)", e.Field, e.Message, e.Value)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Context is an immutable per-scenario-run determinism context. It owns
// sub-seed derivation, the clock, and the seeded generator streams.
//
// The sub-seed map is derived lazily; derivation is a pure function of
// (root seed, purpose), so laziness is invisible to callers.
type Context struct {
	cfg    Config
	frozen time.Time
	hasClk bool

	mu       sync.Mutex
	subSeeds map[string][32]byte
	rng      *stream
	uuids    *stream
	fake     *stream
}

// NewContext validates cfg and builds a Context.
// A malformed FreezeClock fails here with a ConfigError.
func NewContext(cfg Config) (*Context, error) {
	ctx := &Context{
		cfg:      cfg,
		subSeeds: make(map[string][32]byte, 3),
	}

	if cfg.FreezeClock != "" {
		ts, err := time.Parse(time.RFC3339, cfg.FreezeClock)
		if err != nil {
			return nil, &ConfigError{
				Field:   "freeze_clock",
				Value:   cfg.FreezeClock,
				Message: "not a valid RFC3339 timestamp (expected e.g. 2024-01-01T00:00:00Z)",
			}
		}
		ctx.frozen = ts.UTC()
		ctx.hasClk = true
	}

	return ctx, nil
}

// Config returns the configuration the context was built from.
func (c *Context) Config() Config { return c.cfg }

// Seeded reports whether a root seed is configured.
func (c *Context) Seeded() bool { return c.cfg.Seed != "" }

// Frozen reports whether the clock is frozen.
func (c *Context) Frozen() bool { return c.hasClk }

// Now returns the frozen instant verbatim when freeze_clock is set,
// otherwise the current wall-clock time in UTC. Every subsystem that
// needs "current time" must go through this method.
func (c *Context) Now() time.Time {
	if c.hasClk {
		return c.frozen
	}
	return time.Now().UTC()
}

// Derive computes the sub-seed for a purpose:
// HMAC-SHA256(key=root seed, message=purpose). Pure and memoized;
// distinct purposes yield independent seeds with overwhelming probability.
func (c *Context) Derive(purpose string) [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deriveLocked(purpose)
}

func (c *Context) deriveLocked(purpose string) [32]byte {
	if s, ok := c.subSeeds[purpose]; ok {
		return s
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.Seed))
	mac.Write([]byte(purpose))
	var seed [32]byte
	copy(seed[:], mac.Sum(nil))
	c.subSeeds[purpose] = seed
	return seed
}

// Summary returns a stable one-line description of the deterministic
// inputs, embedded in trace metadata and baseline bundles. It is a pure
// function of the config so recorded and reproduced runs agree on it.
func (c *Context) Summary() string {
	seed := "none"
	if c.cfg.Seed != "" {
		seed = c.cfg.Seed
	}
	clock := "wall"
	if c.cfg.FreezeClock != "" {
		clock = c.cfg.FreezeClock
	}
	return fmt.Sprintf("seed=%s clock=%s", seed, clock)
}
