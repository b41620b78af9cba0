// Package determinism provides the per-scenario determinism context:
// seed derivation, frozen clocks, and seeded generator streams.
//
// A Context is created once when a scenario begins and never mutated.
// Two contexts built from the same root seed and frozen clock derive
// identical sub-seeds and produce identical generator streams, which is
// the foundation of the "same seed, same digest" guarantee.
//
// Sub-seeds are derived per purpose ("rng", "uuid", "fake") with a keyed
// hash so unrelated generators never correlate. There is no global RNG
// state anywhere in this package: concurrent scenario runs each own their
// Context and cannot cross-contaminate randomness.
package determinism
