// Package canonical transforms raw execution traces into an
// order-independent, volatility-stripped canonical form and digests it.
//
// The contract: two traces that are observably identical canonicalize to
// byte-identical serializations, and the digest is a deterministic
// function of those bytes alone. Insertion order, span IDs, absolute
// wall-clock times, and ephemeral identifiers (container IDs, allocated
// ports) never affect the result; genuine behavioral differences always
// do.
//
// Canonicalization never recovers from malformed input. A best-effort
// canonical form would silently break the determinism guarantee, so any
// value that cannot be canonically ordered fails the whole operation.
package canonical
