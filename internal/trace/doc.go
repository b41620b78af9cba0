// Package trace defines the execution-trace model: spans with timing,
// status, and typed attributes, forming a forest owned by one Trace.
//
// A Trace is an immutable snapshot produced once per scenario execution.
// Canonicalization and diffing operate on views of it, never on the
// original, so a Trace can be shared freely after construction.
package trace
