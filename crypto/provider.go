// Package crypto provides the narrow hash backend the header codec hashes
// through, following the same polymorphism-over-implementation shape the
// wider protocol's crypto package uses for its (much larger) signature
// surface: a small capability interface, swappable without touching the
// code that consumes it.
package crypto

// Provider is the hash backend used by consensus.Hash. Implementations
// must compute the raw (non-reversed) double-SHA-256 digest of b.
type Provider interface {
	DoubleSHA256(b []byte) [32]byte
}
