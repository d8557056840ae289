package consensus

import (
	"encoding/hex"
	"math/big"

	"rubin.dev/spvchain/crypto"
)

// Hash computes a header's display hash: reverse_bytes(double_sha256(serialize(h)))
// hex-encoded lowercase (spec ยง3, ยง4.1). This is the canonical representation
// used everywhere a hash is compared, stored, or logged.
func Hash(p crypto.Provider, h Header) (string, error) {
	raw, err := Serialize(h)
	if err != nil {
		return "", err
	}
	digest := p.DoubleSHA256(raw)
	return hex.EncodeToString(reverseBytes(digest[:])), nil
}

// Numeric parses a display hash (64 lowercase hex digits) as the 256-bit
// unsigned integer used for proof-of-work comparisons. Because the display
// hash is already byte-reversed relative to the raw double-SHA-256 digest,
// a plain big-endian parse of its hex form gives the little-endian
// interpretation of the raw digest the spec calls for.
func Numeric(displayHash string) (*big.Int, error) {
	b, err := hex.DecodeString(displayHash)
	if err != nil {
		return nil, headererr(ERR_MALFORMED_HEADER, "numeric: %v", err)
	}
	if len(b) != 32 {
		return nil, headererr(ERR_MALFORMED_HEADER, "numeric: want 32 bytes, got %d", len(b))
	}
	return new(big.Int).SetBytes(b), nil
}
