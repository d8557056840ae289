package consensus

import "math/big"

// MaxTargetBits is the compact encoding of the network's maximum (easiest)
// target, used as the genesis/first-epoch floor (spec ยง3, ยง6).
const MaxTargetBits uint32 = 0x1e0ffff0

// maxTarget is derived from MaxTargetBits rather than hardcoded as a hex
// literal, so the two can never drift out of sync.
var maxTarget = mustDecodeBits(MaxTargetBits)

// MaxTarget returns the network's maximum target as a fresh big.Int.
func MaxTarget() *big.Int {
	return new(big.Int).Set(maxTarget)
}

func mustDecodeBits(bits uint32) *big.Int {
	t, err := DecodeBits(bits)
	if err != nil {
		panic(err)
	}
	return t
}

// DecodeBits expands a compact 32-bit difficulty encoding into its 256-bit
// target (spec ยง3).
//
// The `mant < 0x8000 => mant <<= 8` normalization branch does not also
// decrement the exponent, which looks like a bug relative to the
// "standard" compact-bits definition -- but the reference chain was built
// with exactly this arithmetic, so it is preserved bit-exact (spec ยง9
// Open Question).
func DecodeBits(bits uint32) (*big.Int, error) {
	exp := int(bits >> 24)
	mant := bits & 0x00FFFFFF
	if mant < 0x8000 {
		mant <<= 8
	}

	m := new(big.Int).SetUint64(uint64(mant))
	shift := 8 * (exp - 3)
	if shift >= 0 {
		return m.Lsh(m, uint(shift)), nil
	}
	return m.Rsh(m, uint(-shift)), nil
}

// EncodeBits compresses a 256-bit target into its compact 32-bit form,
// following the reference chain's target-to-bits conversion (the inverse
// of DecodeBits, spec ยง3): strip leading zero bytes counting the removed bytes into the
// exponent, take the top three bytes as the mantissa, and renormalize if
// the mantissa's top bit would be mistaken for a sign bit.
func EncodeBits(target *big.Int) (uint32, error) {
	if target == nil || target.Sign() <= 0 {
		return 0, headererr(ERR_MALFORMED_HEADER, "encode bits: target must be positive")
	}

	i := len(target.Bytes())
	shift := 8 * (i - 3)

	var c *big.Int
	if shift >= 0 {
		c = new(big.Int).Rsh(target, uint(shift))
	} else {
		c = new(big.Int).Lsh(target, uint(-shift))
	}

	if c.Cmp(big.NewInt(0x800000)) >= 0 {
		c.Rsh(c, 8)
		i++
	}

	bits := uint32(c.Uint64()) + uint32(i)*0x1000000
	return bits, nil
}
