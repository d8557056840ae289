package consensus

import "math/big"

// RetargetInterval is the number of blocks in one difficulty epoch.
const RetargetInterval = 2016

// TargetTimespanSeconds is RubyCoin's retarget window: 3.5 days, in place
// of Bitcoin's 14-day span (spec ยง4.2, ยง6).
const TargetTimespanSeconds = 84 * 3600

// HeaderSource resolves a header by height from whatever has persisted it.
// store.Store satisfies this interface; it is declared here, on the
// consumer side, so consensus never imports the store package (spec ยง2
// dependency order: Codec <- Store <- {Retarget, ...}).
type HeaderSource interface {
	ReadHeader(height uint64) (Header, bool, error)
}

// EpochOf returns the retarget epoch a height belongs to.
func EpochOf(height uint64) uint64 {
	return height / RetargetInterval
}

// TargetFor computes the expected (bits, target) pair for a retarget epoch
// (spec ยง4.2). inFlight is searched for the epoch's last header when it has
// not yet been persisted -- e.g. while verifying a catch-up chain that is
// still being applied and crosses an epoch boundary. The epoch's first
// header is only read from store.
//
// The window deliberately uses the ENTIRE PREVIOUS epoch
// (first_of_prev_epoch, last_of_prev_epoch), not Bitcoin's
// (first_of_current_epoch, last_of_previous_epoch). This asymmetry is a
// RubyCoin-specific property of the reference chain and must not be
// "corrected" to match upstream Bitcoin (spec ยง4.2 note, ยง9).
func TargetFor(store HeaderSource, epochIndex uint64, inFlight []Header) (bits uint32, target *big.Int, err error) {
	if epochIndex == 0 {
		return MaxTargetBits, MaxTarget(), nil
	}

	var firstHeight uint64
	if epochIndex == 1 {
		firstHeight = 0
	} else {
		firstHeight = (epochIndex-1)*RetargetInterval - 1
	}
	lastHeight := epochIndex*RetargetInterval - 1

	first, ok, err := store.ReadHeader(firstHeight)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, headererr(ERR_MALFORMED_HEADER, "retarget: missing header at height %d", firstHeight)
	}

	last, ok, err := store.ReadHeader(lastHeight)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		for _, h := range inFlight {
			if h.HasHeight && h.Height == lastHeight {
				last, ok = h, true
				break
			}
		}
	}
	if !ok {
		return 0, nil, headererr(ERR_MALFORMED_HEADER, "retarget: missing header at height %d", lastHeight)
	}

	actual := int64(last.Timestamp) - int64(first.Timestamp)
	const quarter = TargetTimespanSeconds / 4
	const quadruple = TargetTimespanSeconds * 4
	if actual < quarter {
		actual = quarter
	}
	if actual > quadruple {
		actual = quadruple
	}

	targetPrev, err := DecodeBits(last.Bits)
	if err != nil {
		return 0, nil, err
	}

	// newTarget = min(max_target, target_prev * actual / target_span); the
	// intermediate product can exceed 256 bits, hence the wide (big.Int)
	// arithmetic (spec ยง9 "256-bit arithmetic").
	newTarget := new(big.Int).Mul(targetPrev, big.NewInt(actual))
	newTarget.Div(newTarget, big.NewInt(TargetTimespanSeconds))
	if newTarget.Cmp(maxTarget) > 0 {
		newTarget = MaxTarget()
	}

	newBits, err := EncodeBits(newTarget)
	if err != nil {
		return 0, nil, err
	}
	return newBits, newTarget, nil
}
