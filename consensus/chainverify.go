package consensus

import "rubin.dev/spvchain/crypto"

// VerifyChain implements the Chain Verifier (spec ยง4.6): chain must be
// ordered oldest-first with chain[0].Height-1 already present in store,
// UNLESS chain[0] is the genesis header (height 0), whose expected
// predecessor hash is the all-zero hash rather than a stored header --
// matching the reference client's verify_chunk, which hardcodes
// previous_hash to "0"*64 for index 0 instead of reading an anchor. It
// never mutates store; on any failure it returns (false, nil) rather than
// an error, reserving the error return for operational failures (a missing
// anchor, a hash/codec failure) that are not "this chain is invalid" but
// "verification could not be attempted".
func VerifyChain(p crypto.Provider, store HeaderSource, chain []Header) (bool, error) {
	if len(chain) == 0 {
		return true, nil
	}

	var prevHash string
	firstHeight := chain[0].Height
	if firstHeight == 0 {
		prevHash = ZeroHash
	} else {
		prev, ok, err := store.ReadHeader(firstHeight - 1)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, headererr(ERR_MALFORMED_HEADER, "verify chain: missing anchor at height %d", firstHeight-1)
		}
		prevHash, err = Hash(p, prev)
		if err != nil {
			return false, err
		}
	}

	for _, h := range chain {
		if prevHash != h.PrevBlockHash {
			return false, nil
		}

		bits, target, err := TargetFor(store, EpochOf(h.Height), chain)
		if err != nil {
			return false, err
		}
		if h.Bits != bits {
			return false, nil
		}

		hash, err := Hash(p, h)
		if err != nil {
			return false, err
		}
		numeric, err := Numeric(hash)
		if err != nil {
			return false, err
		}
		if numeric.Cmp(target) >= 0 {
			return false, nil
		}

		prevHash = hash
	}

	return true, nil
}
