package crypto

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Std is the default Provider. It delegates to btcd's chainhash package,
// which already implements the Bitcoin-family double-SHA-256 convention
// this engine relies on byte-for-byte.
type Std struct{}

func (Std) DoubleSHA256(b []byte) [32]byte {
	return [32]byte(chainhash.DoubleHashH(b))
}
