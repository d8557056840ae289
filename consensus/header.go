package consensus

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// HeaderBytes is the exact on-wire and on-disk size of a serialized header.
const HeaderBytes = 80

// ZeroHash is the all-zero display hash used as the synthetic predecessor
// of the genesis header.
var ZeroHash = strings.Repeat("0", 64)

// Header is the canonical 80-byte block-header record plus the
// block_height carried alongside it in memory. Height is never part of
// Serialize's output; it is supplied by the peer that delivered the header
// or inferred from the header's position in the store.
//
// PrevBlockHash and MerkleRoot are kept in display order (the same
// byte-reversed, lowercase-hex convention Hash returns), matching what
// peers deliver for individual-header requests; Serialize/Deserialize
// handle the wire-order reversal at the codec boundary.
type Header struct {
	Version       uint32
	PrevBlockHash string
	MerkleRoot    string
	Timestamp     uint32
	Bits          uint32
	Nonce         uint32

	Height    uint64
	HasHeight bool
}

// Serialize packs h into its canonical 80-byte wire/disk form.
func Serialize(h Header) ([]byte, error) {
	prev, err := decodeDisplayHash(h.PrevBlockHash)
	if err != nil {
		return nil, headererr(ERR_MALFORMED_HEADER, "prev_block_hash: %v", err)
	}
	merkle, err := decodeDisplayHash(h.MerkleRoot)
	if err != nil {
		return nil, headererr(ERR_MALFORMED_HEADER, "merkle_root: %v", err)
	}

	out := make([]byte, HeaderBytes)
	binary.LittleEndian.PutUint32(out[0:4], h.Version)
	copy(out[4:36], reverseBytes(prev))
	copy(out[36:68], reverseBytes(merkle))
	binary.LittleEndian.PutUint32(out[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(out[72:76], h.Bits)
	binary.LittleEndian.PutUint32(out[76:80], h.Nonce)
	return out, nil
}

// Deserialize is the inverse of Serialize. The returned Header's Height is
// left unset (HasHeight == false); callers fill it in from context.
func Deserialize(b []byte) (Header, error) {
	if len(b) != HeaderBytes {
		return Header{}, headererr(ERR_MALFORMED_HEADER, "want %d bytes, got %d", HeaderBytes, len(b))
	}
	var h Header
	h.Version = binary.LittleEndian.Uint32(b[0:4])
	h.PrevBlockHash = hex.EncodeToString(reverseBytes(b[4:36]))
	h.MerkleRoot = hex.EncodeToString(reverseBytes(b[36:68]))
	h.Timestamp = binary.LittleEndian.Uint32(b[68:72])
	h.Bits = binary.LittleEndian.Uint32(b[72:76])
	h.Nonce = binary.LittleEndian.Uint32(b[76:80])
	return h, nil
}

func decodeDisplayHash(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, headererr(ERR_MALFORMED_HEADER, "want 32 bytes, got %d", len(b))
	}
	return b, nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
