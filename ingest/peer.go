package ingest

import (
	"context"

	"rubin.dev/spvchain/consensus"
)

// Announcement is a peer telling us about a new chain tip. Height is
// always known for an announcement (unlike consensus.Header's general
// HasHeight flag), since the wire-level "tip" message always carries it.
type Announcement struct {
	PeerID string
	Header consensus.Header
}

// HeaderReply answers a single-height header request.
type HeaderReply struct {
	Header consensus.Header
	Found  bool
}

// ChunkReply answers a request for one retarget epoch's worth of headers,
// Data being the raw concatenation of 80-byte records in height order.
type ChunkReply struct {
	Data  []byte
	Found bool
}

// PeerRequester is the narrow capability ingest needs from the peer pool:
// synchronous request/response for a single header or a whole epoch. It
// is declared on the consumer side (ingest), not by whatever package owns
// peer connections, so ingest never depends on transport details -- the
// same capability-interface shape the wider protocol's PeerHandler uses
// for its connection lifecycle.
type PeerRequester interface {
	RequestHeader(ctx context.Context, peerID string, height uint64) (HeaderReply, error)
	RequestChunk(ctx context.Context, peerID string, index uint64) (ChunkReply, error)
}

// TipPublisher is the capability ingest needs to tell the enclosing
// network layer about a new locally-verified tip, carrying the peer that
// supplied it (the reference client's self.network.new_blockchain_height).
// Declared consumer-side for the same reason PeerRequester is: the loop
// should not need to know who or what is listening.
type TipPublisher interface {
	NewBlockchainHeight(height uint64, peerID string)
}
