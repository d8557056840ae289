package ingest

import (
	"context"
	"sync"

	"rubin.dev/spvchain/consensus"
)

type fakeProvider struct{}

func (fakeProvider) DoubleSHA256(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}

func genesisHeader() consensus.Header {
	return consensus.Header{
		Version:       1,
		PrevBlockHash: consensus.ZeroHash,
		MerkleRoot:    consensus.ZeroHash,
		Timestamp:     1000,
		Bits:          consensus.MaxTargetBits,
		Height:        0,
		HasHeight:     true,
	}
}

// nextHeader builds the header that correctly extends prev.
func nextHeader(prev consensus.Header, nonce uint32) consensus.Header {
	prevHash, _ := consensus.Hash(fakeProvider{}, prev)
	return consensus.Header{
		Version:       1,
		PrevBlockHash: prevHash,
		MerkleRoot:    consensus.ZeroHash,
		Timestamp:     prev.Timestamp + 600,
		Bits:          consensus.MaxTargetBits,
		Nonce:         nonce,
		Height:        prev.Height + 1,
		HasHeight:     true,
	}
}

// buildChain returns n headers extending genesis, heights 1..n.
func buildChain(genesis consensus.Header, n int) []consensus.Header {
	out := make([]consensus.Header, 0, n)
	prev := genesis
	for i := 0; i < n; i++ {
		h := nextHeader(prev, uint32(i))
		out = append(out, h)
		prev = h
	}
	return out
}

// fakePublisher records every tip publish the loop makes, for assertions
// on the terminal "announce to the enclosing network layer" step.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishEvent
}

type publishEvent struct {
	Height uint64
	PeerID string
}

func (f *fakePublisher) NewBlockchainHeight(height uint64, peerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishEvent{Height: height, PeerID: peerID})
}

func (f *fakePublisher) last() (publishEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return publishEvent{}, false
	}
	return f.events[len(f.events)-1], true
}

// fakeRequester serves headers and chunks out of an in-memory chain,
// keyed by height. It never errors and never returns "not found" unless
// the height is past the end of chain.
type fakeRequester struct {
	mu    sync.Mutex
	chain []consensus.Header // index i holds the header at height i
}

func newFakeRequester(chain []consensus.Header) *fakeRequester {
	return &fakeRequester{chain: chain}
}

func (f *fakeRequester) RequestHeader(ctx context.Context, peerID string, height uint64) (HeaderReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if height >= uint64(len(f.chain)) {
		return HeaderReply{}, nil
	}
	return HeaderReply{Header: f.chain[height], Found: true}, nil
}

func (f *fakeRequester) RequestChunk(ctx context.Context, peerID string, index uint64) (ChunkReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := index * consensus.RetargetInterval
	end := start + consensus.RetargetInterval
	if start >= uint64(len(f.chain)) {
		return ChunkReply{}, nil
	}
	if end > uint64(len(f.chain)) {
		end = uint64(len(f.chain))
	}
	var data []byte
	for _, h := range f.chain[start:end] {
		raw, err := consensus.Serialize(h)
		if err != nil {
			return ChunkReply{}, err
		}
		data = append(data, raw...)
	}
	return ChunkReply{Data: data, Found: true}, nil
}
