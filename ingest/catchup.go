package ingest

import (
	"context"

	"rubin.dev/spvchain/consensus"
	"rubin.dev/spvchain/crypto"
)

// ResolveChain implements the catch-up resolver: walk backward from a
// peer's announced tip, one header at a time, until the walk reaches a
// height our store already holds whose hash matches the walked chain's
// linkage. The returned chain covers everything from just past that
// common ancestor up to final, oldest first, ready to be verified and
// persisted.
//
// Walking backward (rather than assuming our tip is the fork point) is
// what lets this resolve short reorgs: if a peer's chain diverged a few
// blocks behind our current tip, the walk keeps going past our tip until
// the two chains agree again.
func ResolveChain(ctx context.Context, req PeerRequester, src consensus.HeaderSource, p crypto.Provider, peerID string, final consensus.Header) ([]consensus.Header, error) {
	if !final.HasHeight {
		return nil, ingesterr(ERR_CHAIN_INVALID, nil, "peer %s: announced header has no height", peerID)
	}

	chain := []consensus.Header{final}
	cur := final

	for cur.Height > 0 {
		local, ok, err := src.ReadHeader(cur.Height - 1)
		if err != nil {
			return nil, err
		}
		if ok {
			localHash, err := consensus.Hash(p, local)
			if err != nil {
				return nil, err
			}
			if localHash == cur.PrevBlockHash {
				return chain, nil
			}
		}

		reqCtx, cancel := withRequestTimeout(ctx)
		reply, err := req.RequestHeader(reqCtx, peerID, cur.Height-1)
		cancel()
		if err != nil {
			return nil, ingesterr(ERR_REQUEST_TIMEOUT, err, "peer %s: request header %d", peerID, cur.Height-1)
		}
		if !reply.Found {
			return nil, ingesterr(ERR_CHAIN_INVALID, nil, "peer %s: no header at height %d", peerID, cur.Height-1)
		}

		h := reply.Header
		h.Height = cur.Height - 1
		h.HasHeight = true
		chain = append([]consensus.Header{h}, chain...)
		cur = h
	}

	return chain, nil
}
