package ingest

import (
	"context"

	"rubin.dev/spvchain/consensus"
	"rubin.dev/spvchain/crypto"
	"rubin.dev/spvchain/store"
)

// VerifyAndStoreChunk fetches one retarget epoch's worth of headers from
// a peer, verifies the whole batch against st's anchor before touching
// disk, and only then persists it. It returns (false, nil) for a chunk
// that fails verification -- the caller decides whether that is worth
// retrying -- reserving the error return for requests that could not be
// completed at all.
func VerifyAndStoreChunk(ctx context.Context, req PeerRequester, st *store.Store, p crypto.Provider, peerID string, index uint64) (bool, error) {
	reqCtx, cancel := withRequestTimeout(ctx)
	reply, err := req.RequestChunk(reqCtx, peerID, index)
	cancel()
	if err != nil {
		return false, ingesterr(ERR_REQUEST_TIMEOUT, err, "peer %s: request chunk %d", peerID, index)
	}
	if !reply.Found {
		return false, ingesterr(ERR_CHUNK_INVALID, nil, "peer %s: chunk %d not found", peerID, index)
	}
	if len(reply.Data) == 0 || len(reply.Data)%consensus.HeaderBytes != 0 {
		return false, ingesterr(ERR_CHUNK_INVALID, nil, "peer %s: chunk %d has malformed length %d", peerID, index, len(reply.Data))
	}

	count := len(reply.Data) / consensus.HeaderBytes
	startHeight := index * consensus.RetargetInterval
	headers := make([]consensus.Header, 0, count)
	for i := 0; i < count; i++ {
		raw := reply.Data[i*consensus.HeaderBytes : (i+1)*consensus.HeaderBytes]
		h, err := consensus.Deserialize(raw)
		if err != nil {
			return false, ingesterr(ERR_CHUNK_INVALID, err, "peer %s: chunk %d header %d", peerID, index, i)
		}
		h.Height = startHeight + uint64(i)
		h.HasHeight = true
		headers = append(headers, h)
	}

	ok, err := consensus.VerifyChain(p, st, headers)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := st.WriteChunk(startHeight, reply.Data); err != nil {
		return false, err
	}
	return true, nil
}
