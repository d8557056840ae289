package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"rubin.dev/spvchain/consensus"
	"rubin.dev/spvchain/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "headers"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolveChainWalksBackToLocalTip(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, 5)
	full := append([]consensus.Header{genesis}, rest...)

	st := openTestStore(t)
	if err := st.WriteHeader(genesis); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	req := newFakeRequester(full)
	chain, err := ResolveChain(context.Background(), req, st, fakeProvider{}, "peer-a", full[len(full)-1])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(chain) != 5 {
		t.Fatalf("resolved chain length = %d, want 5", len(chain))
	}
	for i, h := range chain {
		if h.Height != uint64(i+1) {
			t.Fatalf("chain[%d].Height = %d, want %d", i, h.Height, i+1)
		}
	}
}

func TestResolveChainStopsAtExistingAgreement(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, 5)
	full := append([]consensus.Header{genesis}, rest...)

	st := openTestStore(t)
	// Seed the store up through height 3 so the walk should stop there.
	for _, h := range full[:4] {
		if err := st.WriteHeader(h); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	req := newFakeRequester(full)
	chain, err := ResolveChain(context.Background(), req, st, fakeProvider{}, "peer-a", full[len(full)-1])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("resolved chain length = %d, want 2 (heights 4,5)", len(chain))
	}
	if chain[0].Height != 4 || chain[1].Height != 5 {
		t.Fatalf("unexpected chain heights: %+v", chain)
	}
}

func TestResolveChainRejectsHeaderWithoutHeight(t *testing.T) {
	st := openTestStore(t)
	req := newFakeRequester(nil)
	h := genesisHeader()
	h.HasHeight = false
	if _, err := ResolveChain(context.Background(), req, st, fakeProvider{}, "peer-a", h); err == nil {
		t.Fatalf("expected error for header without height")
	}
}
