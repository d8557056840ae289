package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rubin.dev/spvchain/consensus"
	"rubin.dev/spvchain/store"
)

func openTestLedger(t *testing.T) *store.PeerLedger {
	t.Helper()
	l, err := store.OpenPeerLedger(filepath.Join(t.TempDir(), "peers.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func newTestLoop(t *testing.T, full []consensus.Header) (*Loop, *fakeRequester) {
	t.Helper()
	l, req, _ := newTestLoopWithPublisher(t, full, true)
	return l, req
}

// newTestLoopWithPublisher builds a Loop backed by a fresh store, optionally
// pre-seeded with full[0] (the genesis header), and wired to a
// fakePublisher so tests can assert on the terminal publish step.
func newTestLoopWithPublisher(t *testing.T, full []consensus.Header, seedGenesis bool) (*Loop, *fakeRequester, *fakePublisher) {
	t.Helper()
	st := openTestStore(t)
	if seedGenesis {
		if err := st.WriteHeader(full[0]); err != nil {
			t.Fatalf("seed genesis: %v", err)
		}
	}
	ledger := openTestLedger(t)
	req := newFakeRequester(full)
	pub := &fakePublisher{}
	l, err := NewLoop(nil, st, ledger, fakeProvider{}, req, pub, nil, 0)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return l, req, pub
}

func TestLoopCatchUpAppliesAnnouncement(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, 5)
	full := append([]consensus.Header{genesis}, rest...)

	l, _ := newTestLoop(t, full)
	ann := Announcement{PeerID: "peer-a", Header: full[len(full)-1]}
	if err := l.processOne(context.Background(), ann); err != nil {
		t.Fatalf("processOne: %v", err)
	}
	if tip := l.TipHeight(); tip != 5 {
		t.Fatalf("tip = %d, want 5", tip)
	}
}

func TestLoopIgnoresAnnouncementBehindTip(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, 5)
	full := append([]consensus.Header{genesis}, rest...)

	l, _ := newTestLoop(t, full)
	// Advance local tip to height 5 first.
	if err := l.processOne(context.Background(), Announcement{PeerID: "peer-a", Header: full[5]}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if tip := l.TipHeight(); tip != 5 {
		t.Fatalf("tip = %d, want 5", tip)
	}

	// An announcement at or behind our tip should be a no-op.
	if err := l.processOne(context.Background(), Announcement{PeerID: "peer-b", Header: full[3]}); err != nil {
		t.Fatalf("processOne: %v", err)
	}
	if tip := l.TipHeight(); tip != 5 {
		t.Fatalf("tip changed on stale announcement: %d", tip)
	}
}

func TestLoopBulkSyncsWhenFarAhead(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, BulkThreshold+10)
	full := append([]consensus.Header{genesis}, rest...)

	l, _ := newTestLoop(t, full)
	ann := Announcement{PeerID: "peer-a", Header: full[len(full)-1]}
	if err := l.processOne(context.Background(), ann); err != nil {
		t.Fatalf("processOne: %v", err)
	}
	if tip := l.TipHeight(); tip != uint64(len(full)-1) {
		t.Fatalf("tip = %d, want %d", tip, len(full)-1)
	}
}

func TestLoopSkipsDismissedPeer(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, 3)
	full := append([]consensus.Header{genesis}, rest...)

	l, _ := newTestLoop(t, full)
	for i := 0; i < store.DismissThreshold; i++ {
		if _, err := l.ledger.Strike("peer-a"); err != nil {
			t.Fatalf("strike: %v", err)
		}
	}

	ann := Announcement{PeerID: "peer-a", Header: full[len(full)-1]}
	if err := l.processOne(context.Background(), ann); err != nil {
		t.Fatalf("processOne should skip dismissed peer silently, got %v", err)
	}
	if tip := l.TipHeight(); tip != 0 {
		t.Fatalf("tip = %d, want 0 (dismissed peer's announcement must be ignored)", tip)
	}
}

func TestLoopStrikesPeerOnInvalidChain(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, 3)
	full := append([]consensus.Header{genesis}, rest...)
	full[2].PrevBlockHash = consensus.ZeroHash // break linkage

	l, _ := newTestLoop(t, full)
	ann := Announcement{PeerID: "peer-a", Header: full[len(full)-1]}
	if err := l.processOne(context.Background(), ann); err == nil {
		t.Fatalf("expected error for invalid chain")
	}

	score, err := l.ledger.Score("peer-a")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score == 0 {
		t.Fatalf("expected peer to be struck for an invalid chain")
	}
}

func TestLoopRunProcessesQueuedAnnouncements(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, 3)
	full := append([]consensus.Header{genesis}, rest...)

	l, _ := newTestLoop(t, full)
	if !l.Announce(Announcement{PeerID: "peer-a", Header: full[len(full)-1]}) {
		t.Fatalf("announce was dropped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = l.Run(ctx)

	if tip := l.TipHeight(); tip != 3 {
		t.Fatalf("tip = %d, want 3", tip)
	}
}

func TestLoopAcceptsGenesisAnnouncementIntoEmptyStore(t *testing.T) {
	genesis := genesisHeader()
	full := []consensus.Header{genesis}

	l, _, pub := newTestLoopWithPublisher(t, full, false /* seedGenesis */)

	local, hasLocal := l.currentTip()
	if hasLocal {
		t.Fatalf("fresh store should report no tip, got height=%d", local)
	}

	ann := Announcement{PeerID: "peer-a", Header: genesis}
	if err := l.processOne(context.Background(), ann); err != nil {
		t.Fatalf("processOne: %v", err)
	}

	tip, hasTip := l.currentTip()
	if !hasTip || tip != 0 {
		t.Fatalf("expected tip=0 after accepting genesis, got tip=%d hasTip=%v", tip, hasTip)
	}
	ev, ok := pub.last()
	if !ok {
		t.Fatalf("expected a publish for the accepted genesis header")
	}
	if ev.Height != 0 || ev.PeerID != "peer-a" {
		t.Fatalf("unexpected publish event %+v", ev)
	}
}

func TestLoopPublishesNewTipAfterCatchUp(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, 5)
	full := append([]consensus.Header{genesis}, rest...)

	l, _, pub := newTestLoopWithPublisher(t, full, true)
	ann := Announcement{PeerID: "peer-a", Header: full[len(full)-1]}
	if err := l.processOne(context.Background(), ann); err != nil {
		t.Fatalf("processOne: %v", err)
	}

	ev, ok := pub.last()
	if !ok {
		t.Fatalf("expected a publish after a successful catch-up")
	}
	if ev.Height != 5 || ev.PeerID != "peer-a" {
		t.Fatalf("unexpected publish event %+v", ev)
	}
}

func TestLoopPublishesNewTipAfterBulkSync(t *testing.T) {
	genesis := genesisHeader()
	rest := buildChain(genesis, BulkThreshold+10)
	full := append([]consensus.Header{genesis}, rest...)

	l, _, pub := newTestLoopWithPublisher(t, full, true)
	ann := Announcement{PeerID: "peer-a", Header: full[len(full)-1]}
	if err := l.processOne(context.Background(), ann); err != nil {
		t.Fatalf("processOne: %v", err)
	}

	ev, ok := pub.last()
	if !ok {
		t.Fatalf("expected a publish after a successful bulk sync")
	}
	if ev.Height != uint64(len(full)-1) || ev.PeerID != "peer-a" {
		t.Fatalf("unexpected publish event %+v", ev)
	}
}
