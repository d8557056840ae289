package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"

	"rubin.dev/spvchain/consensus"
	"rubin.dev/spvchain/crypto"
	"rubin.dev/spvchain/store"
)

// BulkThreshold is how far ahead of the local tip an announcement has to
// be before the loop switches from the single-header catch-up path to
// whole-epoch bulk chunk verification.
const BulkThreshold = 50

// DefaultAnnouncementQueueSize bounds how many pending announcements the
// loop buffers before it starts dropping them (a peer will simply
// re-announce on its own cadence, so dropping is safe).
const DefaultAnnouncementQueueSize = 64

// Loop is the ingestion state machine: IDLE, waiting on the announcement
// queue; CLASSIFY, deciding DONE/BULK/CATCHUP for whatever just arrived;
// then PERSIST, writing whatever was verified back to the store, and
// finally publishing the new tip to the enclosing network layer. Only
// Run's goroutine ever writes tipHeight/hasTip, so TipHeight can be read
// from any goroutine through the atomics without a lock.
type Loop struct {
	log       *slog.Logger
	store     *store.Store
	ledger    *store.PeerLedger
	provider  crypto.Provider
	requester PeerRequester
	publisher TipPublisher
	metrics   *Metrics

	tipHeight atomic.Uint64
	hasTip    atomic.Bool
	announce  chan Announcement
}

// NewLoop constructs a Loop and seeds its cached tip height from st's
// current on-disk state. publisher may be nil, in which case new tips are
// simply not announced anywhere (useful in tests).
func NewLoop(log *slog.Logger, st *store.Store, ledger *store.PeerLedger, p crypto.Provider, req PeerRequester, publisher TipPublisher, m *Metrics, queueSize int) (*Loop, error) {
	if log == nil {
		log = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = DefaultAnnouncementQueueSize
	}
	l := &Loop{
		log:       log,
		store:     st,
		ledger:    ledger,
		provider:  p,
		requester: req,
		publisher: publisher,
		metrics:   m,
		announce:  make(chan Announcement, queueSize),
	}
	tip, ok, err := st.TipHeight()
	if err != nil {
		return nil, err
	}
	if ok {
		l.tipHeight.Store(tip)
		l.hasTip.Store(true)
		m.setTipHeight(tip)
	}
	return l, nil
}

// TipHeight returns the cached local chain tip, or 0 if the store is
// still empty. Safe for concurrent use. Callers that need to distinguish
// "tip is height 0" from "no headers at all" should use currentTip.
func (l *Loop) TipHeight() uint64 {
	return l.tipHeight.Load()
}

// currentTip returns the cached tip height and whether the store holds
// any headers at all. An empty store has no tip -- the reference
// client's local_height is -1 in that case -- so callers must not treat
// a zero-value height as "caught up to genesis" when ok is false.
func (l *Loop) currentTip() (height uint64, ok bool) {
	return l.tipHeight.Load(), l.hasTip.Load()
}

// Announce enqueues a peer's tip announcement. It returns false (and
// drops the announcement) if the queue is full.
func (l *Loop) Announce(a Announcement) bool {
	select {
	case l.announce <- a:
		return true
	default:
		return false
	}
}

// Run drains the announcement queue until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-l.announce:
			if err := l.processOne(ctx, a); err != nil {
				l.log.Warn("ingest: failed to process announcement",
					"peer", a.PeerID, "announced_height", a.Header.Height, "error", err)
			}
		}
	}
}

func (l *Loop) processOne(ctx context.Context, a Announcement) error {
	if dismiss, err := l.ledger.ShouldDismiss(a.PeerID); err != nil {
		return err
	} else if dismiss {
		return nil
	}

	local, hasLocal := l.currentTip()
	if hasLocal && a.Header.HasHeight && a.Header.Height <= local {
		return nil // DONE: nothing behind (or at) our tip is interesting.
	}

	bulk := false
	if a.Header.HasHeight {
		if hasLocal {
			bulk = a.Header.Height > local+BulkThreshold
		} else {
			// An empty store has no tip (local_height == -1 in the
			// reference client), so the threshold shifts down by one.
			bulk = a.Header.Height > BulkThreshold-1
		}
	}
	if bulk {
		if err := l.bulkSync(ctx, a.PeerID, local, hasLocal, a.Header.Height); err != nil {
			return err
		}
		return l.finishBulkSync(ctx, a)
	}
	return l.catchUp(ctx, a)
}

func (l *Loop) catchUp(ctx context.Context, a Announcement) error {
	chain, err := ResolveChain(ctx, l.requester, l.store, l.provider, a.PeerID, a.Header)
	if err != nil {
		l.strike(a.PeerID)
		return err
	}

	ok, err := consensus.VerifyChain(l.provider, l.store, chain)
	if err != nil {
		return err
	}
	if !ok {
		l.strike(a.PeerID)
		return ingesterr(ERR_CHAIN_INVALID, nil, "peer %s: resolved chain failed verification", a.PeerID)
	}

	for _, h := range chain {
		if err := l.store.WriteHeader(h); err != nil {
			return err
		}
	}
	tip := l.advanceTip()
	l.metrics.observeCatchup(len(chain))
	l.publish(tip, a.PeerID)
	return nil
}

// bulkSync verifies and stores whole retarget epochs from the epoch
// containing the first height past the local tip through epoch
// (announcedHeight+1)/RetargetInterval, which is one past the epoch
// containing announcedHeight when announcedHeight is the last height of
// an epoch. A chunk
// that fails verification is retried exactly once, one epoch earlier,
// before the peer is abandoned for this announcement -- an explicit
// bound on what the reference client leaves as an open-ended retry. It
// does not publish the new tip itself: the state machine always runs a
// catch-up pass after bulk verification (see finishBulkSync), and the
// publish happens once that pass settles.
func (l *Loop) bulkSync(ctx context.Context, peerID string, localHeight uint64, hasLocal bool, announcedHeight uint64) error {
	var nextNeeded uint64
	if hasLocal {
		nextNeeded = localHeight + 1
	}
	minIndex := nextNeeded / consensus.RetargetInterval
	maxIndex := (announcedHeight + 1) / consensus.RetargetInterval

	for index := minIndex; index <= maxIndex; index++ {
		ok, err := VerifyAndStoreChunk(ctx, l.requester, l.store, l.provider, peerID, index)
		if err != nil {
			l.strike(peerID)
			return err
		}
		if ok {
			l.advanceTip()
			l.metrics.observeChunk()
			continue
		}
		if index == minIndex {
			l.strike(peerID)
			return ingesterr(ERR_CHUNK_INVALID, nil, "peer %s: chunk %d invalid, no earlier chunk to retry", peerID, index)
		}

		retryIndex := index - 1
		ok, err = VerifyAndStoreChunk(ctx, l.requester, l.store, l.provider, peerID, retryIndex)
		if err != nil {
			l.strike(peerID)
			return err
		}
		if !ok {
			l.strike(peerID)
			return ingesterr(ERR_CHUNK_INVALID, nil, "peer %s: chunk %d invalid on retry, abandoning", peerID, retryIndex)
		}
		l.advanceTip()
		l.metrics.observeChunk()
	}
	return nil
}

// finishBulkSync runs the state machine's mandatory BULK -> CATCHUP step:
// bulk verification only ever lands on whole epoch boundaries, so the
// partial epoch between the last verified chunk and the announced tip
// (if any) is still resolved and applied headerwise, exactly as if a
// fresh announcement had arrived at the current tip. This is also where
// the bulk path's terminal publish happens, whether or not a further
// catch-up pass was needed.
func (l *Loop) finishBulkSync(ctx context.Context, a Announcement) error {
	tip, hasTip := l.currentTip()
	if hasTip && a.Header.HasHeight && a.Header.Height <= tip {
		l.publish(tip, a.PeerID)
		return nil
	}
	return l.catchUp(ctx, a)
}

// advanceTip refreshes the cached tip from the store after a write and
// returns the new height.
func (l *Loop) advanceTip() uint64 {
	tip, ok, err := l.store.TipHeight()
	if err != nil {
		l.log.Error("ingest: failed to read tip after write", "error", err)
		return l.tipHeight.Load()
	}
	if ok {
		l.tipHeight.Store(tip)
		l.hasTip.Store(true)
		l.metrics.setTipHeight(tip)
	}
	return tip
}

// publish tells the enclosing network layer about a newly-verified tip,
// carrying the peer that supplied it. A nil publisher is a valid no-op.
func (l *Loop) publish(height uint64, peerID string) {
	if l.publisher == nil {
		return
	}
	l.publisher.NewBlockchainHeight(height, peerID)
}

func (l *Loop) strike(peerID string) {
	count, err := l.ledger.Strike(peerID)
	if err != nil {
		l.log.Warn("ingest: failed to record strike", "peer", peerID, "error", err)
		return
	}
	l.log.Info("ingest: recorded strike against peer", "peer", peerID, "strikes", count)
}
