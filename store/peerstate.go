package store

import (
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketPeerStrikes = []byte("peer_strikes")

// DismissThreshold is the number of recorded strikes (failed chunk
// verifications, timeouts, invalid chains) after which a peer is
// dismissed. Strikes are persisted, so the dismissal outlasts a restart
// until Reset clears it.
const DismissThreshold = 2

// PeerLedger persists per-peer strike counts across restarts, backed by
// bbolt the same way the wider protocol's block/UTXO index is -- here
// repurposed for the much smaller bookkeeping task this engine actually
// needs (spec ยง5 "record enough state to decide whether to keep trying a
// peer or move on").
type PeerLedger struct {
	db *bolt.DB
}

// OpenPeerLedger opens (creating if necessary) the bbolt-backed peer
// ledger at path.
func OpenPeerLedger(path string) (*PeerLedger, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, storeerr(ERR_STORE_IO, err, "open peer ledger %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPeerStrikes)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, storeerr(ERR_STORE_IO, err, "create peer strikes bucket")
	}
	return &PeerLedger{db: db}, nil
}

func (l *PeerLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Strike records one failure for peerID and returns its new strike count.
func (l *PeerLedger) Strike(peerID string) (uint32, error) {
	var count uint32
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeerStrikes)
		count = decodeStrikes(b.Get([]byte(peerID))) + 1
		return b.Put([]byte(peerID), encodeStrikes(count))
	})
	if err != nil {
		return 0, storeerr(ERR_STORE_IO, err, "strike peer %s", peerID)
	}
	return count, nil
}

// Score returns a peer's current strike count without modifying it.
func (l *PeerLedger) Score(peerID string) (uint32, error) {
	var count uint32
	err := l.db.View(func(tx *bolt.Tx) error {
		count = decodeStrikes(tx.Bucket(bucketPeerStrikes).Get([]byte(peerID)))
		return nil
	})
	if err != nil {
		return 0, storeerr(ERR_STORE_IO, err, "score peer %s", peerID)
	}
	return count, nil
}

// ShouldDismiss reports whether peerID has accumulated enough persisted
// strikes (DismissThreshold or more) to be dropped.
func (l *PeerLedger) ShouldDismiss(peerID string) (bool, error) {
	score, err := l.Score(peerID)
	if err != nil {
		return false, err
	}
	return score >= DismissThreshold, nil
}

// Reset clears peerID's strike count, e.g. after it has been reconnected
// following a ban interval.
func (l *PeerLedger) Reset(peerID string) error {
	if err := l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeerStrikes).Delete([]byte(peerID))
	}); err != nil {
		return storeerr(ERR_STORE_IO, err, "reset peer %s", peerID)
	}
	return nil
}

func encodeStrikes(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func decodeStrikes(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
