package store

import (
	"os"
	"sync"

	"rubin.dev/spvchain/consensus"
)

// Store is the append-only flat-file header store: file size alone
// determines the chain tip, exactly as the reference client's headers
// file works. Height h's header lives at byte offset h*HeaderBytes; there
// is no separate index or manifest.
type Store struct {
	mu   sync.RWMutex
	path string
	f    *os.File
}

// Open opens (creating if necessary) the flat header file at path. It does
// not attempt to bootstrap a snapshot; callers that want the HTTP
// fallback should use OpenOrBootstrap instead.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, storeerr(ERR_STORE_IO, err, "open %s", path)
	}
	return &Store{path: path, f: f}, nil
}

func (s *Store) Close() error {
	if s == nil || s.f == nil {
		return nil
	}
	return s.f.Close()
}

func (s *Store) Path() string { return s.path }

// TipHeight returns the height of the last persisted header, and false if
// the store is empty (no genesis header yet).
func (s *Store) TipHeight() (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tipHeightLocked()
}

func (s *Store) tipHeightLocked() (uint64, bool, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, false, storeerr(ERR_STORE_IO, err, "stat %s", s.path)
	}
	size := info.Size()
	if size < consensus.HeaderBytes {
		return 0, false, nil
	}
	if size%consensus.HeaderBytes != 0 {
		return 0, false, storeerr(ERR_CORRUPT_STORE, nil, "%s: size %d is not a multiple of %d", s.path, size, consensus.HeaderBytes)
	}
	return uint64(size/consensus.HeaderBytes) - 1, true, nil
}

// Read returns the header at the given height, reading and decoding its
// 80-byte record. Height is filled in on the returned header.
func (s *Store) Read(height uint64) (consensus.Header, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tip, ok, err := s.tipHeightLocked()
	if err != nil {
		return consensus.Header{}, false, err
	}
	if !ok || height > tip {
		return consensus.Header{}, false, nil
	}

	buf := make([]byte, consensus.HeaderBytes)
	if _, err := s.f.ReadAt(buf, int64(height)*consensus.HeaderBytes); err != nil {
		return consensus.Header{}, false, storeerr(ERR_STORE_IO, err, "read header %d", height)
	}
	h, err := consensus.Deserialize(buf)
	if err != nil {
		return consensus.Header{}, false, err
	}
	h.Height = height
	h.HasHeight = true
	return h, true, nil
}

// ReadHeader satisfies consensus.HeaderSource.
func (s *Store) ReadHeader(height uint64) (consensus.Header, bool, error) {
	return s.Read(height)
}

// WriteHeader writes a single header at its height, truncating away
// anything previously stored beyond it. This mirrors the reference
// client's save_header, which both appends the new tip and discards any
// stale data a reorg left behind past the new height.
func (s *Store) WriteHeader(h consensus.Header) error {
	raw, err := consensus.Serialize(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtLocked(h.Height, raw)
}

// WriteChunk writes a full batch of headers (normally one 2016-header
// epoch) starting at startHeight, truncating anything beyond. data must be
// a concatenation of 80-byte records.
func (s *Store) WriteChunk(startHeight uint64, data []byte) error {
	if len(data)%consensus.HeaderBytes != 0 {
		return storeerr(ERR_STORE_IO, nil, "write chunk: %d bytes is not a multiple of %d", len(data), consensus.HeaderBytes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtLocked(startHeight, data)
}

func (s *Store) writeAtLocked(startHeight uint64, data []byte) error {
	offset := int64(startHeight) * consensus.HeaderBytes
	if _, err := s.f.WriteAt(data, offset); err != nil {
		return storeerr(ERR_STORE_IO, err, "write at height %d", startHeight)
	}
	if err := s.f.Truncate(offset + int64(len(data))); err != nil {
		return storeerr(ERR_STORE_IO, err, "truncate after height %d", startHeight)
	}
	return s.f.Sync()
}
