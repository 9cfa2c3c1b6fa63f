package core

import (
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "VaultLedger:genesis:v1"

// GenesisHash is the chain hash before the first event.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// ChainHash computes hash[N] = SHA-256(hash[N-1] || sequence || digest),
// with sequence as 8 bytes little-endian.
func ChainHash(prev [32]byte, sequence int64, digest []byte) [32]byte {
	h := sha256.New()
	h.Write(prev[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	h.Write(seqBuf[:])

	h.Write(digest)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// StateHasher tracks the chain tip. Not safe for concurrent use; the service
// serializes calls under its sequence lock.
type StateHasher struct {
	tip [32]byte
}

func NewStateHasher() *StateHasher {
	return &StateHasher{tip: GenesisHash()}
}

// NewStateHasherFrom resumes a chain at a persisted tip.
func NewStateHasherFrom(tip [32]byte) *StateHasher {
	return &StateHasher{tip: tip}
}

// Next links one more event and returns the previous tip and the new hash.
func (h *StateHasher) Next(sequence int64, digest []byte) (prev, hash [32]byte) {
	prev = h.tip
	hash = ChainHash(prev, sequence, digest)
	h.tip = hash
	return prev, hash
}

// Tip returns the current chain tip.
func (h *StateHasher) Tip() [32]byte {
	return h.tip
}
