// Package cas implements content-addressable storage for attachment bytes.
// Content is keyed by its SHA-256 digest, which makes writes idempotent and
// gives deduplication for free: identical bytes always land on the same key.
package cas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store is the content-addressable byte store. Remove is called only by the
// retention sweep, after confirming no metadata row references the hash.
type Store interface {
	// Put stores data under its digest and returns the digest. Storing
	// bytes that are already present is a no-op.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the bytes for the given digest, or ErrorNotFound.
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Remove(ctx context.Context, hash string) error
	// Keys lists every stored digest; used by the orphan sweep.
	Keys(ctx context.Context) ([]string, error)
}

// HashBytes returns the hex-encoded SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
