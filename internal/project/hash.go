package project

import (
	"crypto/sha256"
)

// Digest is a 256-bit content hash, compatible with source.File.Hash.
type Digest [32]byte

// Combine hashes content followed by every dep, in the given order.
func Combine(content Digest, deps ...Digest) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	for _, d := range deps {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// DigestString hashes s.
func DigestString(s string) Digest {
	return sha256.Sum256([]byte(s))
}
