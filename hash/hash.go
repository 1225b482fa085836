// Package hash derives stable fingerprints for job records.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"slices"
)

// separator keeps ("ab", "c") and ("a", "bc") apart.
var separator = []byte{0}

type Hash struct {
	hash hash.Hash
}

func NewHash(hash hash.Hash) *Hash {
	return &Hash{
		hash: hash,
	}
}

func (h *Hash) Key() string {
	return hex.EncodeToString(h.hash.Sum(nil))
}

// WriteStrings feeds every part followed by a separator.
func (h *Hash) WriteStrings(parts ...string) {
	for _, part := range parts {
		// hash.Hash writes never fail
		_, _ = h.hash.Write([]byte(part))
		_, _ = h.hash.Write(separator)
	}
}

// Fingerprint is the sha256 of jobType, scope and args. Arguments are hashed
// in key order so map iteration order never changes the result.
func Fingerprint(jobType, scope string, args map[string]string) string {
	h := NewHash(sha256.New())
	h.WriteStrings(jobType, scope)

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		h.WriteStrings(k, args[k])
	}

	return h.Key()
}
