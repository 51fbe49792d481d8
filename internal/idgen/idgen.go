// Package idgen centralizes the crypto/rand-backed id and seed minting used
// across the server, following the same entropy source as the teacher's
// GenerateClientSeed for provably-fair seeds.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

// HexSeed returns n random bytes hex-encoded, the same shape as the
// teacher's client-seed generation for its provably-fair game engine.
func HexSeed(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read failing means the OS entropy source is broken;
		// there is no sane fallback, so surface an obviously-wrong value
		// rather than silently degrading to a weaker source.
		return hex.EncodeToString(make([]byte, n))
	}
	return hex.EncodeToString(b)
}

// Index returns a uniformly-distributed index in [0, n) using crypto/rand,
// used for room-code generation where math/rand would be a weaker but
// unnecessary choice given the entropy source is already wired in.
func Index(n int) int {
	if n <= 0 {
		return 0
	}
	max := big.NewInt(int64(n))
	i, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0
	}
	return int(i.Int64())
}
