package random

import (
	"crypto/rand"
	"encoding/binary"
)

// Random supplies the randomness behind room codes, so tests can queue
// deterministic codes
type Random interface {
	// Intn returns a uniform int in [0, n), or 0 when n <= 0
	Intn(n int) int

	// String returns length characters drawn uniformly from alphabet
	String(length int, alphabet string) string
}

// CryptoRandom draws from crypto/rand
type CryptoRandom struct{}

// New creates a CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Intn rejects samples above the largest multiple of n to avoid modulo bias
func (r *CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	bound := uint64(n)
	limit := ^uint64(0) - (^uint64(0) % bound)

	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < limit {
			return int(v % bound)
		}
	}
}

// String builds a code such as a room code from alphabet
func (r *CryptoRandom) String(length int, alphabet string) string {
	if length <= 0 || alphabet == "" {
		return ""
	}
	symbols := []rune(alphabet)
	out := make([]rune, length)
	for i := range out {
		out[i] = symbols[r.Intn(len(symbols))]
	}
	return string(out)
}
