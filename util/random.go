package util

import (
	"math/rand"
)

// RandomUint32 returns a uniformly distributed number in [lo, hi).
func RandomUint32(lo, hi uint32) uint32 {
	if hi <= lo {
		return lo
	}
	return lo + uint32(rand.Int63n(int64(hi-lo)))
}
