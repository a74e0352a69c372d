// Package shuffle derives reproducible queue orders from string seeds.
package shuffle

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// Shuffle returns a permutation of items keyed only by seed. The input
// slice is left untouched.
func Shuffle[T any](items []T, seed string) []T {
	out := append([]T(nil), items...)
	next := newSource(HashSeed(seed))
	for i := len(out) - 1; i > 0; i-- {
		j := int(next() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// HashSeed folds a seed into a non-negative 32-bit value using a 31x
// rolling hash over its UTF-16 code units.
func HashSeed(seed string) uint32 {
	var h int32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = (h << 5) - h + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return uint32(abs)
}

// newSource is a mulberry32 generator yielding floats in [0,1).
func newSource(state uint32) func() float64 {
	return func() float64 {
		state += 0x6D2B79F5
		t := state
		t = (t ^ t>>15) * (t | 1)
		t ^= t + (t^t>>7)*(t|61)
		return float64(t^t>>14) / 4294967296
	}
}

// NewSeed builds a fresh auction seed for the given instant.
func NewSeed(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("auction-%d-%s", now.UnixMilli(), suffix)
}

// ReshuffleSeed derives a reproducible seed for reshuffling from base.
func ReshuffleSeed(base string, now time.Time) string {
	return fmt.Sprintf("%s-reshuffle-%d", base, now.UnixMilli())
}
