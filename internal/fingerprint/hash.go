package fingerprint

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidHashSize is returned when the hash grid size is below 2.
var ErrInvalidHashSize = errors.New("hash size must be >= 2")

// Algo identifies the fingerprint algorithm stored alongside cached hashes.
const Algo = "dhash"

// Hash is a fixed-width fingerprint of size*size bits. Words are big-endian:
// Hash[0] holds the most significant bits of the integer value.
type Hash []uint64

// WordsFor returns the number of 64-bit words needed for a grid of the given size.
func WordsFor(size int) int {
	return (size*size + 63) / 64
}

// FromUint64 builds a single-word hash, the common case for an 8x8 grid.
func FromUint64(v uint64) Hash {
	return Hash{v}
}

// Uint64 returns the low 64 bits of the hash.
func (h Hash) Uint64() uint64 {
	if len(h) == 0 {
		return 0
	}
	return h[len(h)-1]
}

// setBit sets the bit at position pos counted from the least significant end.
func (h Hash) setBit(pos int) {
	h[len(h)-1-pos/64] |= 1 << (pos % 64)
}

// Equal reports whether two hashes hold the same value.
func (h Hash) Equal(other Hash) bool {
	return slices.Equal(h, other)
}

// HammingDistance counts the differing bits between two hashes. Hashes of
// unequal width are compared as right-aligned integers.
func HammingDistance(a, b Hash) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	offset := len(a) - len(b)
	distance := 0
	for i, w := range a {
		if i < offset {
			distance += bits.OnesCount64(w)
			continue
		}
		distance += bits.OnesCount64(w ^ b[i-offset])
	}
	return distance
}

// Hex renders the hash as lowercase hex, zero padded to size*size/4 nibbles.
func (h Hash) Hex(size int) string {
	var sb strings.Builder
	for i, w := range h {
		if i == 0 {
			sb.WriteString(strconv.FormatUint(w, 16))
			continue
		}
		fmt.Fprintf(&sb, "%016x", w)
	}
	s := strings.TrimLeft(sb.String(), "0")
	width := size * size / 4
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	if s == "" {
		s = "0"
	}
	return s
}

// ParseHex decodes a hex fingerprint for a grid of the given size. Values
// wider than size*size bits are rejected.
func ParseHex(s string, size int) (Hash, error) {
	if size < 2 {
		return nil, ErrInvalidHashSize
	}
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return nil, errors.New("empty hash")
	}

	h := make(Hash, WordsFor(size))
	idx := len(h) - 1
	for end := len(s); end > 0; end -= 16 {
		start := max(0, end-16)
		w, err := strconv.ParseUint(s[start:end], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid hash %q: %w", s, err)
		}
		if w == 0 {
			idx--
			continue
		}
		if idx < 0 {
			return nil, fmt.Errorf("hash %q exceeds %d bits", s, size*size)
		}
		h[idx] = w
		idx--
	}

	if excess := len(h)*64 - size*size; excess > 0 && h[0]>>(64-excess) != 0 {
		return nil, fmt.Errorf("hash %q exceeds %d bits", s, size*size)
	}
	return h, nil
}
