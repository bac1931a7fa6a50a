package fingerprint

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/bits"
	"math/rand/v2"
	"strings"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"four bits different", 0xF, 0x0, 4},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := HammingDistance(FromUint64(tc.hash1), FromUint64(tc.hash2))
			if result != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d",
					tc.hash1, tc.hash2, result, tc.expected)
			}
		})
	}
}

func TestHammingDistanceMultiWord(t *testing.T) {
	a := Hash{0x1, 0x0}
	b := Hash{0x0, 0xF}
	if got := HammingDistance(a, b); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
	// Unequal widths compare as right-aligned integers.
	if got := HammingDistance(Hash{0x3, 0x1}, Hash{0x1}); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func randomHash(r *rand.Rand, size int) Hash {
	h := make(Hash, WordsFor(size))
	for i := range h {
		h[i] = r.Uint64()
	}
	if excess := len(h)*64 - size*size; excess > 0 {
		h[0] &= (1 << (64 - excess)) - 1
	}
	return h
}

func TestHammingDistanceMetricAxioms(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	for _, size := range []int{2, 5, 8, 11, 16} {
		for range 500 {
			a, b, c := randomHash(r, size), randomHash(r, size), randomHash(r, size)

			if d := HammingDistance(a, a); d != 0 {
				t.Fatalf("size %d: distance(a,a) = %d", size, d)
			}
			ab, ba := HammingDistance(a, b), HammingDistance(b, a)
			if ab != ba {
				t.Fatalf("size %d: asymmetric distance %d vs %d", size, ab, ba)
			}
			if ac, bc := HammingDistance(a, c), HammingDistance(b, c); ac > ab+bc {
				t.Fatalf("size %d: triangle inequality violated: %d > %d + %d", size, ac, ab, bc)
			}
			if ab > size*size {
				t.Fatalf("size %d: distance %d exceeds bit width", size, ab)
			}
		}
	}
}

func TestHexRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		hash Hash
		size int
		hex  string
	}{
		{"zero 64-bit", FromUint64(0), 8, "0000000000000000"},
		{"small value keeps padding", FromUint64(0xab), 8, "00000000000000ab"},
		{"full 64-bit", FromUint64(0xFFFFFFFFFFFFFFFF), 8, "ffffffffffffffff"},
		{"16x16 grid", Hash{0, 0, 0x1, 0x2}, 16, strings.Repeat("0", 47) + "1" + strings.Repeat("0", 15) + "2"},
		{"3x3 grid", Hash{0x1ff}, 3, "1ff"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.hash.Hex(tc.size)
			if got != tc.hex {
				t.Errorf("Hex() = %q; want %q", got, tc.hex)
			}
			parsed, err := ParseHex(got, tc.size)
			if err != nil {
				t.Fatalf("ParseHex(%q) failed: %v", got, err)
			}
			if !parsed.Equal(tc.hash) {
				t.Errorf("ParseHex(%q) = %v; want %v", got, parsed, tc.hash)
			}
		})
	}
}

func TestParseHexRejectsOversizedValues(t *testing.T) {
	if _, err := ParseHex("1ffffffffffffffff", 8); err == nil {
		t.Error("expected error for 65-bit value in 8x8 grid")
	}
	if _, err := ParseHex("3ff", 3); err == nil {
		t.Error("expected error for 10-bit value in 3x3 grid")
	}
	if _, err := ParseHex("zz", 8); err == nil {
		t.Error("expected error for non-hex input")
	}
	if _, err := ParseHex("00ff", 1); !errors.Is(err, ErrInvalidHashSize) {
		t.Errorf("expected ErrInvalidHashSize, got %v", err)
	}
}

func TestDHashInvalidSize(t *testing.T) {
	img := createTestImage(10, 10, color.White)
	for _, size := range []int{-1, 0, 1} {
		if _, err := DHash(img, size); !errors.Is(err, ErrInvalidHashSize) {
			t.Errorf("DHash(size=%d) error = %v; want ErrInvalidHashSize", size, err)
		}
	}
}

func TestDHashBitWidth(t *testing.T) {
	img := createGradientImage(120, 80)
	for _, size := range []int{2, 4, 8, 12, 16} {
		t.Run("", func(t *testing.T) {
			h, err := DHash(img, size)
			if err != nil {
				t.Fatalf("DHash failed: %v", err)
			}
			if len(h) != WordsFor(size) {
				t.Fatalf("expected %d words, got %d", WordsFor(size), len(h))
			}
			significant := (len(h)-1)*64 + bits.Len64(h[0])
			if significant > size*size {
				t.Errorf("hash has %d significant bits, want <= %d", significant, size*size)
			}
		})
	}
}

func TestDHashBitOrder(t *testing.T) {
	// A 9x8 source resamples to itself, so the comparisons are exact.
	img := image.NewGray(image.Rect(0, 0, 9, 8))
	for y := range 8 {
		for x := range 9 {
			img.SetGray(x, y, color.Gray{Y: 100})
		}
	}
	// Row 0 strictly decreasing: every comparison is "left brighter".
	for x := range 9 {
		img.SetGray(x, 0, color.Gray{Y: uint8(200 - x*10)})
	}
	// Last row: only the first pair differs.
	img.SetGray(0, 7, color.Gray{Y: 150})

	h, err := DHash(img, 8)
	if err != nil {
		t.Fatalf("DHash failed: %v", err)
	}
	want := uint64(0xFF00000000000080)
	if h.Uint64() != want {
		t.Errorf("DHash = %016x; want %016x", h.Uint64(), want)
	}
}

func TestDHashConsistency(t *testing.T) {
	data := encodeJPEG(createGradientImage(100, 100))

	first, err := HashBytes(data, 8)
	if err != nil {
		t.Fatalf("first HashBytes failed: %v", err)
	}
	second, err := HashBytes(data, 8)
	if err != nil {
		t.Fatalf("second HashBytes failed: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("hash should be deterministic: %s vs %s", first.Hex(8), second.Hex(8))
	}
}

func TestDHashGradient(t *testing.T) {
	// Brightness decreasing left to right sets every bit.
	img := image.NewGray(image.Rect(0, 0, 180, 80))
	for x := range 180 {
		for y := range 80 {
			img.SetGray(x, y, color.Gray{Y: uint8(255 - x)})
		}
	}
	h, err := DHash(img, 8)
	if err != nil {
		t.Fatalf("DHash failed: %v", err)
	}
	if h.Uint64() != 0xFFFFFFFFFFFFFFFF {
		t.Errorf("expected all bits set, got %016x", h.Uint64())
	}
}

func TestHashBytesInvalidImage(t *testing.T) {
	if _, err := HashBytes([]byte("not an image"), 8); err == nil {
		t.Error("HashBytes should fail for invalid image data")
	}
}

// Helper functions

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			gray := uint8((x*y + x) * 255 / (width*height + width))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}
