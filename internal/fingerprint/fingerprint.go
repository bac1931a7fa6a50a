package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultHashSize yields a 64-bit hash.
const DefaultHashSize = 8

// Decode decodes raw image bytes in any registered format.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DHash computes a size*size bit difference hash.
//
// The image is converted to grayscale and resampled to (size+1) x size with a
// Lanczos filter. Each row then contributes size bits, one per adjacent pixel
// pair, set when the left pixel is strictly brighter than the right one. Bits
// are emitted row-major, left to right, most significant bit first.
func DHash(img image.Image, size int) (Hash, error) {
	if size < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHashSize, size)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("cannot hash empty image")
	}

	gray := imaging.Grayscale(img)
	thumb := imaging.Resize(gray, size+1, size, imaging.Lanczos)

	h := make(Hash, WordsFor(size))
	pos := size*size - 1
	for y := range size {
		row := thumb.Pix[y*thumb.Stride:]
		for x := range size {
			// Grayscale NRGBA: R == G == B, so the red channel is the luma.
			if row[x*4] > row[(x+1)*4] {
				h.setBit(pos)
			}
			pos--
		}
	}

	return h, nil
}

// HashBytes decodes an image and computes its dhash.
func HashBytes(data []byte, size int) (Hash, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return DHash(img, size)
}
