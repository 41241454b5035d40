package decoder

import (
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

// DHash returns the difference hash of img.
func DHash(img image.Image) uint64 {
	small := imaging.Grayscale(imaging.Resize(img, 9, 8, imaging.Lanczos))

	var hash uint64
	for y := 0; y < 8; y++ {
		row := small.Pix[y*small.Stride:]
		for x := 0; x < 8; x++ {
			hash <<= 1
			// grayscale: R == G == B
			if row[x*4] > row[(x+1)*4] {
				hash |= 1
			}
		}
	}
	return hash
}

// Distance returns the Hamming distance between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
