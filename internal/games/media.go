package games

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// Downscale shrinks an encoded photo so its longest side is at most maxDim
// and re-encodes it as JPEG. Images already small enough, undecodable data
// and maxDim == 0 return data unchanged.
func Downscale(data []byte, maxDim uint) ([]byte, bool) {
	if maxDim == 0 || len(data) == 0 {
		return data, false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, false
	}
	b := img.Bounds()
	if uint(b.Dx()) <= maxDim && uint(b.Dy()) <= maxDim {
		return data, false
	}

	thumb := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return data, false
	}
	return buf.Bytes(), true
}
