package post

import (
	"image"

	"github.com/disintegration/gift"
)

// Soften applies a Gaussian blur with the given sigma. A non-positive sigma
// returns the input unchanged.
func Soften(img *image.RGBA, sigma float64) *image.RGBA {
	if sigma <= 0 {
		return img
	}
	g := gift.New(gift.GaussianBlur(float32(sigma)))
	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}
