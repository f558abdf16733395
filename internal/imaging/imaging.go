// Package imaging provides the pixel-level primitives shared by the capture
// cache and the detection strategies: perceptual frame hashing, region
// cropping, and color matching.
package imaging

import (
	"image"
	"image/color"
	"math/bits"

	"golang.org/x/image/draw"
)

const hashSide = 8 // mean hash over an 8x8 downscale

// MeanHash computes a 64-bit perceptual hash of img: the image is downscaled
// to 8x8 grayscale and each bit records whether the cell is brighter than the
// mean. Visually similar frames produce hashes with small Hamming distance.
func MeanHash(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, hashSide, hashSide))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sum int
	for _, p := range small.Pix {
		sum += int(p)
	}
	mean := uint8(sum / (hashSide * hashSide))

	var hash uint64
	for i, p := range small.Pix {
		if p > mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

// Similarity returns the fraction of agreeing bits between two mean hashes,
// in [0,1]. Identical frames score 1.0.
func Similarity(a, b uint64) float64 {
	return 1.0 - float64(bits.OnesCount64(a^b))/64.0
}

// Region is a rectangle expressed as fractions of the frame, so strategy
// regions survive different table sizes.
type Region struct {
	X, Y, W, H float64
}

// Crop extracts the region from img as a new RGBA image. Out-of-range
// fractions are clamped to the frame.
func Crop(img image.Image, r Region) *image.RGBA {
	b := img.Bounds()
	x0 := b.Min.X + int(r.X*float64(b.Dx()))
	y0 := b.Min.Y + int(r.Y*float64(b.Dy()))
	x1 := x0 + int(r.W*float64(b.Dx()))
	y1 := y0 + int(r.H*float64(b.Dy()))
	rect := image.Rect(x0, y0, x1, y1).Intersect(b)
	if rect.Empty() {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Copy(out, image.Point{}, img, rect, draw.Src, nil)
	return out
}

// ColorMatch reports whether a color is within tolerance of a target on every
// RGB channel.
func ColorMatch(c color.Color, target color.RGBA, tolerance uint8) bool {
	r, g, b, _ := c.RGBA()
	return absDiff(uint8(r>>8), target.R) <= tolerance &&
		absDiff(uint8(g>>8), target.G) <= tolerance &&
		absDiff(uint8(b>>8), target.B) <= tolerance
}

// MatchRatio scans img and returns the fraction of pixels within tolerance of
// target, in [0,1].
func MatchRatio(img image.Image, target color.RGBA, tolerance uint8) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	matched := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if ColorMatch(img.At(x, y), target, tolerance) {
				matched++
			}
		}
	}
	return float64(matched) / float64(total)
}

// Brightness returns the mean luma of img in [0,255].
func Brightness(img image.Image) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return sum / float64(total)
}

// RednessRatio returns the fraction of pixels where red clearly dominates the
// other channels. Used to separate red suits from black.
func RednessRatio(img image.Image) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	red := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			r8, g8, b8 := int(r>>8), int(g>>8), int(bl>>8)
			if r8 > g8+40 && r8 > b8+40 {
				red++
			}
		}
	}
	return float64(red) / float64(total)
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
