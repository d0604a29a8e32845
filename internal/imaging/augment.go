package imaging

import (
	"image"
	"image/draw"
	"math"
	"math/rand"

	"github.com/anthonynsimon/bild/transform"
)

// AugmentOptions bounds the random transforms applied by an Augmenter.
type AugmentOptions struct {
	// WidthShift is the maximum horizontal shift as a fraction of the width.
	WidthShift float64

	// HeightShift is the maximum vertical shift as a fraction of the height.
	HeightShift float64

	// Rotation is the maximum rotation in degrees in either direction.
	Rotation float64

	HorizontalFlip bool
	VerticalFlip   bool
}

// Enabled reports whether any transform can change an image.
func (o AugmentOptions) Enabled() bool {
	return o.WidthShift > 0 || o.HeightShift > 0 || o.Rotation > 0 || o.HorizontalFlip || o.VerticalFlip
}

// Augmenter applies random shifts, rotations and flips to grayscale images.
//
// Each call to Apply draws a fresh rotation angle uniformly from
// [-Rotation, Rotation], shifts uniformly from [-WidthShift*w, WidthShift*w]
// and [-HeightShift*h, HeightShift*h], and flips each enabled axis with
// probability 0.5. Areas uncovered by a shift or rotation repeat the nearest
// edge pixel.
//
// An Augmenter is not safe for concurrent use; it owns its random source.
type Augmenter struct {
	opts AugmentOptions
	rng  *rand.Rand
}

// NewAugmenter returns an Augmenter seeded for reproducible output.
func NewAugmenter(opts AugmentOptions, seed int64) *Augmenter {
	return &Augmenter{
		opts: opts,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Options returns the configured bounds.
func (a *Augmenter) Options() AugmentOptions {
	return a.opts
}

// Apply returns a randomly transformed copy of img with the same size,
// anchored at the origin.
// The input is never modified.
func (a *Augmenter) Apply(img *image.Gray) *image.Gray {
	if !a.opts.Enabled() {
		return img
	}

	b := img.Bounds()
	var out image.Image = img

	angle := a.uniform(a.opts.Rotation)
	dx := int(math.Round(a.uniform(a.opts.WidthShift * float64(b.Dx()))))
	dy := int(math.Round(a.uniform(a.opts.HeightShift * float64(b.Dy()))))
	if angle != 0 || dx != 0 || dy != 0 {
		m := 2 * max(b.Dx(), b.Dy())
		var padded image.Image = padEdge(img, m)
		if angle != 0 {
			padded = transform.Rotate(padded, angle, &transform.RotationOptions{ResizeBounds: false})
		}
		if dx != 0 || dy != 0 {
			padded = transform.Translate(padded, dx, dy)
		}
		crop := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(crop, crop.Bounds(), padded, image.Pt(m, m), draw.Src)
		out = crop
	}

	if a.opts.HorizontalFlip && a.rng.Intn(2) == 1 {
		out = transform.FlipH(out)
	}
	if a.opts.VerticalFlip && a.rng.Intn(2) == 1 {
		out = transform.FlipV(out)
	}

	if out == image.Image(img) {
		return copyGray(img)
	}
	return ToGray(out)
}

// uniform draws from [-limit, limit].
func (a *Augmenter) uniform(limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return (a.rng.Float64()*2 - 1) * limit
}

// padEdge returns img surrounded by a border of m pixels, each a copy of the
// nearest edge pixel. The result is anchored at the origin.
func padEdge(img *image.Gray, m int) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w+2*m, h+2*m))
	if w == 0 || h == 0 {
		return out
	}
	for y := 0; y < h+2*m; y++ {
		sy := min(max(y-m, 0), h-1)
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+sy):]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w+2*m; x++ {
			dst[x] = row[min(max(x-m, 0), w-1)]
		}
	}
	return out
}

func copyGray(img *image.Gray) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
	draw.Draw(out, out.Bounds(), img, img.Rect.Min, draw.Src)
	return out
}
