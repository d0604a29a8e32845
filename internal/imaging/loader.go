package imaging

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"sync"

	"github.com/disintegration/imaging"
)

// LoadGray reads an image file and returns it as a size x size grayscale image.
//
// Parameters:
//   - path: File path to the image. Supported formats are PNG, JPEG, and GIF.
//   - size: Edge length of the square output in pixels. Must be positive.
//
// The image is converted to grayscale first and then resized with a bilinear
// filter, ignoring the source aspect ratio. Grayscale conversion uses the
// ITU-R BT.601 weights (0.299*R + 0.587*G + 0.114*B).
//
// # Errors
//
//   - Returns error if size is not positive
//   - Returns error if the file does not exist or cannot be read
//   - Returns error if the file is not a valid PNG, JPEG, or GIF image
func LoadGray(path string, size int) (*image.Gray, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid image size %d", size)
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return Resize(img, size), nil
}

// Resize converts any image to a size x size grayscale image.
func Resize(img image.Image, size int) *image.Gray {
	resized := imaging.Resize(ToGray(img), size, size, imaging.Linear)
	return ToGray(resized)
}

// ToGray converts an image to *image.Gray with its bounds moved to the origin.
// An *image.Gray already at the origin is returned as is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// ToSample copies the pixels of a square grayscale image into a flat
// row-major slice of length width*height.
func ToSample(img *image.Gray) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out[y*w:(y+1)*w], img.Pix[row:row+w])
	}
	return out
}

// FromSample wraps a flat row-major sample as a size x size grayscale image.
// The returned image owns a copy of the pixels.
func FromSample(pix []uint8, size int) (*image.Gray, error) {
	if len(pix) != size*size {
		return nil, fmt.Errorf("sample has %d pixels, want %d", len(pix), size*size)
	}
	img := image.NewGray(image.Rect(0, 0, size, size))
	copy(img.Pix, pix)
	return img, nil
}

// ImageCache provides thread-safe caching of prepared grayscale images.
//
// Entries are keyed by path and target size, so the same file may be cached at
// several resolutions. Cached images remain in memory until Evict or Clear.
//
// ImageCache is safe for concurrent use by multiple goroutines.
type ImageCache struct {
	mu     sync.RWMutex
	images map[cacheKey]*image.Gray
}

type cacheKey struct {
	path string
	size int
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[cacheKey]*image.Gray),
	}
}

// Load returns the cached grayscale image for path at size, loading it with
// LoadGray on a miss. Callers must not modify the returned image.
func (c *ImageCache) Load(path string, size int) (*image.Gray, error) {
	key := cacheKey{path: path, size: size}

	c.mu.RLock()
	if img, ok := c.images[key]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := LoadGray(path, size)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[key] = img
	c.mu.Unlock()

	return img, nil
}

// Len returns the number of cached entries.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[cacheKey]*image.Gray)
	c.mu.Unlock()
}

// Evict removes every cached size of the given path.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	for key := range c.images {
		if key.path == path {
			delete(c.images, key)
		}
	}
	c.mu.Unlock()
}
