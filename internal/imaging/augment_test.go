package imaging

import (
	"bytes"
	"image"
	"testing"
)

func TestAugmentOptions_Enabled(t *testing.T) {
	tests := []struct {
		name string
		opts AugmentOptions
		want bool
	}{
		{"zero", AugmentOptions{}, false},
		{"shift", AugmentOptions{WidthShift: 0.1}, true},
		{"rotation", AugmentOptions{Rotation: 5}, true},
		{"flip", AugmentOptions{VerticalFlip: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Enabled(); got != tt.want {
				t.Errorf("Enabled: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAugmenter_DisabledReturnsInput(t *testing.T) {
	a := NewAugmenter(AugmentOptions{}, 1)
	img := createSquareImage(20, 5)
	if out := a.Apply(img); out != img {
		t.Error("disabled augmenter should return the input")
	}
}

func TestAugmenter_PreservesSizeAndInput(t *testing.T) {
	a := NewAugmenter(AugmentOptions{WidthShift: 0.2, HeightShift: 0.2, Rotation: 15}, 7)
	img := createSquareImage(24, 6)
	orig := append([]uint8(nil), img.Pix...)

	for i := 0; i < 20; i++ {
		out := a.Apply(img)
		if out.Bounds() != image.Rect(0, 0, 24, 24) {
			t.Fatalf("iteration %d: bounds %v", i, out.Bounds())
		}
	}
	if !bytes.Equal(orig, img.Pix) {
		t.Error("Apply modified its input")
	}
}

func TestAugmenter_Deterministic(t *testing.T) {
	opts := AugmentOptions{WidthShift: 0.1, HeightShift: 0.1, Rotation: 5}
	img := createSquareImage(30, 8)

	a := NewAugmenter(opts, 42)
	b := NewAugmenter(opts, 42)
	for i := 0; i < 5; i++ {
		if !bytes.Equal(a.Apply(img).Pix, b.Apply(img).Pix) {
			t.Fatalf("iteration %d: same seed produced different images", i)
		}
	}
}

func TestAugmenter_ShiftMovesContent(t *testing.T) {
	a := NewAugmenter(AugmentOptions{WidthShift: 0.3}, 3)
	img := createSquareImage(20, 7)

	moved := false
	for i := 0; i < 10 && !moved; i++ {
		moved = !bytes.Equal(a.Apply(img).Pix, img.Pix)
	}
	if !moved {
		t.Error("ten shifted draws all equal the input")
	}
}

func TestAugmenter_HorizontalFlip(t *testing.T) {
	a := NewAugmenter(AugmentOptions{HorizontalFlip: true}, 5)
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	img.Pix[0] = 255

	sawFlip, sawSame := false, false
	for i := 0; i < 32; i++ {
		out := a.Apply(img)
		switch {
		case out.Pix[3] == 255 && out.Pix[0] == 0:
			sawFlip = true
		case out.Pix[0] == 255:
			sawSame = true
		}
	}
	if !sawFlip || !sawSame {
		t.Errorf("expected both flipped and unflipped draws, flipped=%v unflipped=%v", sawFlip, sawSame)
	}
}

func uniformGray(size int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestAugmenter_FillsFromNearestEdge(t *testing.T) {
	tests := []struct {
		name string
		opts AugmentOptions
	}{
		{"shift", AugmentOptions{WidthShift: 0.3, HeightShift: 0.3}},
		{"rotation", AugmentOptions{Rotation: 30}},
		{"shift and rotation", AugmentOptions{WidthShift: 0.5, HeightShift: 0.5, Rotation: 90}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAugmenter(tt.opts, 11)
			img := uniformGray(20, 255)
			for i := 0; i < 10; i++ {
				out := a.Apply(img)
				for j, v := range out.Pix {
					if v < 250 {
						t.Fatalf("iteration %d: pixel %d = %d, want white fill", i, j, v)
					}
				}
			}
		})
	}
}

func TestPadEdge(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	copy(img.Pix, []uint8{1, 2, 3, 4})

	tests := []struct {
		x, y int
		want uint8
	}{
		{0, 0, 1},
		{5, 0, 2},
		{0, 5, 3},
		{5, 5, 4},
		{2, 2, 1},
		{3, 1, 2},
		{1, 3, 3},
	}

	out := padEdge(img, 2)
	if out.Bounds() != image.Rect(0, 0, 6, 6) {
		t.Fatalf("bounds %v, want 6x6", out.Bounds())
	}
	for _, tt := range tests {
		if got := out.GrayAt(tt.x, tt.y).Y; got != tt.want {
			t.Errorf("(%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestPadEdge_SubImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.Gray)

	out := padEdge(sub, 1)
	// corners of the 2x2 window are pixels 5, 6, 9 and 10 of the parent
	for _, tt := range []struct {
		x, y int
		want uint8
	}{{0, 0, 5}, {3, 0, 6}, {0, 3, 9}, {3, 3, 10}} {
		if got := out.GrayAt(tt.x, tt.y).Y; got != tt.want {
			t.Errorf("(%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}
