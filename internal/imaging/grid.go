package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Tile is one cell of a contact sheet.
type Tile struct {
	Image   image.Image
	Caption string
}

// captionHeight leaves room for one line of basicfont.Face7x13 plus padding.
const captionHeight = 17

// ContactSheet lays tiles out on a grid, each scaled to tileSize x tileSize and
// captioned underneath. Columns are filled left to right, then top to bottom.
//
// Captions longer than the tile are clipped. Tiles with a nil Image are drawn as
// empty cells so captions stay aligned with their inputs.
func ContactSheet(tiles []Tile, tileSize, columns int) (*image.RGBA, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("no tiles to draw")
	}
	if tileSize <= 0 || columns <= 0 {
		return nil, fmt.Errorf("invalid sheet geometry: tile size %d, columns %d", tileSize, columns)
	}
	if columns > len(tiles) {
		columns = len(tiles)
	}
	rows := (len(tiles) + columns - 1) / columns

	cellH := tileSize + captionHeight
	sheet := image.NewRGBA(image.Rect(0, 0, columns*tileSize, rows*cellH))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for i, tile := range tiles {
		x := (i % columns) * tileSize
		y := (i / columns) * cellH

		if tile.Image != nil {
			scaled := imaging.Resize(tile.Image, tileSize, tileSize, imaging.NearestNeighbor)
			draw.Draw(sheet, image.Rect(x, y, x+tileSize, y+tileSize), scaled, image.Point{}, draw.Src)
		}

		drawCaption(sheet, image.Rect(x, y+tileSize, x+tileSize, y+cellH), tile.Caption)
	}

	return sheet, nil
}

// SavePNG writes an image to path; the format follows the file extension.
func SavePNG(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

func drawCaption(dst *image.RGBA, cell image.Rectangle, text string) {
	clip, ok := dst.SubImage(cell).(*image.RGBA)
	if !ok {
		return
	}
	d := &font.Drawer{
		Dst:  clip,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(cell.Min.X+2, cell.Min.Y+basicfont.Face7x13.Ascent+2),
	}
	d.DrawString(text)
}
