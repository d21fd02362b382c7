package cardmaker

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Sprite sheet grid limits imposed by tabletop-simulation tooling.
const (
	SpriteMaxColumns = 10
	SpriteMaxRows    = 7
	SpriteMaxCards   = SpriteMaxColumns * SpriteMaxRows
)

// ComposeSpriteSheet lays rendered card images into one bounded grid image
// on a transparent canvas: row-major, left to right, top to bottom, no
// gaps. Cards beyond the column/row caps are silently dropped from this
// sheet; producing additional sheets is the caller's responsibility.
func ComposeSpriteSheet(cards [][]byte, columns int, dims ResolvedCardDimensions) ([]byte, error) {
	count := len(cards)
	if count == 0 {
		return nil, ErrNoCards
	}

	cols := columns
	if cols <= 0 {
		cols = count
	}
	if cols > SpriteMaxColumns {
		cols = SpriteMaxColumns
	}
	rows := (count + cols - 1) / cols
	if rows > SpriteMaxRows {
		rows = SpriteMaxRows
	}
	used := count
	if used > cols*rows {
		used = cols * rows
	}

	cardW, cardH := dims.WidthPx, dims.HeightPx
	sheet := imaging.New(cols*cardW, rows*cardH, color.NRGBA{})

	for i := 0; i < used; i++ {
		img, err := imaging.Decode(bytes.NewReader(cards[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: card %d: %v", ErrImageDecode, i+1, err)
		}
		sheet = imaging.Paste(sheet, img, image.Pt((i%cols)*cardW, (i/cols)*cardH))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, sheet, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding sprite sheet: %w", err)
	}
	return buf.Bytes(), nil
}
