package present

import (
	"image"
	"image/color"
)

// Rect is an axis-aligned rectangle in surface pixels
type Rect struct {
	X, Y, W, H float64
}

// Align is horizontal text alignment relative to the anchor x
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
)

// VAlign is vertical text alignment relative to the anchor y
type VAlign int

const (
	AlignTop VAlign = iota
	AlignMiddle
)

// TextStyle controls how text is drawn. MaxWidth > 0 wraps on word boundaries.
type TextStyle struct {
	Size     float64
	Color    color.NRGBA
	Align    Align
	VAlign   VAlign
	MaxWidth float64
}

// Surface is what the presenter draws on
type Surface interface {
	Size() (width, height int)
	// DrawImage paints img scaled to cover the whole surface
	DrawImage(img image.Image)
	FillRoundedRect(r Rect, radius float64, fill color.NRGBA)
	DrawText(text string, x, y float64, style TextStyle)
}
