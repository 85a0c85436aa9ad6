package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Screen captures a rectangle of the desktop, e.g. a camera preview window
type Screen struct {
	bounds image.Rectangle
}

// NewScreen creates a Screen source for bounds. An empty rectangle selects
// the whole primary display.
func NewScreen(bounds image.Rectangle) (*Screen, error) {
	if bounds.Empty() {
		if screenshot.NumActiveDisplays() == 0 {
			return nil, fmt.Errorf("no active display")
		}
		bounds = screenshot.GetDisplayBounds(0)
	}
	return &Screen{bounds: bounds}, nil
}

// Current grabs the rectangle
func (s *Screen) Current() (image.Image, error) {
	img, err := screenshot.CaptureRect(s.bounds)
	if err != nil {
		return nil, fmt.Errorf("capturing screen: %w", err)
	}
	return img, nil
}

// Snapshot grabs the rectangle; every capture is a fresh image
func (s *Screen) Snapshot() (image.Image, error) {
	return s.Current()
}

// Bounds returns the captured rectangle
func (s *Screen) Bounds() image.Rectangle {
	return s.bounds
}
