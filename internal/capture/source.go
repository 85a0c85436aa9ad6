package capture

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoFrame is returned before a source has produced its first frame
var ErrNoFrame = errors.New("no frame available")

// Source provides the live video frame and still snapshots of it
type Source interface {
	// Current returns the most recent frame. Callers must not modify it.
	Current() (image.Image, error)
	// Snapshot returns a copy of the current frame owned by the caller
	Snapshot() (image.Image, error)
}

// Latest holds the most recent frame pushed from outside (browser uploads)
type Latest struct {
	mu    sync.RWMutex
	frame image.Image
}

// NewLatest creates an empty Latest source
func NewLatest() *Latest {
	return &Latest{}
}

// Update replaces the current frame
func (l *Latest) Update(frame image.Image) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = frame
}

// Current returns the most recent frame
func (l *Latest) Current() (image.Image, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.frame == nil {
		return nil, ErrNoFrame
	}
	return l.frame, nil
}

// Snapshot copies the most recent frame
func (l *Latest) Snapshot() (image.Image, error) {
	frame, err := l.Current()
	if err != nil {
		return nil, err
	}
	return Clone(frame), nil
}

// Still is a source that always shows the same image
type Still struct {
	frame image.Image
}

// NewStill wraps an image as a source
func NewStill(frame image.Image) *Still {
	return &Still{frame: frame}
}

// LoadStill reads and decodes an image file into a Still source
func LoadStill(path string) (*Still, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	img, err := Decode(data, ContentTypeForExt(filepath.Ext(path)))
	if err != nil {
		return nil, err
	}
	return NewStill(img), nil
}

// Current returns the still image
func (s *Still) Current() (image.Image, error) {
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}

// Snapshot returns a copy of the still image
func (s *Still) Snapshot() (image.Image, error) {
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return Clone(s.frame), nil
}

// Clone copies img into a new RGBA image with the same bounds
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}
