package scanning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// ErrNoText is returned when an engine produced no usable text
var ErrNoText = errors.New("no text recognized")

// Recognizer turns a captured frame into text
type Recognizer interface {
	// Name identifies the engine in logs
	Name() string
	// Recognize returns the text found in frame in its original case
	Recognize(ctx context.Context, frame image.Image) (string, error)
	// Close releases engine resources
	Close() error
}

// OCRError reports a failed recognition
type OCRError struct {
	Engine string
	Err    error
}

func (e *OCRError) Error() string {
	return fmt.Sprintf("%s ocr: %v", e.Engine, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

// EncodePNG encodes a frame for engines that take image bytes
func EncodePNG(frame image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
