package present

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter circle
const kappa = 0.5522847498

var (
	faceMu    sync.Mutex
	faceCache = map[float64]font.Face{}
	goRegular = sync.OnceValues(func() (*opentype.Font, error) {
		return opentype.Parse(goregular.TTF)
	})
)

// fontFace returns the cached Go Regular face at size. Callers hold faceMu.
func fontFace(size float64) (font.Face, error) {
	if face, ok := faceCache[size]; ok {
		return face, nil
	}
	f, err := goRegular()
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating font face: %w", err)
	}
	faceCache[size] = face
	return face, nil
}

// ImageSurface is a Surface backed by an RGBA image
type ImageSurface struct {
	img *image.RGBA
}

// NewImageSurface creates a black width×height surface
func NewImageSurface(width, height int) *ImageSurface {
	return &ImageSurface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Image returns the backing image
func (s *ImageSurface) Image() *image.RGBA {
	return s.img
}

func (s *ImageSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *ImageSurface) DrawImage(img image.Image) {
	xdraw.ApproxBiLinear.Scale(s.img, s.img.Bounds(), img, img.Bounds(), xdraw.Src, nil)
}

func (s *ImageSurface) FillRoundedRect(r Rect, radius float64, fill color.NRGBA) {
	if fill.A == 0 || r.W <= 0 || r.H <= 0 {
		return
	}
	w, h := s.Size()
	if r.X >= float64(w) || r.Y >= float64(h) || r.X+r.W <= 0 || r.Y+r.H <= 0 {
		return
	}
	radius = math.Max(0, math.Min(radius, math.Min(r.W, r.H)/2))

	z := vector.NewRasterizer(w, h)
	pt := func(x, y float64) (float32, float32) {
		return float32(clamp(x, 0, float64(w))), float32(clamp(y, 0, float64(h)))
	}
	moveTo := func(x, y float64) { z.MoveTo(pt(x, y)) }
	lineTo := func(x, y float64) { z.LineTo(pt(x, y)) }
	cubeTo := func(x1, y1, x2, y2, x3, y3 float64) {
		ax, ay := pt(x1, y1)
		bx, by := pt(x2, y2)
		cx, cy := pt(x3, y3)
		z.CubeTo(ax, ay, bx, by, cx, cy)
	}

	k := radius * kappa
	left, top, right, bottom := r.X, r.Y, r.X+r.W, r.Y+r.H
	moveTo(left+radius, top)
	lineTo(right-radius, top)
	cubeTo(right-radius+k, top, right, top+radius-k, right, top+radius)
	lineTo(right, bottom-radius)
	cubeTo(right, bottom-radius+k, right-radius+k, bottom, right-radius, bottom)
	lineTo(left+radius, bottom)
	cubeTo(left+radius-k, bottom, left, bottom-radius+k, left, bottom-radius)
	lineTo(left, top+radius)
	cubeTo(left, top+radius-k, left+radius-k, top, left+radius, top)
	z.ClosePath()

	z.Draw(s.img, s.img.Bounds(), image.NewUniform(fill), image.Point{})
}

func (s *ImageSurface) DrawText(text string, x, y float64, style TextStyle) {
	if style.Color.A == 0 || text == "" {
		return
	}
	faceMu.Lock()
	defer faceMu.Unlock()

	face, err := fontFace(style.Size)
	if err != nil {
		return
	}
	metrics := face.Metrics()
	ascent := fixedToFloat(metrics.Ascent)
	descent := fixedToFloat(metrics.Descent)
	lineHeight := fixedToFloat(metrics.Height)

	baseline := y + ascent
	if style.VAlign == AlignMiddle {
		baseline = y + (ascent-descent)/2
	}

	d := &font.Drawer{Dst: s.img, Src: image.NewUniform(style.Color), Face: face}
	for i, line := range wrapText(face, text, style.MaxWidth) {
		lx := x
		if style.Align == AlignCenter {
			lx = x - fixedToFloat(font.MeasureString(face, line))/2
		}
		d.Dot = fixed.Point26_6{
			X: fixed.Int26_6(lx * 64),
			Y: fixed.Int26_6((baseline + float64(i)*lineHeight) * 64),
		}
		d.DrawString(line)
	}
}

// wrapText breaks text into lines no wider than maxWidth. Words longer than
// maxWidth get a line of their own.
func wrapText(face font.Face, text string, maxWidth float64) []string {
	if maxWidth <= 0 {
		return []string{text}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	lines := make([]string, 0, 2)
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if fixedToFloat(font.MeasureString(face, candidate)) <= maxWidth {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
