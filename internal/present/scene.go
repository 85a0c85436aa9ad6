package present

import (
	"image/color"
	"strings"
	"time"

	"github.com/zombor/label-scanner/internal/ingredients"
	"github.com/zombor/label-scanner/internal/session"
)

const (
	promptText     = "Need to check the ingredients?"
	processingText = "Processing..."
	safeText       = "All ingredients look safe"
	cardTitle      = "Inflammatory ingredients detected:"

	flaggedIcon = "!"
	safeIcon    = "OK"

	cardWidth      = 300.0
	cardTop        = 70.0
	cardMaxText    = 280.0
	cardBaseHeight = 80.0
	cardRowHeight  = 40.0
)

var (
	white        = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	bannerFill   = color.NRGBA{A: 180}
	flaggedColor = color.NRGBA{R: 255, A: 255}
	safeColor    = color.NRGBA{G: 200, A: 255}
	safeLabel    = color.NRGBA{G: 200, A: 200}
)

// Text is a string anchored at a point
type Text struct {
	Text  string
	X, Y  float64
	Style TextStyle
}

// Panel is a rounded box with text on top of it
type Panel struct {
	Rect   Rect
	Radius float64
	Fill   color.NRGBA
	Shadow bool
	Texts  []Text
}

// Scene is everything drawn over the live frame for one tick.
// Nil panels are not shown.
type Scene struct {
	Prompt     *Panel
	Processing *Panel
	Badge      *Panel
	SafeLabel  *Panel
	Card       *Panel
}

// Panels returns the visible panels in paint order
func (s Scene) Panels() []*Panel {
	panels := make([]*Panel, 0, 5)
	for _, p := range []*Panel{s.Prompt, s.Processing, s.Badge, s.SafeLabel, s.Card} {
		if p != nil {
			panels = append(panels, p)
		}
	}
	return panels
}

// Compose lays out the overlay for snap at now on a width×height surface.
// It has no side effects.
func Compose(snap session.Session, now time.Time, width, height int) Scene {
	w, h := float64(width), float64(height)

	switch snap.Phase {
	case session.Idle:
		return Scene{Prompt: promptPanel(w, h)}
	case session.Capturing, session.Recognizing:
		return Scene{Processing: processingPanel(w, h, now)}
	case session.Resolved, session.Alerting:
		scene := Scene{Badge: badgePanel(w, snap.Status)}
		if snap.Status == ingredients.Flagged {
			scene.Card = cardPanel(w, snap.Matches, snap.Elapsed(now))
		} else {
			scene.SafeLabel = safePanel(w)
		}
		return scene
	}
	return Scene{}
}

func promptPanel(w, h float64) *Panel {
	return &Panel{
		Rect:   Rect{X: 20, Y: h - 50, W: w - 40, H: 30},
		Radius: 12,
		Fill:   bannerFill,
		Texts: []Text{{
			Text:  promptText,
			X:     w / 2,
			Y:     h - 35,
			Style: TextStyle{Size: 16, Color: white, Align: AlignCenter, VAlign: AlignMiddle},
		}},
	}
}

func processingPanel(w, h float64, now time.Time) *Panel {
	textColor := white
	textColor.A = ProcessingAlpha(now)
	return &Panel{
		Rect:   Rect{X: w/2 - 80, Y: h/2 - 20, W: 160, H: 40},
		Radius: 10,
		Fill:   bannerFill,
		Texts: []Text{{
			Text:  processingText,
			X:     w / 2,
			Y:     h / 2,
			Style: TextStyle{Size: 16, Color: textColor, Align: AlignCenter, VAlign: AlignMiddle},
		}},
	}
}

// badgeAnchor is the top-right point the badge and safe label hang from
func badgeAnchor(w float64) (float64, float64) {
	return w - 60, 20
}

func badgePanel(w float64, status ingredients.Status) *Panel {
	x, y := badgeAnchor(w)
	fill, icon := safeColor, safeIcon
	if status == ingredients.Flagged {
		fill, icon = flaggedColor, flaggedIcon
	}
	return &Panel{
		Rect:   Rect{X: x - 10, Y: y - 10, W: 50, H: 40},
		Radius: 10,
		Fill:   fill,
		Texts: []Text{{
			Text:  icon,
			X:     x + 15,
			Y:     y + 10,
			Style: TextStyle{Size: 24, Color: white, Align: AlignCenter, VAlign: AlignMiddle},
		}},
	}
}

func safePanel(w float64) *Panel {
	x, y := badgeAnchor(w)
	return &Panel{
		Rect:   Rect{X: x - 180, Y: y, W: 160, H: 30},
		Radius: 8,
		Fill:   safeLabel,
		Texts: []Text{{
			Text:  safeText,
			X:     x - 170,
			Y:     y + 15,
			Style: TextStyle{Size: 12, Color: white, Align: AlignLeft, VAlign: AlignMiddle},
		}},
	}
}

// cardPanel lists every match: an uppercase phrase line, then its
// explanation indented underneath
func cardPanel(w float64, matches ingredients.MatchResult, elapsed time.Duration) *Panel {
	alpha := FadeAlpha(elapsed)
	x := w - SlideDistance + (SlideDistance - SlideProgress(elapsed))
	y := cardTop

	textColor := white
	textColor.A = alpha
	style := TextStyle{Size: 14, Color: textColor, Align: AlignLeft, VAlign: AlignTop, MaxWidth: cardMaxText}
	indented := style
	indented.MaxWidth = cardMaxText - 12

	tx, ty := x+10, y+10
	texts := []Text{{Text: cardTitle, X: tx, Y: ty, Style: style}}
	ty += 24
	for _, m := range matches {
		texts = append(texts, Text{Text: "• " + strings.ToUpper(m.Phrase), X: tx, Y: ty, Style: style})
		ty += 18
		texts = append(texts, Text{Text: m.Explanation, X: tx + 12, Y: ty, Style: indented})
		ty += 28
	}

	return &Panel{
		Rect:   Rect{X: x, Y: y, W: cardWidth, H: cardBaseHeight + float64(len(matches))*cardRowHeight},
		Radius: 16,
		Fill:   color.NRGBA{R: 30, G: 30, B: 30, A: alpha},
		Shadow: true,
		Texts:  texts,
	}
}

// Paint draws the scene's panels onto surface
func Paint(surface Surface, scene Scene) {
	for _, p := range scene.Panels() {
		if p.Shadow && p.Fill.A > 0 {
			shadow := Rect{X: p.Rect.X + 2, Y: p.Rect.Y + 2, W: p.Rect.W, H: p.Rect.H}
			surface.FillRoundedRect(shadow, p.Radius, color.NRGBA{A: uint8(float64(p.Fill.A) * 0.3)})
		}
		surface.FillRoundedRect(p.Rect, p.Radius, p.Fill)
		for _, t := range p.Texts {
			surface.DrawText(t.Text, t.X, t.Y, t.Style)
		}
	}
}
