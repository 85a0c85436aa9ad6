package present

import (
	"image"
	"time"

	"github.com/zombor/label-scanner/internal/ingredients"
	"github.com/zombor/label-scanner/internal/session"
	"github.com/zombor/label-scanner/internal/speech"
)

// Presenter draws each tick and announces flagged results.
// It never changes the session it is shown.
type Presenter struct {
	speaker speech.Speaker

	// spoken identifies the last alert announced
	spokenID    string
	spokenStart time.Time
}

// NewPresenter creates a Presenter that announces through speaker
func NewPresenter(speaker speech.Speaker) *Presenter {
	return &Presenter{speaker: speaker}
}

// Render paints live, then the overlay for snap, and returns the scene drawn
func (p *Presenter) Render(surface Surface, live image.Image, snap session.Session, now time.Time) Scene {
	if live != nil {
		surface.DrawImage(live)
	}
	width, height := surface.Size()
	scene := Compose(snap, now, width, height)
	Paint(surface, scene)
	p.announce(snap)
	return scene
}

// announce speaks once per flagged alert, however many ticks it lasts
func (p *Presenter) announce(snap session.Session) {
	if snap.Phase != session.Alerting || snap.Status != ingredients.Flagged {
		return
	}
	if snap.ID == p.spokenID && snap.AlertStartedAt.Equal(p.spokenStart) {
		return
	}
	p.spokenID, p.spokenStart = snap.ID, snap.AlertStartedAt
	p.speaker.Speak(speech.Summary(snap.Matches))
}
