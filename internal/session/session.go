package session

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/zombor/label-scanner/internal/ingredients"
)

// Phase is the step a scan session is in
type Phase int

const (
	Idle Phase = iota
	Capturing
	Recognizing
	Resolved
	Alerting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Recognizing:
		return "recognizing"
	case Resolved:
		return "resolved"
	case Alerting:
		return "alerting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Timing holds how long results stay on screen
type Timing struct {
	Flagged time.Duration
	Safe    time.Duration
}

// DefaultTiming keeps warnings up twice as long as safe confirmations
var DefaultTiming = Timing{
	Flagged: 5000 * time.Millisecond,
	Safe:    2500 * time.Millisecond,
}

// Validate requires Flagged > Safe > 0
func (t Timing) Validate() error {
	if t.Safe <= 0 {
		return fmt.Errorf("safe alert duration must be positive, got %s", t.Safe)
	}
	if t.Flagged <= t.Safe {
		return fmt.Errorf("flagged alert duration (%s) must be longer than safe (%s)", t.Flagged, t.Safe)
	}
	return nil
}

// For returns the alert duration for a status
func (t Timing) For(status ingredients.Status) time.Duration {
	if status == ingredients.Flagged {
		return t.Flagged
	}
	return t.Safe
}

// Session is the state of one user-initiated scan.
//
// Frame is held from Capturing through Alerting; Text once recognition
// finishes; Matches and Status once resolved. The zero value is Idle.
type Session struct {
	ID             string
	Phase          Phase
	Frame          image.Image
	Text           string
	Matches        ingredients.MatchResult
	Status         ingredients.Status
	AlertStartedAt time.Time
	AlertDuration  time.Duration
}

// Active reports whether a scan is in progress
func (s Session) Active() bool {
	return s.Phase != Idle
}

// Elapsed returns the time spent alerting at now
func (s Session) Elapsed(now time.Time) time.Duration {
	if s.Phase != Alerting {
		return 0
	}
	return now.Sub(s.AlertStartedAt)
}

// Remaining returns the alert time left at now, never negative
func (s Session) Remaining(now time.Time) time.Duration {
	if s.Phase != Alerting {
		return 0
	}
	if left := s.AlertDuration - s.Elapsed(now); left > 0 {
		return left
	}
	return 0
}

// The functions below are the only transitions. Each takes the current
// session by value and reports whether the transition applied.

// Start begins a new scan. Only valid from Idle.
func Start(s Session, id string) (Session, bool) {
	if s.Phase != Idle {
		return s, false
	}
	return Session{ID: id, Phase: Capturing}, true
}

// Captured takes ownership of the snapshot and moves on to recognition
func Captured(s Session, frame image.Image) (Session, bool) {
	if s.Phase != Capturing {
		return s, false
	}
	s.Frame = frame
	s.Phase = Recognizing
	return s, true
}

// Resolve lowercases the recognized text and matches it against dict
func Resolve(s Session, text string, dict *ingredients.Dictionary, timing Timing) (Session, bool) {
	if s.Phase != Recognizing {
		return s, false
	}
	s.Text = strings.ToLower(text)
	s.Matches = dict.Match(s.Text)
	s.Status = ingredients.StatusOf(s.Matches)
	s.AlertDuration = timing.For(s.Status)
	s.Phase = Resolved
	return s, true
}

// BeginAlert starts the alert clock
func BeginAlert(s Session, now time.Time) (Session, bool) {
	if s.Phase != Resolved {
		return s, false
	}
	s.AlertStartedAt = now
	s.Phase = Alerting
	return s, true
}

// Expire returns to Idle once the alert has been shown for its duration
func Expire(s Session, now time.Time) (Session, bool) {
	if s.Phase != Alerting || s.Elapsed(now) < s.AlertDuration {
		return s, false
	}
	return Session{}, true
}

// Abort drops the scan and everything it captured
func Abort(s Session) Session {
	return Session{}
}
