package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/label-scanner/internal/capture"
	"github.com/zombor/label-scanner/internal/ingredients"
	"github.com/zombor/label-scanner/internal/scanning"
)

// IDGenerator generates unique IDs for scan sessions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (t *systemTime) Now() time.Time {
	return time.Now()
}

// SystemTime returns a TimeSource backed by time.Now
func SystemTime() TimeSource {
	return &systemTime{}
}

// ocrOutcome is the single result of an in-flight recognition
type ocrOutcome struct {
	sessionID string
	text      string
	err       error
}

// Machine runs capture, recognition, matching and the timed alert.
//
// Trigger and Tick must be called from one goroutine. The only work done
// elsewhere is the recognizer call, whose outcome is picked up by Tick.
type Machine struct {
	source      capture.Source
	recognizer  scanning.Recognizer
	dict        *ingredients.Dictionary
	timing      Timing
	idGenerator IDGenerator
	timeSource  TimeSource

	session  Session
	outcomes chan ocrOutcome
	lastErr  error
}

// NewMachine creates a Machine with uuid session IDs and the system clock
func NewMachine(source capture.Source, recognizer scanning.Recognizer, dict *ingredients.Dictionary, timing Timing) *Machine {
	return NewMachineWithDeps(source, recognizer, dict, timing, &uuidGenerator{}, &systemTime{})
}

// NewMachineWithDeps creates a Machine with custom dependencies for testing
func NewMachineWithDeps(source capture.Source, recognizer scanning.Recognizer, dict *ingredients.Dictionary, timing Timing, idGen IDGenerator, timeSrc TimeSource) *Machine {
	return &Machine{
		source:      source,
		recognizer:  recognizer,
		dict:        dict,
		timing:      timing,
		idGenerator: idGen,
		timeSource:  timeSrc,
		outcomes:    make(chan ocrOutcome, 1),
	}
}

// Session returns a copy of the current session
func (m *Machine) Session() Session {
	return m.session
}

// LastError returns why the most recent scan was aborted, if it was
func (m *Machine) LastError() error {
	return m.lastErr
}

// Trigger starts a scan. It is ignored unless the machine is Idle.
func (m *Machine) Trigger(ctx context.Context) bool {
	next, ok := Start(m.session, m.idGenerator.Generate())
	if !ok {
		slog.Debug("Scan already in progress", "session", m.session.ID, "phase", m.session.Phase)
		return false
	}
	m.session = next
	m.lastErr = nil

	frame, err := m.source.Snapshot()
	if err != nil {
		m.abort(fmt.Errorf("capturing frame: %w", err))
		return true
	}
	m.session, _ = Captured(m.session, frame)

	slog.Info("Recognizing label", "session", m.session.ID, "engine", m.recognizer.Name())

	// Recognition runs to completion even if the caller goes away
	id := m.session.ID
	ocrCtx := context.WithoutCancel(ctx)
	go func() {
		text, err := m.recognizer.Recognize(ocrCtx, frame)
		if err == nil && strings.TrimSpace(text) == "" {
			err = scanning.ErrNoText
		}
		if err != nil {
			err = &scanning.OCRError{Engine: m.recognizer.Name(), Err: err}
		}
		m.outcomes <- ocrOutcome{sessionID: id, text: text, err: err}
	}()
	return true
}

// Tick advances time-driven transitions and returns the resulting session
func (m *Machine) Tick() Session {
	now := m.timeSource.Now()

	if m.session.Phase == Recognizing {
		select {
		case out := <-m.outcomes:
			m.complete(out, now)
		default:
		}
	}

	if next, ok := Expire(m.session, now); ok {
		slog.Debug("Alert dismissed", "session", m.session.ID)
		m.session = next
	}

	return m.session
}

func (m *Machine) complete(out ocrOutcome, now time.Time) {
	if out.sessionID != m.session.ID {
		return
	}
	if out.err != nil {
		m.abort(out.err)
		return
	}

	m.session, _ = Resolve(m.session, out.text, m.dict, m.timing)
	slog.Info("Label scanned",
		"session", m.session.ID,
		"status", m.session.Status,
		"matches", len(m.session.Matches),
	)
	m.session, _ = BeginAlert(m.session, now)
}

func (m *Machine) abort(err error) {
	slog.Error("Failed to scan label", "session", m.session.ID, "error", err)
	m.lastErr = err
	m.session = Abort(m.session)
}
