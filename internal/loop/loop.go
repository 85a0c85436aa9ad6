package loop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zombor/label-scanner/internal/capture"
	"github.com/zombor/label-scanner/internal/present"
	"github.com/zombor/label-scanner/internal/session"
)

// ErrStopped is returned by Trigger once Run has exited
var ErrStopped = errors.New("loop stopped")

// Config sizes the rendered output and sets the tick rate
type Config struct {
	Width  int
	Height int
	FPS    int
}

// DefaultConfig matches a 640×480 webcam at 30 frames per second
var DefaultConfig = Config{Width: 640, Height: 480, FPS: 30}

func (c Config) interval() time.Duration {
	fps := c.FPS
	if fps <= 0 {
		fps = DefaultConfig.FPS
	}
	return time.Second / time.Duration(fps)
}

// Loop drives the machine and presenter from a single goroutine
type Loop struct {
	machine    *session.Machine
	presenter  *present.Presenter
	source     capture.Source
	timeSource session.TimeSource
	config     Config

	triggers chan chan bool
	done     chan struct{}

	frame    atomic.Pointer[image.RGBA]
	snapshot atomic.Pointer[session.Session]
}

// New creates a Loop. Nothing runs until Run or ScanOnce is called.
func New(machine *session.Machine, presenter *present.Presenter, source capture.Source, timeSource session.TimeSource, config Config) *Loop {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = DefaultConfig.Width, DefaultConfig.Height
	}
	l := &Loop{
		machine:    machine,
		presenter:  presenter,
		source:     source,
		timeSource: timeSource,
		config:     config,
		triggers:   make(chan chan bool),
		done:       make(chan struct{}),
	}
	idle := session.Session{}
	l.snapshot.Store(&idle)
	return l
}

// Run ticks until ctx is canceled. Scan requests from Trigger are handled
// between ticks on the same goroutine.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.config.interval())
	defer ticker.Stop()

	slog.Info("Render loop started", "fps", l.config.FPS, "width", l.config.Width, "height", l.config.Height)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Render loop stopped")
			return ctx.Err()
		case reply := <-l.triggers:
			accepted := l.machine.Trigger(ctx)
			snap := l.machine.Session()
			l.snapshot.Store(&snap)
			reply <- accepted
		case <-ticker.C:
			l.step()
		}
	}
}

// Trigger asks the loop to start a scan and reports whether it was accepted
func (l *Loop) Trigger(ctx context.Context) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case l.triggers <- reply:
	case <-l.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case accepted := <-reply:
		return accepted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Frame returns the most recently rendered frame, or nil before the first tick
func (l *Loop) Frame() *image.RGBA {
	return l.frame.Load()
}

// Session returns the session as of the last tick
func (l *Loop) Session() session.Session {
	return *l.snapshot.Load()
}

// ScanOnce runs one complete scan without Run: it triggers, ticks until the
// result is on screen (or the scan is aborted) and returns that session with
// its rendered frame. It must not be used while Run is active.
func (l *Loop) ScanOnce(ctx context.Context) (session.Session, *image.RGBA, error) {
	if !l.machine.Trigger(ctx) {
		return session.Session{}, nil, fmt.Errorf("scan already in progress")
	}

	ticker := time.NewTicker(l.config.interval())
	defer ticker.Stop()
	for {
		snap := l.step()
		switch snap.Phase {
		case session.Alerting:
			// Show the alert fully slid in and faded up
			settled := snap.AlertStartedAt.Add(max(present.SlideWindow, present.FadeWindow))
			l.render(snap, settled)
			return snap, l.Frame(), nil
		case session.Idle:
			return snap, l.Frame(), l.machine.LastError()
		}
		select {
		case <-ctx.Done():
			return snap, l.Frame(), ctx.Err()
		case <-ticker.C:
		}
	}
}

// step advances the machine, renders and publishes the result
func (l *Loop) step() session.Session {
	snap := l.machine.Tick()
	l.render(snap, l.timeSource.Now())
	return snap
}

// render draws snap as of now over the live frame and publishes both
func (l *Loop) render(snap session.Session, now time.Time) {
	live, err := l.source.Current()
	if err != nil {
		live = nil
	}

	surface := present.NewImageSurface(l.config.Width, l.config.Height)
	l.presenter.Render(surface, live, snap, now)

	l.frame.Store(surface.Image())
	l.snapshot.Store(&snap)
}
