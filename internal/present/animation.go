package present

import "time"

const (
	// SlideWindow is how long the alert card takes to slide fully in
	SlideWindow = 400 * time.Millisecond
	// FadeWindow is how long the alert card takes to become opaque
	FadeWindow = 300 * time.Millisecond
	// SlideDistance is how far the card travels, in pixels
	SlideDistance = 320.0

	processingPeriod   = time.Second
	processingMinAlpha = 150
	processingMaxAlpha = 255
)

// progress maps elapsed onto [0, 1] over window
func progress(elapsed, window time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= window {
		return 1
	}
	return float64(elapsed) / float64(window)
}

// SlideProgress returns how many pixels the card has travelled after elapsed,
// from 0 up to SlideDistance
func SlideProgress(elapsed time.Duration) float64 {
	return progress(elapsed, SlideWindow) * SlideDistance
}

// FadeAlpha returns the card opacity after elapsed, from 0 up to 255
func FadeAlpha(elapsed time.Duration) uint8 {
	return uint8(progress(elapsed, FadeWindow) * 255)
}

// ProcessingAlpha pulses the processing label once per second.
// It only depends on the wall clock.
func ProcessingAlpha(now time.Time) uint8 {
	period := processingPeriod.Milliseconds()
	phase := ((now.UnixMilli() % period) + period) % period
	span := int64(processingMaxAlpha - processingMinAlpha)
	return uint8(processingMinAlpha + span*phase/period)
}
