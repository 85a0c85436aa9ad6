package session

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/label-scanner/internal/capture"
	"github.com/zombor/label-scanner/internal/ingredients"
	"github.com/zombor/label-scanner/internal/scanning"
)

func TestSession(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Suite")
}

// mockSource is a mock implementation of capture.Source
type mockSource struct {
	frame       image.Image
	snapshotErr error
	snapshots   int
}

func (m *mockSource) Current() (image.Image, error) {
	return m.frame, nil
}

func (m *mockSource) Snapshot() (image.Image, error) {
	m.snapshots++
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return capture.Clone(m.frame), nil
}

// mockRecognizer is a mock implementation of scanning.Recognizer.
// When release is set, Recognize blocks until it is closed.
type mockRecognizer struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	ctxErr  error
	release chan struct{}
}

func (m *mockRecognizer) Name() string { return "mock" }

func (m *mockRecognizer) Recognize(ctx context.Context, frame image.Image) (string, error) {
	m.mu.Lock()
	m.calls++
	release := m.release
	m.mu.Unlock()
	if release != nil {
		<-release
	}
	m.mu.Lock()
	m.ctxErr = ctx.Err()
	m.mu.Unlock()
	return m.text, m.err
}

func (m *mockRecognizer) Close() error { return nil }

func (m *mockRecognizer) CtxErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctxErr
}

func (m *mockRecognizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockIDGenerator is a mock implementation of IDGenerator
type mockIDGenerator struct {
	next int
}

func (m *mockIDGenerator) Generate() string {
	m.next++
	return "scan-" + string(rune('0'+m.next))
}

// mockTimeSource is a mock implementation of TimeSource
type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}

func (m *mockTimeSource) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

var _ = Describe("Transitions", func() {
	var dict *ingredients.Dictionary

	BeforeEach(func() {
		dict = ingredients.Default()
	})

	Describe("Start", func() {
		It("should move Idle to Capturing with the new ID", func() {
			s, ok := Start(Session{}, "abc")
			Expect(ok).To(BeTrue())
			Expect(s.Phase).To(Equal(Capturing))
			Expect(s.ID).To(Equal("abc"))
		})

		It("should refuse to start while a scan is active", func() {
			active := Session{ID: "busy", Phase: Recognizing, Text: "x"}
			s, ok := Start(active, "abc")
			Expect(ok).To(BeFalse())
			Expect(s).To(Equal(active))
		})
	})

	Describe("Captured", func() {
		It("should hold the frame while recognizing", func() {
			frame := image.NewRGBA(image.Rect(0, 0, 1, 1))
			s, ok := Captured(Session{Phase: Capturing}, frame)
			Expect(ok).To(BeTrue())
			Expect(s.Phase).To(Equal(Recognizing))
			Expect(s.Frame).To(BeIdenticalTo(frame))
		})

		It("should only apply while capturing", func() {
			_, ok := Captured(Session{}, nil)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Resolve", func() {
		It("should lowercase the text before matching", func() {
			s, ok := Resolve(Session{Phase: Recognizing}, "Contains SUGAR", dict, DefaultTiming)
			Expect(ok).To(BeTrue())
			Expect(s.Text).To(Equal("contains sugar"))
			Expect(s.Matches).To(HaveLen(1))
			Expect(s.Status).To(Equal(ingredients.Flagged))
			Expect(s.AlertDuration).To(Equal(5000 * time.Millisecond))
		})

		It("should use the short duration for safe labels", func() {
			s, _ := Resolve(Session{Phase: Recognizing}, "water", dict, DefaultTiming)
			Expect(s.Matches).To(BeEmpty())
			Expect(s.Status).To(Equal(ingredients.Safe))
			Expect(s.AlertDuration).To(Equal(2500 * time.Millisecond))
		})
	})

	Describe("Expire", func() {
		var (
			start time.Time
			s     Session
		)

		BeforeEach(func() {
			start = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
			s, _ = Resolve(Session{Phase: Recognizing, Frame: image.NewRGBA(image.Rect(0, 0, 1, 1))}, "msg", dict, DefaultTiming)
			s, _ = BeginAlert(s, start)
		})

		It("should keep alerting before the duration has elapsed", func() {
			next, ok := Expire(s, start.Add(4999*time.Millisecond))
			Expect(ok).To(BeFalse())
			Expect(next.Phase).To(Equal(Alerting))
			Expect(next.Remaining(start.Add(4999 * time.Millisecond))).To(Equal(time.Millisecond))
		})

		It("should return to Idle exactly at the duration", func() {
			next, ok := Expire(s, start.Add(5000*time.Millisecond))
			Expect(ok).To(BeTrue())
			Expect(next.Phase).To(Equal(Idle))
			Expect(next.Frame).To(BeNil())
			Expect(next.Matches).To(BeEmpty())
			Expect(next.Text).To(BeEmpty())
		})
	})

	Describe("Timing", func() {
		It("should keep flagged alerts longer than safe ones", func() {
			Expect(DefaultTiming.Flagged).To(BeNumerically(">", DefaultTiming.Safe))
			Expect(DefaultTiming.Validate()).To(Succeed())
		})

		It("should reject a flagged duration that is not longer", func() {
			Expect(Timing{Flagged: time.Second, Safe: time.Second}.Validate()).To(MatchError(ContainSubstring("must be longer")))
		})

		It("should reject a non-positive safe duration", func() {
			Expect(Timing{Flagged: time.Second}.Validate()).To(HaveOccurred())
		})
	})

	Describe("Phase", func() {
		It("should have readable names", func() {
			Expect(Idle.String()).To(Equal("idle"))
			Expect(Alerting.String()).To(Equal("alerting"))
			Expect(Phase(42).String()).To(Equal("phase(42)"))
		})
	})
})

var _ = Describe("Machine", func() {
	var (
		source     *mockSource
		recognizer *mockRecognizer
		idGen      *mockIDGenerator
		timeSrc    *mockTimeSource
		machine    *Machine
	)

	// tickUntil ticks the machine until it leaves Recognizing
	tickUntil := func(phase Phase) {
		Eventually(func() Phase {
			return machine.Tick().Phase
		}).Should(Equal(phase))
	}

	BeforeEach(func() {
		source = &mockSource{frame: image.NewRGBA(image.Rect(0, 0, 4, 4))}
		recognizer = &mockRecognizer{text: "Ingredients: MSG, Trans Fat"}
		idGen = &mockIDGenerator{}
		timeSrc = &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		machine = NewMachineWithDeps(source, recognizer, ingredients.Default(), DefaultTiming, idGen, timeSrc)
	})

	It("should start Idle", func() {
		Expect(machine.Session().Phase).To(Equal(Idle))
		Expect(machine.Tick().Phase).To(Equal(Idle))
	})

	Describe("Trigger", func() {
		var accepted bool

		BeforeEach(func() {
			recognizer.release = make(chan struct{})
		})

		AfterEach(func() {
			close(recognizer.release)
		})

		JustBeforeEach(func() {
			accepted = machine.Trigger(context.Background())
		})

		It("should accept the scan", func() {
			Expect(accepted).To(BeTrue())
		})

		It("should snapshot the frame and start recognizing", func() {
			s := machine.Session()
			Expect(s.Phase).To(Equal(Recognizing))
			Expect(s.ID).To(Equal("scan-1"))
			Expect(s.Frame).NotTo(BeNil())
			Expect(source.snapshots).To(Equal(1))
			Eventually(recognizer.Calls).Should(Equal(1))
		})

		It("should keep recognizing across ticks until OCR finishes", func() {
			Consistently(func() Phase {
				return machine.Tick().Phase
			}, "50ms", "5ms").Should(Equal(Recognizing))
		})

		When("triggered again while recognizing", func() {
			It("should ignore the second trigger", func() {
				before := machine.Session()
				Expect(machine.Trigger(context.Background())).To(BeFalse())
				Expect(machine.Session()).To(Equal(before))
				Expect(source.snapshots).To(Equal(1))
			})
		})
	})

	When("the caller's context is canceled after triggering", func() {
		BeforeEach(func() {
			ctx, cancel := context.WithCancel(context.Background())
			machine.Trigger(ctx)
			cancel()
			tickUntil(Alerting)
		})

		It("should still run recognition to completion", func() {
			Expect(recognizer.CtxErr()).NotTo(HaveOccurred())
			Expect(machine.Session().Status).To(Equal(ingredients.Flagged))
		})
	})

	When("OCR finds inflammatory ingredients", func() {
		BeforeEach(func() {
			machine.Trigger(context.Background())
			tickUntil(Alerting)
		})

		It("should flag the label", func() {
			s := machine.Session()
			Expect(s.Status).To(Equal(ingredients.Flagged))
			Expect(s.Matches).To(HaveLen(2))
			Expect(s.Matches[0].Phrase).To(Equal("trans fat"))
			Expect(s.Matches[1].Phrase).To(Equal("msg"))
		})

		It("should store the lowercased text", func() {
			Expect(machine.Session().Text).To(Equal("ingredients: msg, trans fat"))
		})

		It("should start the long alert now", func() {
			s := machine.Session()
			Expect(s.AlertStartedAt).To(Equal(timeSrc.now))
			Expect(s.AlertDuration).To(Equal(5 * time.Second))
		})

		It("should ignore triggers while alerting", func() {
			Expect(machine.Trigger(context.Background())).To(BeFalse())
			Expect(machine.Session().Phase).To(Equal(Alerting))
		})

		It("should not dismiss the alert early", func() {
			timeSrc.Advance(4999 * time.Millisecond)
			Expect(machine.Tick().Phase).To(Equal(Alerting))
		})

		It("should return to Idle once the duration has elapsed", func() {
			timeSrc.Advance(5 * time.Second)
			s := machine.Tick()
			Expect(s.Phase).To(Equal(Idle))
			Expect(s.Frame).To(BeNil())
			Expect(s.Matches).To(BeEmpty())
		})

		It("should dismiss late when ticks are sparse", func() {
			timeSrc.Advance(time.Minute)
			Expect(machine.Tick().Phase).To(Equal(Idle))
		})

		It("should accept a new scan after returning to Idle", func() {
			timeSrc.Advance(5 * time.Second)
			machine.Tick()
			Expect(machine.Trigger(context.Background())).To(BeTrue())
			Expect(machine.Session().ID).To(Equal("scan-2"))
		})
	})

	When("OCR finds nothing of concern", func() {
		BeforeEach(func() {
			recognizer.text = "Water, Salt"
			machine.Trigger(context.Background())
			tickUntil(Alerting)
		})

		It("should mark the label safe with the short alert", func() {
			s := machine.Session()
			Expect(s.Status).To(Equal(ingredients.Safe))
			Expect(s.Matches).To(BeEmpty())
			Expect(s.AlertDuration).To(Equal(2500 * time.Millisecond))
		})

		It("should return to Idle after the short duration", func() {
			timeSrc.Advance(2500 * time.Millisecond)
			Expect(machine.Tick().Phase).To(Equal(Idle))
		})
	})

	When("OCR fails", func() {
		var setupErr error

		BeforeEach(func() {
			setupErr = errors.New("model unavailable")
			recognizer.err = setupErr
			machine.Trigger(context.Background())
			tickUntil(Idle)
		})

		It("should release the captured state", func() {
			s := machine.Session()
			Expect(s.Frame).To(BeNil())
			Expect(s.Matches).To(BeEmpty())
			Expect(s.Text).To(BeEmpty())
		})

		It("should record an OCR error", func() {
			var ocrErr *scanning.OCRError
			Expect(errors.As(machine.LastError(), &ocrErr)).To(BeTrue())
			Expect(ocrErr.Engine).To(Equal("mock"))
			Expect(machine.LastError()).To(MatchError(setupErr))
		})

		It("should allow a fresh scan", func() {
			recognizer.err = nil
			Expect(machine.Trigger(context.Background())).To(BeTrue())
			Expect(machine.LastError()).NotTo(HaveOccurred())
		})
	})

	When("OCR returns blank text", func() {
		BeforeEach(func() {
			recognizer.text = "  \n "
			machine.Trigger(context.Background())
			tickUntil(Idle)
		})

		It("should abort with ErrNoText", func() {
			Expect(machine.LastError()).To(MatchError(scanning.ErrNoText))
		})
	})

	When("the source has no frame", func() {
		BeforeEach(func() {
			source.snapshotErr = capture.ErrNoFrame
		})

		It("should abort straight back to Idle", func() {
			Expect(machine.Trigger(context.Background())).To(BeTrue())
			Expect(machine.Session().Phase).To(Equal(Idle))
			Expect(machine.LastError()).To(MatchError(capture.ErrNoFrame))
			Expect(recognizer.Calls()).To(Equal(0))
		})
	})
})
