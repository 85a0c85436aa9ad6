package scanning

import (
	"context"
	"errors"
	"image"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubRecognizer struct {
	calls  int
	text   string
	err    error
	closed bool
}

func (s *stubRecognizer) Name() string { return "stub" }

func (s *stubRecognizer) Recognize(ctx context.Context, frame image.Image) (string, error) {
	s.calls++
	return s.text, s.err
}

func (s *stubRecognizer) Close() error {
	s.closed = true
	return nil
}

var _ = Describe("Throttled", func() {
	var (
		next      *stubRecognizer
		throttled *Throttled
		frame     image.Image
	)

	BeforeEach(func() {
		next = &stubRecognizer{text: "sugar"}
		throttled = NewThrottled(next, 0.001, 1)
		frame = image.NewRGBA(image.Rect(0, 0, 1, 1))
	})

	It("should delegate within the burst", func() {
		text, err := throttled.Recognize(context.Background(), frame)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("sugar"))
		Expect(next.calls).To(Equal(1))
	})

	It("should return an error when the wait cannot be satisfied", func() {
		_, err := throttled.Recognize(context.Background(), frame)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = throttled.Recognize(ctx, frame)
		Expect(err).To(MatchError(ContainSubstring("waiting for rate limit")))
		Expect(next.calls).To(Equal(1))
	})

	It("should pass through engine errors", func() {
		setupErr := errors.New("engine down")
		next.err = setupErr
		_, err := throttled.Recognize(context.Background(), frame)
		Expect(err).To(MatchError(setupErr))
	})

	It("should report the wrapped name and close it", func() {
		Expect(throttled.Name()).To(Equal("stub"))
		Expect(throttled.Close()).To(Succeed())
		Expect(next.closed).To(BeTrue())
	})
})

var _ = Describe("OCRError", func() {
	It("should unwrap to the engine error", func() {
		err := &OCRError{Engine: "gemini", Err: ErrNoText}
		Expect(err).To(MatchError(ErrNoText))
		Expect(err.Error()).To(Equal("gemini ocr: no text recognized"))
	})
})

var _ = Describe("EncodePNG", func() {
	It("should produce PNG bytes", func() {
		data, err := EncodePNG(image.NewRGBA(image.Rect(0, 0, 2, 2)))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data[1:4])).To(Equal("PNG"))
	})
})
