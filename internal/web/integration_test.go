package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/label-scanner/internal/capture"
	"github.com/zombor/label-scanner/internal/ingredients"
	"github.com/zombor/label-scanner/internal/loop"
	"github.com/zombor/label-scanner/internal/present"
	"github.com/zombor/label-scanner/internal/session"
	"github.com/zombor/label-scanner/internal/speech"
	"github.com/zombor/label-scanner/internal/web"
)

// fixedRecognizer returns the same transcript for every frame
type fixedRecognizer struct {
	text string
}

func (f *fixedRecognizer) Name() string { return "fixed" }

func (f *fixedRecognizer) Recognize(ctx context.Context, frame image.Image) (string, error) {
	return f.text, nil
}

func (f *fixedRecognizer) Close() error { return nil }

var _ = Describe("Integration", func() {
	var (
		ghServer  *ghttp.Server
		broadcast *speech.Broadcast
		cancel    context.CancelFunc
		done      chan error
	)

	get := func(path string) *http.Response {
		resp, err := http.Get(ghServer.URL() + path)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		source := capture.NewLatest()
		dict := ingredients.Default()
		broadcast = speech.NewBroadcast(8)

		machine := session.NewMachine(source, &fixedRecognizer{text: "INGREDIENTS: WATER, High Fructose Corn Syrup, MSG"}, dict, session.DefaultTiming)
		scanLoop := loop.New(machine, present.NewPresenter(speech.Multi{broadcast, speech.Log{}}), source, session.SystemTime(), loop.Config{Width: 160, Height: 120, FPS: 50})

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() {
			done <- scanLoop.Run(ctx)
		}()

		server := web.NewServer(scanLoop, source, broadcast, dict, web.BasicAuth{})
		ghServer = ghttp.NewServer()
		ghServer.RouteToHandler("GET", regexp.MustCompile(`.*`), server.ServeHTTP)
		ghServer.RouteToHandler("POST", regexp.MustCompile(`.*`), server.ServeHTTP)
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive())
		ghServer.Close()
	})

	It("should upload a frame, scan it and announce the flagged ingredients", func() {
		// --- Step 1: upload a webcam frame ---
		var buf bytes.Buffer
		Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 320, 240)))).To(Succeed())
		resp, err := http.Post(ghServer.URL()+"/api/frames", "image/png", &buf)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

		// --- Step 2: request a scan ---
		resp, err = http.Post(ghServer.URL()+"/api/scan", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

		// --- Step 3: wait for the alert ---
		var view struct {
			Phase   string                  `json:"phase"`
			Status  string                  `json:"status"`
			Matches ingredients.MatchResult `json:"matches"`
		}
		Eventually(func() string {
			resp := get("/api/session")
			defer resp.Body.Close()
			Expect(json.NewDecoder(resp.Body).Decode(&view)).To(Succeed())
			return view.Phase
		}, "2s", "20ms").Should(Equal("alerting"))

		Expect(view.Status).To(Equal("flagged"))
		Expect(view.Matches).To(HaveLen(2))
		Expect(view.Matches[0].Phrase).To(Equal("high fructose corn syrup"))
		Expect(view.Matches[1].Phrase).To(Equal("msg"))

		// --- Step 4: the summary is spoken once ---
		resp = get("/api/utterances?since=0")
		var utterances []speech.Utterance
		Expect(json.NewDecoder(resp.Body).Decode(&utterances)).To(Succeed())
		resp.Body.Close()
		Expect(utterances).To(HaveLen(1))
		Expect(utterances[0].Text).To(HavePrefix("Warning: Inflammatory ingredients detected."))

		// --- Step 5: the rendered frame is served ---
		resp = get("/api/frame.png")
		img, err := png.Decode(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds()).To(Equal(image.Rect(0, 0, 160, 120)))

		// --- Step 6: a second scan is refused while alerting ---
		resp, err = http.Post(ghServer.URL()+"/api/scan", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))
	})
})
