package scanning

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		engine *Ollama
		frame  image.Image
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		engine, err = NewOllama(server.URL()+"/", "qwen2-vl:7b")
		Expect(err).NotTo(HaveOccurred())
		frame = image.NewRGBA(image.Rect(0, 0, 4, 4))
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = engine.Recognize(context.Background(), frame)
	})

	When("the model replies with a transcript", func() {
		var captured ollamaChatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, _ := io.ReadAll(r.Body)
					Expect(json.Unmarshal(body, &captured)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: "```json\n{\"text\": \"Contains MSG\"}\n```"},
					Done:    true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the transcript in its original case", func() {
			Expect(text).To(Equal("Contains MSG"))
		})

		It("should send the configured model without streaming", func() {
			Expect(captured.Model).To(Equal("qwen2-vl:7b"))
			Expect(captured.Stream).To(BeFalse())
		})

		It("should attach the frame to the user message", func() {
			Expect(captured.Messages).To(HaveLen(2))
			Expect(captured.Messages[1].Images).To(HaveLen(1))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
		})
	})

	When("the reply is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Content: "I cannot read this image"},
			}))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("parsing label text")))
		})
	})

	Describe("NewOllama defaults", func() {
		It("should fill in the base URL and model", func() {
			o, err := NewOllama("", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(o.baseURL).To(Equal("http://localhost:11434"))
			Expect(o.model).To(Equal("llava"))
			Expect(o.Name()).To(Equal("ollama"))
		})
	})
})
