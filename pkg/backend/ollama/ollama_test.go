package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/backend/ollama"
	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/llm"
)

var _ = Describe("Ollama Backend", func() {
	var b *ollama.Backend

	BeforeEach(func() {
		b = ollama.New(nil)
	})

	It("is a streaming backend named ollama", func() {
		Expect(b.Name()).To(Equal(backend.Ollama))
		Expect(b.Streaming()).To(BeTrue())
	})

	It("builds reply bodies its own extraction accepts", func() {
		raw, err := json.Marshal(b.ReplyBody("m", "round trip"))
		Expect(err).NotTo(HaveOccurred())

		var body any
		Expect(json.Unmarshal(raw, &body)).To(Succeed())
		reply, err := b.ExtractReply(body)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(Equal("round trip"))
	})

	Describe("ExtractReply", func() {
		It("returns the message content", func() {
			reply, err := b.ExtractReply(map[string]any{
				"message": map[string]any{"role": "assistant", "content": "hi there"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("hi there"))
		})

		It("uses the error field as the failure reason", func() {
			_, err := b.ExtractReply(map[string]any{"error": "model not found"})
			Expect(err).To(MatchError("model not found"))

			var fe *backend.FormatError
			Expect(errors.As(err, &fe)).To(BeFalse())
		})

		It("reports a generic no-response failure otherwise", func() {
			for _, body := range []any{map[string]any{}, nil, "text", map[string]any{"message": "flat"}} {
				_, err := b.ExtractReply(body)
				var fe *backend.FormatError
				Expect(errors.As(err, &fe)).To(BeTrue())
				Expect(fe.Error()).To(Equal(ollama.NoResponseText))
			}
		})
	})

	Describe("upstream", func() {
		var (
			server   *httptest.Server
			received map[string]any
			handler  http.HandlerFunc
		)

		BeforeEach(func() {
			received = nil
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/chat"))
				body, _ := io.ReadAll(r.Body)
				Expect(json.Unmarshal(body, &received)).To(Succeed())
				handler(w, r)
			}))
			d := dispatch.New(dispatch.Config{BaseURL: server.URL, NoPrefix: true})
			b = ollama.New(d)
		})

		AfterEach(func() {
			server.Close()
		})

		req := backend.ChatRequest{
			Model:       "llama3",
			Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")},
			Temperature: 0.2,
			MaxTokens:   64,
		}

		It("sends options and accumulates a non-streaming reply", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/x-ndjson")
				_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"Hel"}}`+"\n"+`{"message":{"role":"assistant","content":"lo"},"done":true}`)
			}

			reply, err := b.Chat(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("Hello"))
			Expect(received["stream"]).To(BeFalse())
			Expect(received["options"]).To(Equal(map[string]any{"temperature": 0.2, "num_predict": 64.0}))
		})

		It("streams content fragments until done", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/x-ndjson")
				for _, line := range []string{
					`{"message":{"content":"One "}}`,
					`not json`,
					`{"message":{"content":""}}`,
					`{"message":{"content":"two"}}`,
					`{"message":{"content":""},"done":true}`,
				} {
					_, _ = io.WriteString(w, line+"\n")
					w.(http.Flusher).Flush()
				}
			}

			var chunks []string
			full, err := b.ChatStream(context.Background(), req, func(c string) error {
				chunks = append(chunks, c)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(received["stream"]).To(BeTrue())
			Expect(chunks).To(Equal([]string{"One ", "two"}))
			Expect(full).To(Equal("One two"))
		})

		It("surfaces upstream status failures", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"error":"model 'llama3' not found"}`)
			}

			_, err := b.Chat(context.Background(), req)
			Expect(err).To(MatchError(ContainSubstring("status code 404")))
			Expect(err).To(MatchError(ContainSubstring("not found")))
		})
	})

	It("refuses upstream calls without a transport", func() {
		_, err := b.Chat(context.Background(), backend.ChatRequest{})
		Expect(err).To(MatchError(backend.ErrNoUpstream))
	})
})
