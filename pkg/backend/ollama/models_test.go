package ollama_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/backend/ollama"
	"github.com/papercomputeco/canvas/pkg/dispatch"
)

var _ = Describe("Ollama Models", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
		b       *ollama.Backend
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodGet))
			Expect(r.URL.Path).To(Equal("/api/tags"))
			handler(w, r)
		}))
		b = ollama.New(dispatch.New(dispatch.Config{BaseURL: server.URL, NoPrefix: true}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("lists the pulled models", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"models":[{"name":"llama3:latest"},{"name":"phi3"}]}`)
		}

		models, err := b.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(Equal([]string{"llama3:latest", "phi3"}))
	})

	It("falls back when nothing is pulled", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"models":[]}`)
		}

		models, err := b.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(Equal(ollama.FallbackModels))
	})

	It("falls back when the server fails", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}

		models, err := b.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(Equal(ollama.FallbackModels))
	})

	It("falls back without a transport", func() {
		models, err := ollama.New(nil).Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(Equal(ollama.FallbackModels))

		models[0] = "mutated"
		Expect(ollama.FallbackModels[0]).To(Equal("llama3"))
	})
})
