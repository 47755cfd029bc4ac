package stream_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/eventbus/memory"
	"github.com/papercomputeco/canvas/pkg/stream"
)

// fragmentOpener serves a fixed body split into the given fragments, one per
// Read call, so tests control exactly where reads break.
type fragmentOpener struct {
	fragments [][]byte
	readErr   error
	openErr   error
}

func (f *fragmentOpener) Open(_ context.Context, _ dispatch.Request) (*http.Response, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(&fragmentReader{fragments: f.fragments, err: f.readErr}),
	}, nil
}

type fragmentReader struct {
	fragments [][]byte
	err       error
}

func (r *fragmentReader) Read(p []byte) (int, error) {
	if len(r.fragments) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.fragments[0])
	r.fragments[0] = r.fragments[0][n:]
	if len(r.fragments[0]) == 0 {
		r.fragments = r.fragments[1:]
	}
	return n, nil
}

func fragments(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

var _ = Describe("Reader", func() {
	var (
		ctx      context.Context
		events   *memory.Publisher
		chunks   []string
		complete []string
		failures []error
		handlers stream.Handlers
	)

	BeforeEach(func() {
		ctx = context.Background()
		events = memory.NewPublisher(memory.WithRecording())
		chunks, complete, failures = nil, nil, nil
		handlers = stream.Handlers{
			OnChunk:    func(c string) error { chunks = append(chunks, c); return nil },
			OnComplete: func(full string) { complete = append(complete, full) },
			OnError:    func(err error) { failures = append(failures, err) },
		}
	})

	It("delivers data chunks in order and concatenates them without separators", func() {
		opener := &fragmentOpener{fragments: fragments("data: Hello\n", "data: World\n")}
		r := stream.NewReader(opener, events, nil)

		full, err := r.Consume(ctx, "/node/chat", nil, handlers)
		Expect(err).NotTo(HaveOccurred())
		Expect(full).To(Equal("HelloWorld"))
		Expect(chunks).To(Equal([]string{"Hello", "World"}))
		Expect(complete).To(Equal([]string{"HelloWorld"}))
		Expect(failures).To(BeEmpty())
		Expect(events.Names()).To(Equal([]string{eventbus.StreamStart, eventbus.StreamComplete}))
	})

	It("ignores lines without the data prefix", func() {
		opener := &fragmentOpener{fragments: fragments(": keep-alive\nevent: token\ndata: A\n\nid: 3\ndata:B\ndata: C\n")}
		r := stream.NewReader(opener, events, nil)

		full, err := r.Consume(ctx, "/node/chat", nil, handlers)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(Equal([]string{"A", "C"}))
		Expect(full).To(Equal("AC"))
	})

	It("reassembles lines and runes split across reads", func() {
		body := "data: naïve ☕\ndata: done"
		cut := strings.Index(body, "☕") + 2
		opener := &fragmentOpener{fragments: fragments(body[:7], body[7:cut], body[cut:])}
		r := stream.NewReader(opener, events, nil)

		full, err := r.Consume(ctx, "/node/chat", nil, handlers)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(Equal([]string{"naïve ☕", "done"}))
		Expect(full).To(Equal("naïve ☕done"))
	})

	It("keeps streaming when the chunk handler fails or panics", func() {
		opener := &fragmentOpener{fragments: fragments("data: a\ndata: b\ndata: c\n")}
		r := stream.NewReader(opener, events, nil)

		var seen []string
		handlers.OnChunk = func(c string) error {
			seen = append(seen, c)
			switch c {
			case "a":
				panic("boom")
			case "b":
				return errors.New("render failed")
			}
			return nil
		}

		full, err := r.Consume(ctx, "/node/chat", nil, handlers)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal([]string{"a", "b", "c"}))
		Expect(full).To(Equal("abc"))
	})

	It("discards partial content and reports read failures", func() {
		opener := &fragmentOpener{
			fragments: fragments("data: partial\n"),
			readErr:   errors.New("connection reset"),
		}
		r := stream.NewReader(opener, events, nil)

		full, err := r.Consume(ctx, "/node/chat", nil, handlers)
		Expect(err).To(MatchError(ContainSubstring("connection reset")))
		Expect(full).To(BeEmpty())
		Expect(complete).To(BeEmpty())
		Expect(failures).To(HaveLen(1))

		var de *dispatch.Error
		Expect(errors.As(failures[0], &de)).To(BeTrue())
		Expect(de.Kind).To(Equal(dispatch.KindNetwork))
		Expect(de.Target).To(Equal("/node/chat"))
		Expect(events.Names()).To(Equal([]string{eventbus.StreamStart, eventbus.StreamError}))
	})

	It("reports dispatch failures without completing", func() {
		opener := &fragmentOpener{openErr: &dispatch.Error{Kind: dispatch.KindStreamCapability}}
		r := stream.NewReader(opener, events, nil)

		_, err := r.Consume(ctx, "/node/chat", nil, handlers)
		var de *dispatch.Error
		Expect(errors.As(err, &de)).To(BeTrue())
		Expect(de.Kind).To(Equal(dispatch.KindStreamCapability))
		Expect(complete).To(BeEmpty())
		Expect(failures).To(HaveLen(1))
	})

	It("streams through a real dispatcher", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/node/chat"))
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for _, token := range []string{"Hel", "lo"} {
				_, _ = io.WriteString(w, "data: "+token+"\n\n")
				flusher.Flush()
			}
		}))
		defer server.Close()

		d := dispatch.New(dispatch.Config{BaseURL: server.URL, MaxConcurrent: 1, Publisher: events})
		r := stream.NewReader(d, events, nil)

		full, err := r.Consume(ctx, "/node/chat", map[string]any{"stream": true}, handlers)
		Expect(err).NotTo(HaveOccurred())
		Expect(full).To(Equal("Hello"))
		Expect(d.InFlight()).To(Equal(0))
		Expect(events.Names()).To(Equal([]string{
			eventbus.StreamStart,
			eventbus.RequestStart, eventbus.RequestSuccess, eventbus.RequestEnd,
			eventbus.StreamComplete,
		}))
	})
})
