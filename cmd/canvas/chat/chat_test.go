package chatcmder

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/dotdir"
	"github.com/papercomputeco/canvas/pkg/graph"
	"github.com/papercomputeco/canvas/pkg/llm"
)

const chatGraph = `
nodes:
  - id: critic
    name: Critic
    backend: groq
    model: llama-3.1-8b-instant
  - id: writer
    backend: ollama
    model: llama3
    parents: [critic]
`

// fakeClient answers chat calls with a Groq shaped body and serves one
// saved conversation.
type fakeClient struct {
	mu       sync.Mutex
	requests []dispatch.Request
}

func (f *fakeClient) Submit(_ context.Context, req dispatch.Request) (*dispatch.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	switch {
	case req.Method == http.MethodGet && strings.HasPrefix(req.Target, "/conversations/"):
		raw := []byte(`{"status":"success","data":{"node_id":"critic","messages":[{"role":"user","content":"from server"}]}}`)
		return &dispatch.Result{StatusCode: http.StatusOK, Raw: raw}, nil
	case strings.HasPrefix(req.Target, "/conversations/"):
		return &dispatch.Result{StatusCode: http.StatusOK}, nil
	default:
		body := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"role": "assistant", "content": "sharp reply"}},
			},
		}
		return &dispatch.Result{StatusCode: http.StatusOK, Body: body}, nil
	}
}

var _ = Describe("chatCommander", func() {
	var (
		ctx    context.Context
		dir    string
		path   string
		out    *bytes.Buffer
		client *fakeClient
		c      *chatCommander
	)

	newCommander := func() *chatCommander {
		fg, err := graph.Load(path, nil)
		Expect(err).NotTo(HaveOccurred())

		cmder := &chatCommander{
			out:     out,
			logger:  zap.NewNop(),
			dotdir:  dotdir.NewManager(),
			dirFlag: dir,
		}
		cmder.setup(fg, client)
		return cmder
	}

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "graph.yaml")
		Expect(os.WriteFile(path, []byte(chatGraph), 0o600)).To(Succeed())

		out = &bytes.Buffer{}
		client = &fakeClient{}
		c = newCommander()
	})

	It("asks for a node before sending", func() {
		c.handleLine(ctx, "hello")
		Expect(out.String()).To(ContainSubstring("no node selected"))
		Expect(client.requests).To(BeEmpty())
	})

	It("switches nodes and lists them", func() {
		Expect(c.handleLine(ctx, "/node critic")).To(BeFalse())
		Expect(out.String()).To(ContainSubstring("Critic"))

		out.Reset()
		c.handleLine(ctx, "/nodes")
		Expect(out.String()).To(MatchRegexp(`\* critic`))
		Expect(out.String()).To(ContainSubstring("ollama/llama3"))
	})

	It("reports unknown nodes", func() {
		c.handleLine(ctx, "/node ghost")
		Expect(out.String()).To(ContainSubstring("ghost"))
		Expect(c.orch.ActiveNode()).To(BeEmpty())
	})

	It("sends to batch nodes and prints the reply", func() {
		c.handleLine(ctx, "/node critic")
		c.handleLine(ctx, "review this")

		Expect(out.String()).To(ContainSubstring("sharp reply"))
		Expect(c.orch.History("critic")).To(Equal([]llm.Message{
			{Role: llm.RoleUser, Content: "review this"},
			{Role: llm.RoleAssistant, Content: "sharp reply"},
		}))
	})

	It("shows failures as system messages", func() {
		// The fake client cannot open streams.
		c.handleLine(ctx, "/node writer")
		c.handleLine(ctx, "draft it")

		Expect(out.String()).To(ContainSubstring("system> "))
		history := c.orch.History("writer")
		Expect(history).To(HaveLen(2))
		Expect(history[1].Role).To(Equal(llm.RoleSystem))
	})

	It("clears, saves and loads the active conversation", func() {
		c.handleLine(ctx, "/node critic")
		c.handleLine(ctx, "review this")

		c.handleLine(ctx, "/save")
		Expect(out.String()).To(ContainSubstring("saved critic"))

		c.handleLine(ctx, "/clear")
		Expect(c.orch.History("critic")).To(BeEmpty())

		c.handleLine(ctx, "/load")
		Expect(c.orch.History("critic")).To(Equal([]llm.Message{{Role: llm.RoleUser, Content: "from server"}}))
	})

	It("quits on /exit", func() {
		Expect(c.handleLine(ctx, "/exit")).To(BeTrue())
		Expect(c.handleLine(ctx, "/bogus")).To(BeFalse())
		Expect(out.String()).To(ContainSubstring("unknown command /bogus"))
	})

	It("restores a saved session", func() {
		state := &dotdir.SessionState{
			ActiveNode: "critic",
			Conversations: map[string][]llm.Message{
				"critic": {{Role: llm.RoleUser, Content: "earlier"}},
			},
		}
		Expect(dotdir.NewManager().SaveSession(state, dir)).To(Succeed())

		Expect(c.restore(ctx)).To(Succeed())
		Expect(c.orch.ActiveNode()).To(Equal("critic"))
		Expect(c.orch.History("critic")).To(HaveLen(1))
	})

	It("ignores the saved session when fresh", func() {
		state := &dotdir.SessionState{ActiveNode: "critic", Conversations: map[string][]llm.Message{}}
		Expect(dotdir.NewManager().SaveSession(state, dir)).To(Succeed())

		c.fresh = true
		c.node = "writer"
		Expect(c.restore(ctx)).To(Succeed())
		Expect(c.orch.ActiveNode()).To(Equal("writer"))
	})

	It("clears every conversation when the graph file empties", func() {
		c.handleLine(ctx, "/node critic")
		c.handleLine(ctx, "review this")

		Expect(os.WriteFile(path, []byte("nodes: []\n"), 0o600)).To(Succeed())
		Expect(c.graph.Reload()).To(Succeed())

		Expect(c.orch.ActiveNode()).To(BeEmpty())
		Expect(c.orch.History("critic")).To(BeEmpty())
		Expect(out.String()).To(ContainSubstring("all conversations were cleared"))
	})
})
