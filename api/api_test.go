package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/canvas/api"
	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/graph"
	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/storage/inmemory"
)

var _ = Describe("Server", func() {
	var (
		ctx      context.Context
		store    *inmemory.Driver
		streamer *fakeBackend
		batcher  *fakeBackend
		nodes    []graph.Node
		server   *api.Server
	)

	build := func() {
		g, err := graph.New(nodes)
		Expect(err).NotTo(HaveOccurred())
		server, err = api.NewServer(api.Config{ListenAddr: ":0"}, api.Dependencies{
			Graph:    g,
			Store:    store,
			Registry: backend.NewRegistry(streamer, batcher),
			Metrics:  prometheus.NewRegistry(),
		}, nil)
		Expect(err).NotTo(HaveOccurred())
	}

	do := func(method, path string, body any) (*http.Response, []byte) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}
		req := httptest.NewRequest(method, path, reader)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.App().Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, raw
	}

	envelope := func(raw []byte) llm.Envelope {
		var env llm.Envelope
		Expect(json.Unmarshal(raw, &env)).To(Succeed())
		return env
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		streamer = &fakeBackend{name: backend.Ollama, streaming: true, chunks: []string{"Hel", "lo"}}
		batcher = &fakeBackend{name: backend.Groq, chunks: []string{"batch reply"}}
		nodes = []graph.Node{
			{ID: "a", Name: "Alpha", Backend: backend.Groq, Model: "m"},
			{ID: "b", Backend: backend.Ollama, Model: "m", Parents: []string{"a"}},
		}
	})

	It("requires its collaborators", func() {
		_, err := api.NewServer(api.Config{}, api.Dependencies{}, nil)
		Expect(err).To(HaveOccurred())
	})

	It("answers ping", func() {
		build()
		resp, raw := do(http.MethodGet, "/api/ping", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(raw)).To(Equal(`"pong"`))
	})

	Describe("POST /api/node/chat", func() {
		It("streams data events and stores both sides of the exchange", func() {
			build()
			resp, raw := do(http.MethodPost, "/api/node/chat", chatPayload("b", backend.Ollama, true))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(string(raw)).To(Equal("data: Hel\n\ndata: lo\n\n"))

			msgs, err := store.Messages(ctx, "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(Equal([]llm.Message{
				{Role: llm.RoleUser, Content: "hello"},
				{Role: llm.RoleAssistant, Content: "Hello"},
			}))
		})

		It("builds the upstream messages from the payload", func() {
			build()
			do(http.MethodPost, "/api/node/chat", chatPayload("b", backend.Ollama, true))

			req := streamer.lastRequest()
			Expect(req.Temperature).To(Equal(0.2))
			Expect(req.MaxTokens).To(Equal(64))
			Expect(req.Messages).To(Equal([]llm.Message{
				{Role: llm.RoleSystem, Content: "be brief\n\nContext from parent node p: parent says\n\n"},
				{Role: llm.RoleUser, Content: "hello"},
			}))
		})

		It("ends a failed stream with an error event", func() {
			streamer.err = errors.New("model offline")
			build()

			_, raw := do(http.MethodPost, "/api/node/chat", chatPayload("b", backend.Ollama, true))
			Expect(string(raw)).To(Equal(`data: {"error":"Error streaming from ollama: model offline"}` + "\n\n"))
		})

		It("returns the backend's reply body for batch chats", func() {
			build()
			resp, raw := do(http.MethodPost, "/api/node/chat", chatPayload("a", backend.Groq, false))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(raw).To(MatchJSON(`{"model":"m","reply":"batch reply"}`))
		})

		It("returns JSON for a streaming backend when no stream was asked for", func() {
			build()
			resp, raw := do(http.MethodPost, "/api/node/chat", chatPayload("b", backend.Ollama, false))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(raw).To(MatchJSON(`{"model":"m","reply":"Hello"}`))
		})

		It("applies default generation settings", func() {
			build()
			do(http.MethodPost, "/api/node/chat", map[string]any{
				"node_id": "a", "backend": backend.Groq, "model": "m", "user_input": "hi",
			})
			req := batcher.lastRequest()
			Expect(req.Temperature).To(Equal(llm.DefaultTemperature))
			Expect(req.MaxTokens).To(Equal(llm.DefaultMaxTokens))
		})

		It("rejects unsupported backends", func() {
			build()
			resp, raw := do(http.MethodPost, "/api/node/chat", chatPayload("a", "mystery", false))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(raw).To(MatchJSON(`{"error":"Unsupported backend: mystery"}`))
		})

		It("reports upstream failures as errors", func() {
			batcher.err = errors.New("rate limited")
			build()
			resp, raw := do(http.MethodPost, "/api/node/chat", chatPayload("a", backend.Groq, false))
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(raw).To(MatchJSON(`{"error":"rate limited"}`))
		})
	})

	Describe("execution routes", func() {
		It("executes the workflow", func() {
			build()
			resp, raw := do(http.MethodPost, "/api/execute", map[string]any{})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(raw).To(MatchJSON(`{"status":"success","data":{
				"execution_order":["a","b"],
				"results":{"a":"batch reply","b":"Hello"}
			}}`))
		})

		It("executes a single node", func() {
			build()
			_, raw := do(http.MethodPost, "/api/nodes/a/execute", map[string]any{})
			Expect(raw).To(MatchJSON(`{"status":"success","data":{"execution_order":["a"],"results":{"a":"batch reply"}}}`))

			resp, _ := do(http.MethodPost, "/api/nodes/zzz/execute", map[string]any{})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("stores single node runs under the executed node", func() {
			nodes = []graph.Node{
				{ID: "alpha", Backend: backend.Groq, Model: "m"},
				{ID: "bravo", Backend: backend.Groq, Model: "m"},
			}
			build()
			do(http.MethodPost, "/api/nodes/alpha/execute", map[string]any{})
			do(http.MethodPost, "/api/nodes/bravo/execute", map[string]any{})

			ids, err := store.NodeIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"alpha", "bravo"}))
		})

		It("executes a path", func() {
			build()
			_, raw := do(http.MethodPost, "/api/execute/path", map[string]any{"target_node_id": "a"})
			Expect(raw).To(MatchJSON(`{"status":"success","data":{"execution_order":["a"],"results":{"a":"batch reply"}}}`))

			resp, raw := do(http.MethodPost, "/api/execute/path", map[string]any{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(envelope(raw).Message).To(Equal("target_node_id is required"))
		})

		It("rejects cyclic graphs", func() {
			nodes[0].Parents = []string{"b"}
			build()

			resp, raw := do(http.MethodPost, "/api/execute", map[string]any{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(envelope(raw).Message).To(Equal(graph.ErrCycle.Error()))

			resp, raw = do(http.MethodGet, "/api/graph/validate", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			env := envelope(raw)
			Expect(env.Status).To(Equal(llm.StatusError))
			Expect(env.Data).To(HaveKeyWithValue("is_valid", false))
		})

		It("reports a valid graph", func() {
			build()
			_, raw := do(http.MethodGet, "/api/graph/validate", nil)
			Expect(raw).To(MatchJSON(`{"status":"success","data":{"is_valid":true,"message":"Graph is valid for execution"}}`))
		})

		It("returns the execution order with node summaries", func() {
			build()
			_, raw := do(http.MethodGet, "/api/execution-order", nil)
			Expect(raw).To(MatchJSON(`{"status":"success","data":{
				"execution_order":["a","b"],
				"nodes":[
					{"id":"a","name":"Alpha","backend":"groq","model":"m"},
					{"id":"b","name":"b","backend":"ollama","model":"m"}
				]
			}}`))
		})
	})

	Describe("conversation routes", func() {
		It("saves, loads, lists and deletes", func() {
			build()
			resp, _ := do(http.MethodGet, "/api/conversations/a", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			resp, _ = do(http.MethodPost, "/api/conversations/a", llm.Conversation{
				NodeID:   "a",
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "saved"}},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			_, raw := do(http.MethodGet, "/api/conversations/a", nil)
			Expect(raw).To(MatchJSON(`{"status":"success","data":{"node_id":"a","messages":[{"role":"user","content":"saved"}]}}`))

			_, raw = do(http.MethodGet, "/api/conversations", nil)
			Expect(raw).To(MatchJSON(`{"status":"success","data":["a"]}`))

			resp, _ = do(http.MethodDelete, "/api/conversations/a", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp, _ = do(http.MethodGet, "/api/conversations/a", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("keeps each saved node under its own key", func() {
			build()
			for _, id := range []string{"alpha", "bravo", "charl"} {
				resp, _ := do(http.MethodPost, "/api/conversations/"+id, llm.Conversation{
					Messages: []llm.Message{{Role: llm.RoleUser, Content: "from " + id}},
				})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			}

			ids, err := store.NodeIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"alpha", "bravo", "charl"}))

			_, raw := do(http.MethodGet, "/api/conversations", nil)
			Expect(raw).To(MatchJSON(`{"status":"success","data":["alpha","bravo","charl"]}`))

			for _, id := range []string{"alpha", "bravo", "charl"} {
				_, raw := do(http.MethodGet, "/api/conversations/"+id, nil)
				Expect(raw).To(MatchJSON(`{"status":"success","data":{"node_id":"` + id +
					`","messages":[{"role":"user","content":"from ` + id + `"}]}}`))
			}
		})

		It("rejects invalid roles and mismatched node IDs", func() {
			build()
			resp, _ := do(http.MethodPost, "/api/conversations/a", llm.Conversation{
				Messages: []llm.Message{{Role: "robot", Content: "x"}},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			resp, _ = do(http.MethodPost, "/api/conversations/a", llm.Conversation{NodeID: "b"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("model routes", func() {
		It("lists models by backend kind", func() {
			streamer.models = []string{"llama3"}
			batcher.models = []string{"gemma2-9b-it", "llama3-8b-8192"}
			build()

			resp, raw := do(http.MethodGet, "/api/models", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(raw).To(MatchJSON(`{"ollama":["llama3"],"groq":["gemma2-9b-it","llama3-8b-8192"]}`))
		})

		It("reports a failing backend", func() {
			batcher.modelsErr = errors.New("catalogue down")
			build()

			resp, raw := do(http.MethodGet, "/api/models", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(envelope(raw).Message).To(ContainSubstring("catalogue down"))
		})

		It("returns the groq limit table", func() {
			limited := &limitedBackend{fakeBackend: batcher, limits: map[string]backend.ModelLimits{
				"qwen-2.5-32b": {RequestsPerMinute: 30, RequestsPerDay: 1000, TokensPerMinute: 6000, TokensPerDay: backend.NoLimit},
			}}
			g, err := graph.New(nodes)
			Expect(err).NotTo(HaveOccurred())
			server, err = api.NewServer(api.Config{}, api.Dependencies{
				Graph:    g,
				Store:    store,
				Registry: backend.NewRegistry(streamer, limited),
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			_, raw := do(http.MethodGet, "/api/groq/model-limits", nil)
			Expect(raw).To(MatchJSON(`{"qwen-2.5-32b":{"req_per_min":30,"req_per_day":1000,"tokens_per_min":6000,"tokens_per_day":"No limit"}}`))
		})

		It("answers 404 when groq has no limit table", func() {
			build()
			resp, _ := do(http.MethodGet, "/api/groq/model-limits", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	It("serves metrics", func() {
		build()
		do(http.MethodPost, "/api/node/chat", chatPayload("a", backend.Groq, false))

		_, raw := do(http.MethodGet, "/api/metrics", nil)
		Expect(string(raw)).To(ContainSubstring(`canvas_api_chats_total{backend="groq",outcome="success"} 1`))
	})
})
