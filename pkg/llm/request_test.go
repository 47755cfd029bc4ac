package llm_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/llm"
)

var _ = Describe("ChatPayload", func() {
	It("encodes exactly the node chat fields", func() {
		p := llm.ChatPayload{
			NodeID:        "a",
			Backend:       "ollama",
			Model:         "llama3",
			SystemMessage: "be brief",
			UserInput:     "hi",
			Temperature:   0.5,
			MaxTokens:     256,
			Stream:        true,
		}
		p.Normalize()

		data, err := json.Marshal(p)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(data, &got)).To(Succeed())
		Expect(got).To(HaveLen(10))
		Expect(got).To(HaveKeyWithValue("node_id", "a"))
		Expect(got).To(HaveKeyWithValue("backend", "ollama"))
		Expect(got).To(HaveKeyWithValue("system_message", "be brief"))
		Expect(got).To(HaveKeyWithValue("user_input", "hi"))
		Expect(got).To(HaveKeyWithValue("max_tokens", BeNumerically("==", 256)))
		Expect(got).To(HaveKeyWithValue("stream", true))
		Expect(got["parent_contexts"]).To(BeEmpty())
		Expect(got["parent_contexts"]).NotTo(BeNil())
		Expect(got["conversation_history"]).NotTo(BeNil())
	})
})

var _ = Describe("BuildUpstreamMessages", func() {
	It("folds parent contexts into the system message", func() {
		msgs := llm.BuildUpstreamMessages("sys", []llm.ParentContext{
			{NodeID: "B", LastResponse: "y"},
		}, []llm.Message{llm.NewTextMessage(llm.RoleUser, "earlier")}, "now")

		Expect(msgs).To(HaveLen(3))
		Expect(msgs[0].Role).To(Equal(llm.RoleSystem))
		Expect(msgs[0].Content).To(Equal("sys\n\nContext from parent node B: y\n\n"))
		Expect(msgs[1].Content).To(Equal("earlier"))
		Expect(msgs[2]).To(Equal(llm.NewTextMessage(llm.RoleUser, "now")))
	})

	It("omits an empty user input", func() {
		msgs := llm.BuildUpstreamMessages("sys", nil, nil, "")
		Expect(msgs).To(HaveLen(1))
	})
})

var _ = Describe("NewSystemError", func() {
	It("flattens the reason onto one line", func() {
		msg := llm.NewSystemError("boom\nsecond  line")
		Expect(msg.Role).To(Equal(llm.RoleSystem))
		Expect(msg.Content).To(Equal("Error: boom second line"))
	})
})
