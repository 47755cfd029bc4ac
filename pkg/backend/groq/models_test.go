package groq_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/backend/groq"
)

var _ = Describe("Groq Models", func() {
	var b *groq.Backend

	BeforeEach(func() {
		b = groq.New(nil, "")
	})

	It("lists the hosted models in name order", func() {
		models, err := b.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(HaveLen(17))
		Expect(models[0]).To(Equal("deepseek-r1-distill-llama-70b"))
		Expect(models).To(ContainElement("llama-3.3-70b-versatile"))
	})

	It("publishes a limit for every listed model", func() {
		var limiter backend.Limiter = b
		limits := limiter.ModelLimits()

		models, _ := b.Models(context.Background())
		for _, m := range models {
			Expect(limits).To(HaveKey(m))
		}
		Expect(limits["llama-3.2-90b-vision-preview"]).To(Equal(backend.ModelLimits{
			RequestsPerMinute: 15, RequestsPerDay: 3500, TokensPerMinute: 7000, TokensPerDay: 250000,
		}))
	})

	It("hands out a copy of the table", func() {
		b.ModelLimits()["gemma2-9b-it"] = backend.ModelLimits{}
		Expect(b.ModelLimits()["gemma2-9b-it"].RequestsPerDay).To(Equal(14400))
	})

	It("encodes unenforced limits as text", func() {
		raw, err := json.Marshal(b.ModelLimits()["qwen-2.5-32b"])
		Expect(err).NotTo(HaveOccurred())
		Expect(raw).To(MatchJSON(`{"req_per_min":30,"req_per_day":1000,"tokens_per_min":6000,"tokens_per_day":"No limit"}`))

		var back backend.ModelLimits
		Expect(json.Unmarshal(raw, &back)).To(Succeed())
		Expect(back.TokensPerDay).To(Equal(backend.NoLimit))
		Expect(back.RequestsPerDay).To(Equal(1000))
	})
})
