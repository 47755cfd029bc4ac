package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/storage"
	"github.com/papercomputeco/canvas/pkg/storage/inmemory"
	"github.com/papercomputeco/canvas/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.Behaves(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("returns copies of stored messages", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		Expect(d.Append(ctx, "n1", llm.NewTextMessage(llm.RoleUser, "hi"))).To(Succeed())

		msgs, err := d.Messages(ctx, "n1")
		Expect(err).NotTo(HaveOccurred())
		msgs[0].Content = "changed"

		again, err := d.Messages(ctx, "n1")
		Expect(err).NotTo(HaveOccurred())
		Expect(again[0].Content).To(Equal("hi"))
	})
})
