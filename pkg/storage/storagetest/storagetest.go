// Package storagetest holds the shared behavior every storage.Driver is
// expected to satisfy. Driver test suites call Behaves inside a Describe.
package storagetest

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/storage"
)

// Behaves registers the driver conformance tests. newDriver is called once
// per test and the returned driver is closed afterwards.
func Behaves(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	It("reports unknown conversations as not found", func() {
		_, err := driver.Messages(ctx, "missing")
		Expect(storage.IsNotFound(err)).To(BeTrue())

		msgs, err := storage.MessagesOrEmpty(ctx, driver, "missing")
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})

	It("appends messages in order", func() {
		Expect(driver.Append(ctx, "n1", llm.NewTextMessage(llm.RoleUser, "hi"))).To(Succeed())
		Expect(driver.Append(ctx, "n1",
			llm.NewTextMessage(llm.RoleAssistant, "hello"),
			llm.NewTextMessage(llm.RoleUser, "again"),
		)).To(Succeed())

		msgs, err := driver.Messages(ctx, "n1")
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(Equal([]llm.Message{
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
			{Role: llm.RoleUser, Content: "again"},
		}))
	})

	It("creates an empty conversation on an empty append", func() {
		Expect(driver.Append(ctx, "n1")).To(Succeed())

		msgs, err := driver.Messages(ctx, "n1")
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})

	It("replaces a conversation", func() {
		Expect(driver.Append(ctx, "n1", llm.NewTextMessage(llm.RoleUser, "old"))).To(Succeed())
		Expect(driver.Replace(ctx, "n1", []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
		})).To(Succeed())

		msgs, err := driver.Messages(ctx, "n1")
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(Equal([]llm.Message{{Role: llm.RoleSystem, Content: "be brief"}}))

		Expect(driver.Append(ctx, "n1", llm.NewTextMessage(llm.RoleUser, "next"))).To(Succeed())
		msgs, err = driver.Messages(ctx, "n1")
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(2))
	})

	It("clears a conversation", func() {
		Expect(driver.Append(ctx, "n1", llm.NewTextMessage(llm.RoleUser, "hi"))).To(Succeed())
		Expect(driver.Clear(ctx, "n1")).To(Succeed())
		Expect(driver.Clear(ctx, "never")).To(Succeed())

		_, err := driver.Messages(ctx, "n1")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("lists node IDs sorted", func() {
		Expect(driver.Append(ctx, "b", llm.NewTextMessage(llm.RoleUser, "x"))).To(Succeed())
		Expect(driver.Append(ctx, "a", llm.NewTextMessage(llm.RoleUser, "y"))).To(Succeed())

		ids, err := driver.NodeIDs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"a", "b"}))
	})

	It("finds the last assistant reply", func() {
		Expect(driver.Append(ctx, "n1",
			llm.NewTextMessage(llm.RoleAssistant, "first"),
			llm.NewTextMessage(llm.RoleAssistant, "second"),
			llm.NewTextMessage(llm.RoleUser, "thanks"),
		)).To(Succeed())

		reply, err := storage.LastAssistant(ctx, driver, "n1")
		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(Equal("second"))

		reply, err = storage.LastAssistant(ctx, driver, "none")
		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(BeEmpty())
	})
}
