package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/storage"
	"github.com/papercomputeco/canvas/pkg/storage/sqlite"
	"github.com/papercomputeco/canvas/pkg/storage/storagetest"
)

var _ = Describe("SQLiteDriver", func() {
	storagetest.Behaves(func() storage.Driver {
		d, err := sqlite.NewSQLiteDriver(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	Describe("NewSQLiteDriver", func() {
		It("persists conversations across reopen", func() {
			ctx := context.Background()
			dbPath := filepath.Join(GinkgoT().TempDir(), "canvas.db")

			d, err := sqlite.NewSQLiteDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Append(ctx, "n1", llm.NewTextMessage(llm.RoleUser, "hi"))).To(Succeed())
			Expect(d.Close()).To(Succeed())

			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())

			d, err = sqlite.NewSQLiteDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()

			msgs, err := d.Messages(ctx, "n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(Equal([]llm.Message{{Role: llm.RoleUser, Content: "hi"}}))
		})
	})
})
