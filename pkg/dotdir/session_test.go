package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/dotdir"
	"github.com/papercomputeco/canvas/pkg/llm"
)

var _ = Describe("dotdir.Manager session", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		m = dotdir.NewManager()
	})

	It("returns nil when no session was saved", func() {
		state, err := m.LoadSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("round-trips the session state", func() {
		state := &dotdir.SessionState{
			ActiveNode: "b",
			Conversations: map[string][]llm.Message{
				"b": {{Role: llm.RoleUser, Content: "hi"}},
			},
		}
		Expect(m.SaveSession(state, tmpDir)).To(Succeed())

		loaded, err := m.LoadSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(state))
	})

	It("fills in an empty conversation map", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "session.json"), []byte(`{"active_node":"a"}`), 0o600)).To(Succeed())

		loaded, err := m.LoadSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Conversations).NotTo(BeNil())
	})

	It("reports malformed files", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "session.json"), []byte(`{`), 0o600)).To(Succeed())

		_, err := m.LoadSession(tmpDir)
		Expect(err).To(HaveOccurred())
	})

	It("refuses to save nil", func() {
		Expect(m.SaveSession(nil, tmpDir)).NotTo(Succeed())
	})

	It("clears the session and tolerates clearing twice", func() {
		Expect(m.SaveSession(&dotdir.SessionState{}, tmpDir)).To(Succeed())
		Expect(m.ClearSession(tmpDir)).To(Succeed())
		Expect(m.ClearSession(tmpDir)).To(Succeed())

		state, err := m.LoadSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})
})
