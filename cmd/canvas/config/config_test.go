package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/canvas/cmd/canvas/config"
	"github.com/papercomputeco/canvas/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))

		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .canvas dir is picked up before the home directory.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".canvas"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(os.Chdir, origDir)
	})

	It("sets and reads back a value", func() {
		Expect(run("set", "storage.driver", "redis")).To(Succeed())
		Expect(filepath.Join(tmpDir, ".canvas", "config.toml")).To(BeAnExistingFile())

		out.Reset()
		Expect(run("get", "storage.driver")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("redis"))
	})

	It("rejects unknown keys", func() {
		Expect(run("set", "proxy.provider", "x")).To(MatchError(ContainSubstring("unknown config key")))
		Expect(run("get", "proxy.provider")).To(MatchError(ContainSubstring("unknown config key")))
	})

	It("rejects invalid values", func() {
		Expect(run("set", "storage.driver", "mongo")).To(MatchError(ContainSubstring("invalid value")))
	})

	It("requires exactly two arguments for set", func() {
		Expect(run("set", "storage.driver")).To(HaveOccurred())
	})

	It("masks secrets", func() {
		Expect(run("set", "backends.groq_api_key", "gsk_supersecret1234")).To(Succeed())
		Expect(out.String()).NotTo(ContainSubstring("supersecret"))
		Expect(out.String()).To(ContainSubstring("1234"))

		cfger, err := config.NewConfiger("")
		Expect(err).NotTo(HaveOccurred())
		val, err := cfger.GetConfigValue("backends.groq_api_key")
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal("gsk_supersecret1234"))
	})

	It("lists every key with defaults filled in", func() {
		Expect(run("list")).To(Succeed())
		for _, key := range config.ValidConfigKeys() {
			Expect(out.String()).To(ContainSubstring(key))
		}
		Expect(out.String()).To(ContainSubstring(`"http://localhost:5000"`))
		Expect(out.String()).To(MatchRegexp(`backends\.groq_api_key\s+= <not set>`))
	})
})
