package sse_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/canvas/pkg/sse"
)

var _ = Describe("Decoder", func() {
	var d *sse.Decoder

	BeforeEach(func() {
		d = sse.NewDecoder()
	})

	It("returns complete lines and carries the remainder", func() {
		lines := d.Feed([]byte("data: one\ndata: tw"))
		Expect(lines).To(Equal([]string{"data: one"}))

		lines = d.Feed([]byte("o\n\n"))
		Expect(lines).To(Equal([]string{"data: two", ""}))
	})

	It("decodes multi-byte runes split across fragments", func() {
		payload := []byte("data: héllo ✓\n")
		// Split inside the three byte check mark.
		cut := bytes.Index(payload, []byte("✓")) + 1

		lines := d.Feed(payload[:cut])
		Expect(lines).To(BeEmpty())

		lines = d.Feed(payload[cut:])
		Expect(lines).To(Equal([]string{"data: héllo ✓"}))
	})

	It("strips carriage returns", func() {
		lines := d.Feed([]byte("data: a\r\ndata: b\r\n"))
		Expect(lines).To(Equal([]string{"data: a", "data: b"}))
	})

	It("flushes an unterminated final line", func() {
		d.Feed([]byte("data: tail"))

		lines := d.Flush()
		Expect(lines).To(Equal([]string{"data: tail"}))
	})

	It("replaces a truncated rune at end of stream", func() {
		d.Feed([]byte{'x', 0xE2, 0x9C})

		lines := d.Flush()
		Expect(lines).To(HaveLen(1))
		Expect(lines[0]).To(HavePrefix("x"))
		Expect(lines[0]).To(ContainSubstring("�"))
	})

	It("flushes nothing when the stream ended on a line break", func() {
		d.Feed([]byte("data: done\n"))

		lines := d.Flush()
		Expect(lines).To(BeEmpty())
	})
})

var _ = Describe("Data", func() {
	It("extracts the payload verbatim", func() {
		text, ok := sse.Data("data:  spaced ")
		Expect(ok).To(BeTrue())
		Expect(text).To(Equal(" spaced "))
	})

	It("rejects lines without the exact prefix", func() {
		for _, line := range []string{"data:nospace", "event: x", ": comment", ""} {
			_, ok := sse.Data(line)
			Expect(ok).To(BeFalse(), line)
		}
	})
})

var _ = Describe("Writer", func() {
	It("frames each chunk as a data event", func() {
		var buf bytes.Buffer
		w := sse.NewWriter(&buf)
		Expect(w.WriteData("Hello")).To(Succeed())
		Expect(w.WriteData("World")).To(Succeed())
		Expect(buf.String()).To(Equal("data: Hello\n\ndata: World\n\n"))
	})
})
