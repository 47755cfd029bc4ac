package sse

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var errUndecodable = errors.New("undecodable")

// failFirst fails its first Transform call, then decodes UTF-8 normally.
type failFirst struct {
	failed bool
	next   transform.Transformer
}

func (f *failFirst) Transform(dst, src []byte, atEOF bool) (int, int, error) {
	if !f.failed {
		f.failed = true
		return 0, 0, errUndecodable
	}
	return f.next.Transform(dst, src, atEOF)
}

func (f *failFirst) Reset() { f.next.Reset() }

var _ = Describe("Decoder skipping", func() {
	It("drops an undecodable fragment and keeps decoding", func() {
		var skipped []error
		d := &Decoder{
			utf8:   &failFirst{next: unicode.UTF8.NewDecoder()},
			OnSkip: func(err error) { skipped = append(skipped, err) },
		}

		Expect(d.Feed([]byte("data: lost\n"))).To(BeEmpty())
		Expect(skipped).To(ConsistOf(errUndecodable))

		Expect(d.Feed([]byte("data: kept\n"))).To(Equal([]string{"data: kept"}))
		Expect(d.Flush()).To(BeEmpty())
	})
})
