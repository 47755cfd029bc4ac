package sse

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder turns a byte stream delivered in arbitrary fragments into complete
// lines. Multi-byte UTF-8 sequences split across fragments are carried over
// to the next Feed, as is any text following the last line break.
//
// A fragment that cannot be decoded is skipped and the stream continues.
// A Decoder belongs to exactly one stream and must not be shared.
type Decoder struct {
	utf8 transform.Transformer

	// pending holds trailing bytes of an incomplete rune.
	pending []byte

	// partial holds decoded text after the last line break.
	partial strings.Builder

	// OnSkip, when set, is called with the error for every skipped fragment.
	OnSkip func(err error)
}

// NewDecoder returns a Decoder with empty carry-over state.
func NewDecoder() *Decoder {
	return &Decoder{
		utf8: unicode.UTF8.NewDecoder(),
	}
}

// Feed decodes p together with any carried-over bytes and returns every line
// it completes, without line terminators. Invalid UTF-8 is replaced with
// U+FFFD rather than failing the stream.
func (d *Decoder) Feed(p []byte) []string {
	return d.split(d.decode(p, false), false)
}

// Flush ends the stream, returning the final unterminated line if one exists.
func (d *Decoder) Flush() []string {
	return d.split(d.decode(nil, true), true)
}

func (d *Decoder) decode(p []byte, atEOF bool) string {
	src := append(d.pending, p...)
	d.pending = nil
	if len(src) == 0 {
		return ""
	}

	// Each invalid byte may expand to a three byte replacement rune.
	dst := make([]byte, 3*len(src))
	nDst, nSrc, err := d.utf8.Transform(dst, src, atEOF)
	if err != nil && !errors.Is(err, transform.ErrShortSrc) {
		d.utf8.Reset()
		if d.OnSkip != nil {
			d.OnSkip(err)
		}
		return ""
	}

	if atEOF {
		d.utf8.Reset()
	} else {
		d.pending = append([]byte(nil), src[nSrc:]...)
	}
	return string(dst[:nDst])
}

func (d *Decoder) split(text string, atEOF bool) []string {
	d.partial.WriteString(text)
	buffered := d.partial.String()
	d.partial.Reset()

	parts := strings.Split(buffered, "\n")
	last := parts[len(parts)-1]
	parts = parts[:len(parts)-1]

	if atEOF {
		if last != "" {
			parts = append(parts, last)
		}
	} else {
		d.partial.WriteString(last)
	}

	for i, line := range parts {
		parts[i] = strings.TrimSuffix(line, "\r")
	}
	return parts
}

// Data reports whether line carries a payload and returns the text after the
// prefix verbatim.
func Data(line string) (string, bool) {
	if !strings.HasPrefix(line, DataPrefix) {
		return "", false
	}
	return line[len(DataPrefix):], true
}
