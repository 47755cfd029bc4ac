package sse

import (
	"bufio"
	"io"
)

// Writer frames chunks as data lines and flushes after each one so clients
// see tokens as soon as they are produced.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(dst)}
}

// WriteData writes one "data: <chunk>" event followed by a blank line.
func (w *Writer) WriteData(chunk string) error {
	if _, err := w.w.WriteString(DataPrefix + chunk + "\n\n"); err != nil {
		return err
	}
	return w.w.Flush()
}
