package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a dispatch failure.
type Kind string

const (
	// KindNetwork is a transport failure with no status available.
	KindNetwork Kind = "network"

	// KindHTTP is a non-success status with a parsed-or-raw body.
	KindHTTP Kind = "http"

	// KindDecode is a success status whose body could not be parsed.
	KindDecode Kind = "decode"

	// KindStreamCapability means the response body cannot be streamed.
	KindStreamCapability Kind = "stream_capability"
)

// Error is the single structured failure produced by the dispatcher and the
// stream reader.
type Error struct {
	Kind       Kind
	Method     string
	Target     string
	StatusCode int
	StatusText string

	// Body is the decoded JSON error body, or {"message": text} for
	// non-JSON bodies.
	Body any

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Method != "" || e.Target != "" {
		fmt.Fprintf(&b, "%s %s: ", e.Method, e.Target)
	}

	switch e.Kind {
	case KindHTTP:
		fmt.Fprintf(&b, "%d %s", e.StatusCode, e.StatusText)
		if msg := bodyMessage(e.Body); msg != "" {
			b.WriteString(": " + msg)
		}
	case KindStreamCapability:
		b.WriteString("response body is not streamable")
	default:
		b.WriteString(string(e.Kind) + " error")
	}

	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reason returns the most useful human-readable description of the failure:
// the server supplied error text when present, otherwise the full error.
func (e *Error) Reason() string {
	if msg := bodyMessage(e.Body); msg != "" {
		return msg
	}
	return e.Error()
}

// Enrich converts any error into an *Error carrying target and method,
// filling those fields only when they are not already set. Unknown errors
// are classified as network failures.
func Enrich(err error, target, method string) *Error {
	if err == nil {
		return nil
	}

	var de *Error
	if !errors.As(err, &de) {
		de = &Error{Kind: KindNetwork, Err: err}
	}
	if de.Target == "" {
		de.Target = target
	}
	if de.Method == "" {
		de.Method = method
	}
	return de
}

// bodyMessage pulls an "error" or "message" string out of a decoded body.
// An "error" object with its own "message" field is unwrapped.
func bodyMessage(body any) string {
	m, ok := body.(map[string]any)
	if !ok {
		return ""
	}

	switch v := m["error"].(type) {
	case string:
		if v != "" {
			return v
		}
	case map[string]any:
		if s, ok := v["message"].(string); ok && s != "" {
			return s
		}
	}

	if s, ok := m["message"].(string); ok {
		return s
	}
	return ""
}
