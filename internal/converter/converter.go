package converter

import (
	"context"
	"fmt"
	"io"
)

// Converter transforms an audio byte stream from one encoding to another.
// Implementations are stateless per call. Converters that inherently need
// whole-file framing (WAV header rewrites) may buffer the full input and
// document that; others must operate incrementally.
type Converter interface {
	Convert(ctx context.Context, in io.Reader) (io.ReadCloser, error)
}

// Error reports malformed input audio or an encoder failure. A conversion
// error aborts the response; truncated or garbage audio is never emitted.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func convErr(err error, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Err: err}
}
